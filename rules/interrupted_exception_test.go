package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/ir"
)

// buildSwallowedInterruptMethod assembles a catch(InterruptedException)
// handler that discards the exception and returns:
//
//	0: astore_1
//	1: return
func buildSwallowedInterruptMethod(t *testing.T, catchType string) *ir.Method {
	code := []byte{0x4c, 0xb1}
	instructions := []*ir.Instruction{
		{Offset: 0, Opcode: 0x4c},
		{Offset: 1, Opcode: 0xb1},
	}
	return buildMethod(t, "run", "()V", code, instructions, func(m *ir.Method) {
		m.ExceptionTable = []ir.ExceptionHandler{
			{StartPC: 0, EndPC: 2, HandlerPC: 0, CatchType: catchType},
		}
	})
}

func TestInterruptedExceptionRule_SwallowedViaPlainReturnFlagged(t *testing.T) {
	method := buildSwallowedInterruptMethod(t, "java/lang/InterruptedException")
	class := classWith("Worker", method)

	results, err := InterruptedExceptionRule{}.Run(newContext(class))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "INTERRUPTED_EXCEPTION_NOT_RESTORED", results[0].RuleID)
}

func TestInterruptedExceptionRule_IrrelevantCatchTypeIgnored(t *testing.T) {
	method := buildSwallowedInterruptMethod(t, "java/io/IOException")
	class := classWith("Worker", method)

	results, err := InterruptedExceptionRule{}.Run(newContext(class))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInterruptedExceptionRule_RethrowNotFlagged(t *testing.T) {
	// 0: astore_1; 1: aload_1; 2: athrow
	code := []byte{0x4c, 0x2c, 0xbf}
	instructions := []*ir.Instruction{
		{Offset: 0, Opcode: 0x4c},
		{Offset: 1, Opcode: 0x2c},
		{Offset: 2, Opcode: 0xbf},
	}
	method := buildMethod(t, "run", "()V", code, instructions, func(m *ir.Method) {
		m.ExceptionTable = []ir.ExceptionHandler{
			{StartPC: 0, EndPC: 3, HandlerPC: 0, CatchType: "java/lang/InterruptedException"},
		}
	})
	class := classWith("Worker", method)

	results, err := InterruptedExceptionRule{}.Run(newContext(class))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInterruptedExceptionRule_RestoresInterruptStatusNotFlagged(t *testing.T) {
	// 0: astore_1; 1: invokevirtual Thread.interrupt()V; 4: return
	code := []byte{0x4c, 0xb6, 0x00, 0x01, 0xb1}
	instructions := []*ir.Instruction{
		{Offset: 0, Opcode: 0x4c},
		{Offset: 1, Opcode: 0xb6},
		{Offset: 4, Opcode: 0xb1},
	}
	call := &ir.CallSite{Owner: "java/lang/Thread", Name: "interrupt", Descriptor: "()V", Kind: ir.Virtual, Offset: 1}
	method := buildMethod(t, "run", "()V", code, instructions, func(m *ir.Method) {
		m.Calls = []*ir.CallSite{call}
		m.ExceptionTable = []ir.ExceptionHandler{
			{StartPC: 0, EndPC: 5, HandlerPC: 0, CatchType: "java/lang/InterruptedException"},
		}
	})
	class := classWith("Worker", method)

	results, err := InterruptedExceptionRule{}.Run(newContext(class))
	require.NoError(t, err)
	assert.Empty(t, results)
}
