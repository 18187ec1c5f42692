package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/ir"
)

// buildFinallyReturnMethod assembles:
//
//	0: iconst_0
//	1: ireturn
//	2: astore_1      (finally handler start)
//	3: ireturn        (swallows the original exception/return)
func buildFinallyReturnMethod(t *testing.T) *ir.Method {
	code := []byte{0x03, 0xac, 0x4c, 0xac}
	instructions := []*ir.Instruction{
		{Offset: 0, Opcode: 0x03},
		{Offset: 1, Opcode: 0xac},
		{Offset: 2, Opcode: 0x4c},
		{Offset: 3, Opcode: 0xac},
	}
	return buildMethod(t, "compute", "()I", code, instructions, func(m *ir.Method) {
		m.ExceptionTable = []ir.ExceptionHandler{
			{StartPC: 0, EndPC: 2, HandlerPC: 2, CatchType: ""}, // finally
		}
	})
}

func TestReturnInFinallyRule_ReturnInFinallyFlagged(t *testing.T) {
	method := buildFinallyReturnMethod(t)
	class := classWith("Computer", method)

	results, err := ReturnInFinallyRule{}.Run(newContext(class))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "RETURN_IN_FINALLY", results[0].RuleID)
	assert.Equal(t, 0, results[0].Line) // no LineNumberTable on this fixture
}

func TestReturnInFinallyRule_CatchClauseIsNotAFinally(t *testing.T) {
	code := []byte{0x03, 0xac, 0x4c, 0xac}
	instructions := []*ir.Instruction{
		{Offset: 0, Opcode: 0x03},
		{Offset: 1, Opcode: 0xac},
		{Offset: 2, Opcode: 0x4c},
		{Offset: 3, Opcode: 0xac},
	}
	method := buildMethod(t, "compute", "()I", code, instructions, func(m *ir.Method) {
		m.ExceptionTable = []ir.ExceptionHandler{
			{StartPC: 0, EndPC: 2, HandlerPC: 2, CatchType: "java/lang/Exception"},
		}
	})
	class := classWith("Computer", method)

	results, err := ReturnInFinallyRule{}.Run(newContext(class))
	require.NoError(t, err)
	assert.Empty(t, results)
}
