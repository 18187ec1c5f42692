// Package opcodes provides the shared, table-driven opcode transfer
// function every dataflow rule builds on: given a decoded instruction, it
// mutates a stackmachine.Machine the way the JVM spec says that opcode
// would, at the granularity rules need (values, not byte-accurate slot
// widths). Rules override specific opcodes via hooks rather than forking
// the table.
package opcodes

import (
	"os"

	"github.com/exoego/inspequte-sub000/bytecode"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/stackmachine"
	"github.com/exoego/inspequte-sub000/telemetry"
)

// DebugEnvVar gates emission of fallback telemetry events for opcodes the
// default transfer function does not model.
const DebugEnvVar = "INSPEQUTE_DEBUG_OPCODE_SEMANTICS"

// Outcome reports what handled an instruction.
type Outcome int

const (
	// NotHandled means no hook claimed the instruction; the default
	// transfer function ran (or found nothing to do).
	NotHandled Outcome = iota
	// Applied means a pre_apply hook handled the instruction itself; the
	// default semantics was skipped entirely.
	Applied
)

// PreHook runs before the default transfer function for every
// instruction; returning Applied skips the default semantics for that
// instruction.
type PreHook[V any] func(m *stackmachine.Machine[V], method *ir.Method, inst *ir.Instruction) Outcome

// PostHook runs after dispatch (default semantics or a pre_apply hook)
// for every instruction.
type PostHook[V any] func(m *stackmachine.Machine[V], method *ir.Method, inst *ir.Instruction, outcome Outcome)

// SemanticsCoverage counts how each instruction in a run was handled.
type SemanticsCoverage struct {
	HookOverrides  int
	DefaultApplies int
	Unhandled      int
}

// Transfer is the shared opcode transfer function, parameterized by the
// abstract value domain a rule composes it with.
type Transfer[V any] struct {
	Domain   stackmachine.ValueDomain[V]
	Pre      PreHook[V]
	Post     PostHook[V]
	Coverage SemanticsCoverage
	Tracer   *telemetry.Tracer
	debug    bool
}

// New builds a Transfer. Debug fallback events are emitted only when the
// INSPEQUTE_DEBUG_OPCODE_SEMANTICS environment variable is set.
func New[V any](domain stackmachine.ValueDomain[V]) *Transfer[V] {
	return &Transfer[V]{Domain: domain, debug: os.Getenv(DebugEnvVar) != ""}
}

// Apply dispatches one instruction: the pre_apply hook first, then the
// default semantics unless the hook applied, then the post_apply hook.
// code is the method's raw bytecode, needed to recover load/store local
// indices that ir.Instruction does not itself carry.
func (t *Transfer[V]) Apply(m *stackmachine.Machine[V], method *ir.Method, inst *ir.Instruction, code []byte) {
	outcome := NotHandled
	if t.Pre != nil {
		outcome = t.Pre(m, method, inst)
	}

	if outcome == Applied {
		t.Coverage.HookOverrides++
	} else if t.applyDefault(m, inst, code) {
		t.Coverage.DefaultApplies++
	} else {
		t.Coverage.Unhandled++
		if t.debug {
			span := t.Tracer.Start("opcodes.fallback")
			span.Event("unhandled_opcode",
				telemetry.Int("opcode", int(inst.Opcode)),
				telemetry.Int("offset", inst.Offset),
				telemetry.String("method", method.Name+method.Descriptor),
			)
			span.End()
		}
	}

	if t.Post != nil {
		t.Post(m, method, inst, outcome)
	}
}

// applyDefault runs the table-driven JVM stack effect for opcode and
// reports whether it recognized the opcode at all.
func (t *Transfer[V]) applyDefault(m *stackmachine.Machine[V], inst *ir.Instruction, code []byte) bool {
	op := inst.Opcode
	switch {
	case op == 0x00: // nop
		return true

	case isLoadOpcode(op):
		idx, ok := bytecode.LocalIndex(code, inst.Offset)
		if !ok {
			return false
		}
		m.Push(m.LoadLocal(idx))
		return true

	case isStoreOpcode(op):
		idx, ok := bytecode.LocalIndex(code, inst.Offset)
		if !ok {
			return false
		}
		m.StoreLocal(idx, m.Pop())
		return true

	case isConstPush(op):
		m.Push(t.Domain.ScalarValue())
		return true

	case op == bytecode.OpLdc || op == bytecode.OpLdcW || op == bytecode.OpLdc2W:
		m.Push(t.Domain.ScalarValue())
		return true

	case op == opDup:
		v := m.Peek()
		m.Push(v)
		return true
	case op == opDupX1:
		a := m.Pop()
		b := m.Pop()
		m.Push(a)
		m.Push(b)
		m.Push(a)
		return true
	case op == opDupX2:
		a := m.Pop()
		b := m.Pop()
		c := m.Pop()
		m.Push(a)
		m.Push(c)
		m.Push(b)
		m.Push(a)
		return true
	case op == opDup2:
		values := m.StackValues()
		n := len(values)
		if n >= 2 {
			m.Push(values[n-2])
			m.Push(values[n-1])
		} else if n == 1 {
			m.Push(values[0])
		}
		return true
	case op == opSwap:
		a := m.Pop()
		b := m.Pop()
		m.Push(a)
		m.Push(b)
		return true
	case op == opPop:
		m.Pop()
		return true
	case op == opPop2:
		m.PopN(2)
		return true

	case isUnaryArithmetic(op):
		m.Pop()
		m.Push(t.Domain.ScalarValue())
		return true
	case isBinaryArithmetic(op):
		m.Pop()
		m.Pop()
		m.Push(t.Domain.ScalarValue())
		return true
	case isCompare(op):
		m.Pop()
		m.Pop()
		m.Push(t.Domain.ScalarValue())
		return true

	case op == opGetstatic:
		m.Push(t.Domain.UnknownValue())
		return true
	case op == opPutstatic:
		m.Pop()
		return true
	case op == opGetfield:
		m.Pop()
		m.Push(t.Domain.UnknownValue())
		return true
	case op == opPutfield:
		m.Pop()
		m.Pop()
		return true

	case op == opArraylength:
		m.Pop()
		m.Push(t.Domain.ScalarValue())
		return true
	case op == opNew:
		m.Push(t.Domain.UnknownValue())
		return true
	case op == opNewarray, op == opAnewarray:
		m.Pop()
		m.Push(t.Domain.UnknownValue())
		return true
	case op == opMultianewarray:
		dims := int(code[inst.Offset+3])
		m.PopN(dims)
		m.Push(t.Domain.UnknownValue())
		return true
	case op == opCheckcast:
		return true // leaves the reference on the stack unchanged
	case op == opInstanceof:
		m.Pop()
		m.Push(t.Domain.ScalarValue())
		return true
	case op == opMonitorenter, op == opMonitorexit:
		m.Pop()
		return true

	case bytecode.IsConditionalBranch(op):
		m.Pop()
		if isTwoOperandCompare(op) {
			m.Pop()
		}
		return true
	case bytecode.IsUnconditionalBranch(op):
		return true
	case bytecode.IsSwitch(op):
		m.Pop()
		return true
	case isReturnOpcode(op):
		if op != opReturnVoid {
			m.Pop()
		}
		return true
	case op == opAthrow:
		m.Pop()
		return true

	default:
		return false
	}
}
