package rules

import (
	"github.com/exoego/inspequte-sub000/bytecode"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/opcodes"
	"github.com/exoego/inspequte-sub000/stackmachine"
	"github.com/exoego/inspequte-sub000/typeuse"
)

// ExceptionCauseNotPreservedRule flags a catch handler that throws a
// freshly constructed exception without linking the caught exception to
// it, which discards the original failure's stack trace and message.
type ExceptionCauseNotPreservedRule struct{}

func (ExceptionCauseNotPreservedRule) Metadata() Metadata {
	return Metadata{
		ID:          "EXCEPTION_CAUSE_NOT_PRESERVED",
		Name:        "Exception cause not preserved",
		Description: "A catch handler throws a new exception without preserving the original cause",
	}
}

const exceptionCauseNotPreservedMessage = "Catch handler throws a new exception without preserving the original cause; pass the caught exception as a cause or call initCause/addSuppressed before throwing."

type causeKind int

const (
	causeUnknown causeKind = iota
	causeCaughtException
	causeNewThrowable
)

type causeDomain struct{}

func (causeDomain) UnknownValue() causeKind { return causeUnknown }
func (causeDomain) ScalarValue() causeKind  { return causeUnknown }

func (ExceptionCauseNotPreservedRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			if !method.HasBody() {
				continue
			}
			results = append(results, analyzeExceptionCauseNotPreserved(ctx, class, method)...)
		}
	}
	return results, nil
}

func analyzeExceptionCauseNotPreserved(ctx *Context, class *ir.Class, method *ir.Method) []Result {
	blockByStart := make(map[int]*ir.BasicBlock, len(method.CFG))
	for _, block := range method.CFG {
		blockByStart[block.Start] = block
	}
	successors := make(map[int][]int)
	for _, edge := range method.Edges {
		successors[edge.From] = append(successors[edge.From], edge.To)
	}
	callsByOffset := make(map[int]*ir.CallSite, len(method.Calls))
	for _, call := range method.Calls {
		callsByOffset[call.Offset] = call
	}

	var results []Result
	for _, handler := range method.ExceptionTable {
		if handler.CatchType == "" {
			continue // finally, not a catch
		}
		offset, flagged := analyzeHandlerCausePreservation(method, handler.HandlerPC, blockByStart, successors, callsByOffset)
		if !flagged {
			continue
		}
		results = append(results, methodResult("EXCEPTION_CAUSE_NOT_PRESERVED", exceptionCauseNotPreservedMessage, ctx, class, method, offset))
	}
	return results
}

// analyzeHandlerCausePreservation walks the instructions reachable from a
// handler's entry block by block in breadth-first order over the CFG
// successors (not sorted by offset), simulating them on a single abstract
// stack. It is a linear approximation of the handler's true control flow,
// adequate for spotting the common "wrap and rethrow" shape without a
// full join over merging paths.
func analyzeHandlerCausePreservation(method *ir.Method, handlerPC int, blockByStart map[int]*ir.BasicBlock, successors map[int][]int, callsByOffset map[int]*ir.CallSite) (offset int, flagged bool) {
	instructions := reachableInstructionsInOrder(handlerPC, blockByStart, successors)
	if len(instructions) == 0 {
		return 0, false
	}
	code := method.Bytecode

	causePreserved := false
	transfer := opcodes.New[causeKind](causeDomain{})
	transfer.Pre = func(m *stackmachine.Machine[causeKind], meth *ir.Method, inst *ir.Instruction) opcodes.Outcome {
		if inst.Opcode == bytecode.OpNew {
			m.Push(causeNewThrowable)
			return opcodes.Applied
		}
		if !isInvokeOpcode(inst.Opcode) {
			return opcodes.NotHandled
		}
		call, ok := callsByOffset[inst.Offset]
		if !ok {
			return opcodes.NotHandled
		}
		argCount := 0
		isVoid := true
		if params, ret, err := typeuse.ParseMethodDescriptor(call.Descriptor); err == nil {
			argCount = len(params)
			isVoid = ret.Tag == ir.TUVoid
		}
		argsHaveCaught := false
		for i := 0; i < argCount; i++ {
			if m.Pop() == causeCaughtException {
				argsHaveCaught = true
			}
		}
		if call.Kind != ir.Static {
			m.Pop()
		}
		if argsHaveCaught && (call.Name == "<init>" || call.Name == "initCause" || call.Name == "addSuppressed") {
			causePreserved = true
		}
		if !isVoid {
			m.Push(causeUnknown)
		}
		return opcodes.Applied
	}

	machine := stackmachine.New[causeKind](causeUnknown)
	machine.Push(causeCaughtException) // a catch handler enters with the exception on the stack
	for _, inst := range instructions {
		if inst.Opcode == 0xbf { // athrow
			top := machine.Peek()
			if top == causeNewThrowable && !causePreserved {
				return inst.Offset, true
			}
		}
		transfer.Apply(machine, method, inst, code)
	}
	return 0, false
}

func reachableInstructionsInOrder(start int, blockByStart map[int]*ir.BasicBlock, successors map[int][]int) []*ir.Instruction {
	var out []*ir.Instruction
	visited := map[int]bool{}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		block, ok := blockByStart[cur]
		if !ok {
			continue
		}
		out = append(out, block.Instructions...)
		queue = append(queue, successors[cur]...)
	}
	return out
}
