package rules

import (
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/worklist"
)

// InterruptedExceptionRule flags a caught InterruptedException whose
// handler neither rethrows nor restores the thread's interrupt status,
// which silently swallows a cooperative-cancellation signal.
type InterruptedExceptionRule struct{}

func (InterruptedExceptionRule) Metadata() Metadata {
	return Metadata{
		ID:          "INTERRUPTED_EXCEPTION_NOT_RESTORED",
		Name:        "Interrupt status not restored",
		Description: "InterruptedException is caught without rethrowing or restoring interrupt status",
	}
}

var interruptedCatchTypes = map[string]bool{
	"java/lang/InterruptedException": true,
	"java/lang/Exception":            true,
	"java/lang/Throwable":            true,
}

func (InterruptedExceptionRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			if !method.HasBody() {
				continue
			}
			results = append(results, analyzeInterruptedException(ctx, class, method)...)
		}
	}
	return results, nil
}

func analyzeInterruptedException(ctx *Context, class *ir.Class, method *ir.Method) []Result {
	hasRelevantHandler := false
	for _, handler := range method.ExceptionTable {
		if interruptedCatchTypes[handler.CatchType] {
			hasRelevantHandler = true
			break
		}
	}
	if !hasRelevantHandler {
		return nil
	}

	callsByOffset := make(map[int]*ir.CallSite, len(method.Calls))
	for _, call := range method.Calls {
		callsByOffset[call.Offset] = call
	}
	sem := &interruptedSemantics{method: method, callsByOffset: callsByOffset}

	var results []Result
	for _, finding := range worklist.Run[interruptedState](method, sem) {
		message := "InterruptedException is caught but interrupt status is not restored in " + class.Name + "." + method.Name + method.Descriptor
		results = append(results, methodResult("INTERRUPTED_EXCEPTION_NOT_RESTORED", message, ctx, class, method, finding.Offset))
	}
	return results
}

type interruptedState struct {
	pos      worklist.Position
	restored bool
}

type interruptedSemantics struct {
	method        *ir.Method
	callsByOffset map[int]*ir.CallSite
}

func (s *interruptedSemantics) InitialStates(method *ir.Method) []interruptedState {
	var states []interruptedState
	for _, handler := range method.ExceptionTable {
		if !interruptedCatchTypes[handler.CatchType] {
			continue
		}
		states = append(states, interruptedState{pos: worklist.Position{BlockStart: handler.HandlerPC, InstructionIndex: 0}})
	}
	return states
}

func (s *interruptedSemantics) Canonicalize(state interruptedState) interruptedState {
	return state
}

func (s *interruptedSemantics) Position(state interruptedState) worklist.Position {
	return state.pos
}

func (s *interruptedSemantics) TransferInstruction(method *ir.Method, inst *ir.Instruction, state interruptedState) worklist.InstructionStep[interruptedState] {
	restored := state.restored
	if call, ok := s.callsByOffset[inst.Offset]; ok && isInterruptRestoreCall(call) {
		restored = true
	}
	if inst.Opcode == 0xbf { // athrow: propagating the exception is an acceptable resolution
		return worklist.InstructionStep[interruptedState]{Terminate: true}
	}
	if returnOpcodes[inst.Opcode] {
		if restored {
			return worklist.InstructionStep[interruptedState]{Terminate: true}
		}
		return worklist.InstructionStep[interruptedState]{
			Findings:  []worklist.Finding{{Message: "interrupt status not restored", Offset: inst.Offset}},
			Terminate: true,
		}
	}
	return worklist.InstructionStep[interruptedState]{
		NextState: interruptedState{pos: worklist.Position{BlockStart: state.pos.BlockStart, InstructionIndex: state.pos.InstructionIndex + 1}, restored: restored},
	}
}

func (s *interruptedSemantics) OnBlockEnd(method *ir.Method, state interruptedState, successors []worklist.Successor) worklist.BlockEndStep[interruptedState] {
	if len(successors) == 0 {
		if state.restored {
			return worklist.BlockEndStep[interruptedState]{}
		}
		return worklist.BlockEndStep[interruptedState]{
			Findings: []worklist.Finding{{Message: "interrupt status not restored", Offset: state.pos.BlockStart}},
		}
	}
	next := worklist.DefaultSuccessorStates(successors, func(pos worklist.Position) interruptedState {
		return interruptedState{pos: pos, restored: state.restored}
	})
	return worklist.BlockEndStep[interruptedState]{NextStates: next}
}

func isInterruptRestoreCall(call *ir.CallSite) bool {
	return call.Owner == "java/lang/Thread" && call.Name == "interrupt" && call.Descriptor == "()V"
}
