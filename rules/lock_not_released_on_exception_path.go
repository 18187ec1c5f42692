package rules

import (
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/worklist"
)

// LockNotReleasedOnExceptionPathRule flags a java.util.concurrent lock
// acquired with lock() where some path out of the method never reaches a
// matching unlock(), typically because the unlock call sits outside a
// try/finally and an exception (or an early return) skips it.
type LockNotReleasedOnExceptionPathRule struct{}

func (LockNotReleasedOnExceptionPathRule) Metadata() Metadata {
	return Metadata{
		ID:          "LOCK_NOT_RELEASED_ON_EXCEPTION_PATH",
		Name:        "Lock not released on exception path",
		Description: "A lock acquired via lock() may not be released on every path",
	}
}

func (LockNotReleasedOnExceptionPathRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			if !method.HasBody() {
				continue
			}
			results = append(results, analyzeLockReleasePaths(ctx, class, method)...)
		}
	}
	return results, nil
}

func analyzeLockReleasePaths(ctx *Context, class *ir.Class, method *ir.Method) []Result {
	var results []Result
	for _, call := range method.Calls {
		if !isLockAcquireCall(call) {
			continue
		}
		block := instructionBlock(method.CFG, call.Offset)
		if block == nil {
			continue
		}
		startIndex := indexAfterOffset(block, call.Offset)
		callsByOffset := make(map[int]*ir.CallSite, len(method.Calls))
		for _, c := range method.Calls {
			callsByOffset[c.Offset] = c
		}
		sem := &lockReleaseSemantics{lockSite: call.Offset, startBlock: block.Start, startIndex: startIndex, callsByOffset: callsByOffset}
		for _, finding := range worklist.Run[lockReleaseState](method, sem) {
			results = append(results, methodResult("LOCK_NOT_RELEASED_ON_EXCEPTION_PATH", lockNotReleasedMessage(class, method), ctx, class, method, finding.Offset))
		}
	}
	return results
}

func lockNotReleasedMessage(class *ir.Class, method *ir.Method) string {
	return "Lock acquired in " + class.Name + "." + method.Name + method.Descriptor + " may exit without unlock(); release it in a finally block."
}

func isLockAcquireCall(call *ir.CallSite) bool {
	return call.Name == "lock" && call.Descriptor == "()V" && isLockOwner(call.Owner)
}

func isLockUnlockCall(call *ir.CallSite) bool {
	return call.Name == "unlock" && call.Descriptor == "()V" && isLockOwner(call.Owner)
}

func isLockOwner(owner string) bool {
	switch owner {
	case "java/util/concurrent/locks/ReentrantLock",
		"java/util/concurrent/locks/ReentrantReadWriteLock$ReadLock",
		"java/util/concurrent/locks/ReentrantReadWriteLock$WriteLock",
		"java/util/concurrent/locks/Lock":
		return true
	}
	return false
}

func instructionBlock(blocks []*ir.BasicBlock, offset int) *ir.BasicBlock {
	for _, block := range blocks {
		if offset >= block.Start && offset < block.End {
			return block
		}
	}
	return nil
}

func indexAfterOffset(block *ir.BasicBlock, offset int) int {
	for i, inst := range block.Instructions {
		if inst.Offset == offset {
			return i + 1
		}
	}
	return len(block.Instructions)
}

type lockReleaseState struct {
	pos        worklist.Position
	unlockSeen bool
}

// lockReleaseSemantics seeds the worklist right after one lock() call
// site and tracks, along every reachable path (including exception
// edges), whether a matching unlock() was executed before the method
// exits.
type lockReleaseSemantics struct {
	lockSite      int
	startBlock    int
	startIndex    int
	callsByOffset map[int]*ir.CallSite
}

func (s *lockReleaseSemantics) InitialStates(method *ir.Method) []lockReleaseState {
	return []lockReleaseState{{pos: worklist.Position{BlockStart: s.startBlock, InstructionIndex: s.startIndex}}}
}

func (s *lockReleaseSemantics) Canonicalize(state lockReleaseState) lockReleaseState {
	return state
}

func (s *lockReleaseSemantics) Position(state lockReleaseState) worklist.Position {
	return state.pos
}

func (s *lockReleaseSemantics) TransferInstruction(method *ir.Method, inst *ir.Instruction, state lockReleaseState) worklist.InstructionStep[lockReleaseState] {
	unlockSeen := state.unlockSeen
	if call, ok := s.callsByOffset[inst.Offset]; ok && isLockUnlockCall(call) {
		unlockSeen = true
	}
	return worklist.InstructionStep[lockReleaseState]{
		NextState: lockReleaseState{
			pos:        worklist.Position{BlockStart: state.pos.BlockStart, InstructionIndex: state.pos.InstructionIndex + 1},
			unlockSeen: unlockSeen,
		},
	}
}

func (s *lockReleaseSemantics) OnBlockEnd(method *ir.Method, state lockReleaseState, successors []worklist.Successor) worklist.BlockEndStep[lockReleaseState] {
	if len(successors) == 0 {
		if state.unlockSeen {
			return worklist.BlockEndStep[lockReleaseState]{}
		}
		return worklist.BlockEndStep[lockReleaseState]{
			Findings: []worklist.Finding{{Message: "lock not released", Offset: s.lockSite}},
		}
	}
	next := worklist.DefaultSuccessorStates(successors, func(pos worklist.Position) lockReleaseState {
		return lockReleaseState{pos: pos, unlockSeen: state.unlockSeen}
	})
	return worklist.BlockEndStep[lockReleaseState]{NextStates: next}
}
