// Package worklist runs a generic, deterministic fixed-point loop over a
// method's control-flow graph. Rules plug in their own program-point state
// and transfer functions through Semantics; the engine owns queueing,
// visited-set deduplication, and block-boundary bookkeeping so every rule
// built on it terminates and produces the same findings regardless of
// queue scheduling.
package worklist

import (
	"sort"

	"github.com/exoego/inspequte-sub000/ir"
)

// Position locates a program point inside a method: the basic block it
// falls in (identified by the block's Start offset) and an index into
// that block's instruction list. An index equal to the block's
// instruction count means "past the last instruction of this block".
type Position struct {
	BlockStart       int
	InstructionIndex int
}

// Finding is one diagnostic a rule's semantics produced while walking the
// worklist.
type Finding struct {
	Message string
	Offset  int
}

// Successor is one outgoing edge from a block, handed to OnBlockEnd so
// semantics can build next-states without re-deriving the CFG.
type Successor struct {
	Block *ir.BasicBlock
	Kind  ir.EdgeKind
}

// InstructionStep is what TransferInstruction returns for one instruction:
// findings to emit, the state to continue with, and whether this path
// dies here (no re-enqueue).
type InstructionStep[S any] struct {
	Findings  []Finding
	NextState S
	Terminate bool
}

// BlockEndStep is what OnBlockEnd returns once a block's instructions are
// exhausted: findings plus the states to enqueue at each next block.
type BlockEndStep[S any] struct {
	Findings   []Finding
	NextStates []S
}

// Semantics is the pluggable part of a worklist rule. S is the rule's
// program-point state; it must be comparable so the engine can key a
// visited-set on it directly.
type Semantics[S comparable] interface {
	// InitialStates seeds the worklist queue for method.
	InitialStates(method *ir.Method) []S
	// Canonicalize normalizes a state before visited-set insertion, e.g.
	// to forget transient stack content a rule doesn't care about.
	Canonicalize(state S) S
	// Position extracts the (block_start, instruction_index) the state
	// currently names.
	Position(state S) Position
	// TransferInstruction runs one instruction's effect on state.
	TransferInstruction(method *ir.Method, inst *ir.Instruction, state S) InstructionStep[S]
	// OnBlockEnd runs once a block's instructions are exhausted,
	// producing the states to continue with at each successor.
	OnBlockEnd(method *ir.Method, state S, successors []Successor) BlockEndStep[S]
}

// DefaultSuccessorStates builds one state per successor at position
// (successor.Block.Start, 0), using build to construct a state from a
// Position. This is the "fresh state at every successor's start offset"
// default OnBlockEnd implementations can fall back on.
func DefaultSuccessorStates[S comparable](successors []Successor, build func(Position) S) []S {
	states := make([]S, 0, len(successors))
	for _, s := range successors {
		states = append(states, build(Position{BlockStart: s.Block.Start, InstructionIndex: 0}))
	}
	return states
}

// Run drives sem's fixed-point loop to completion over method and returns
// every finding emitted along the way, in visitation order.
//
// The loop is deterministic and single-threaded: a FIFO queue of states is
// popped from the front, canonicalized, and dropped if already visited;
// otherwise the instruction (or block-end) at its position runs, its
// findings are collected, and any next-states it produces are appended to
// the back of the queue. Termination follows from the visited set being
// bounded by (block_start, instruction_index, domain_state), which is
// finite as long as a rule's own state carries a finite lattice.
func Run[S comparable](method *ir.Method, sem Semantics[S]) []Finding {
	if len(method.CFG) == 0 {
		return nil
	}

	blockByStart := make(map[int]*ir.BasicBlock, len(method.CFG))
	for _, b := range method.CFG {
		blockByStart[b.Start] = b
	}
	successorsByStart := indexSuccessors(method)

	var findings []Finding
	visited := make(map[S]struct{})
	queue := append([]S(nil), sem.InitialStates(method)...)

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		state = sem.Canonicalize(state)
		if _, ok := visited[state]; ok {
			continue
		}
		visited[state] = struct{}{}

		pos := sem.Position(state)
		block, ok := blockByStart[pos.BlockStart]
		if !ok {
			continue
		}

		if pos.InstructionIndex >= len(block.Instructions) {
			step := sem.OnBlockEnd(method, state, successorsByStart[block.Start])
			findings = append(findings, step.Findings...)
			queue = append(queue, step.NextStates...)
			continue
		}

		inst := block.Instructions[pos.InstructionIndex]
		step := sem.TransferInstruction(method, inst, state)
		findings = append(findings, step.Findings...)
		if step.Terminate {
			continue
		}
		queue = append(queue, step.NextState)
	}

	return findings
}

func indexSuccessors(method *ir.Method) map[int][]Successor {
	blockByStart := make(map[int]*ir.BasicBlock, len(method.CFG))
	for _, b := range method.CFG {
		blockByStart[b.Start] = b
	}

	out := make(map[int][]Successor, len(method.CFG))
	for _, e := range method.Edges {
		target, ok := blockByStart[e.To]
		if !ok {
			continue
		}
		out[e.From] = append(out[e.From], Successor{Block: target, Kind: e.Kind})
	}
	for start := range out {
		sort.Slice(out[start], func(i, j int) bool {
			if out[start][i].Block.Start != out[start][j].Block.Start {
				return out[start][i].Block.Start < out[start][j].Block.Start
			}
			return out[start][i].Kind < out[start][j].Kind
		})
	}
	return out
}
