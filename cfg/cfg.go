// Package cfg partitions a method's decoded instructions into basic blocks
// and links them with typed control-flow edges (fall-through, branch,
// exception), following the boundary rules of the JVM's structured
// exception-handling model.
package cfg

import (
	"fmt"
	"sort"

	"github.com/exoego/inspequte-sub000/bytecode"
	"github.com/exoego/inspequte-sub000/ir"
)

// Build computes method.CFG and method.Edges from method.Instructions,
// method.Bytecode, and method.ExceptionTable. It is a no-op (returns nil)
// for abstract/native methods carrying no Code attribute.
func Build(method *ir.Method) error {
	if !method.HasBody() {
		return nil
	}

	codeLen := len(method.Bytecode)
	instrByOffset := make(map[int]*ir.Instruction, len(method.Instructions))
	for _, inst := range method.Instructions {
		instrByOffset[inst.Offset] = inst
	}

	boundaries := map[int]struct{}{0: {}, codeLen: {}}

	for i, inst := range method.Instructions {
		var nextOffset int
		if i+1 < len(method.Instructions) {
			nextOffset = method.Instructions[i+1].Offset
		} else {
			nextOffset = codeLen
		}

		switch {
		case bytecode.IsConditionalBranch(inst.Opcode):
			target := bytecode.BranchTarget(method.Bytecode, inst.Offset)
			if err := requireBoundary(instrByOffset, target); err != nil {
				return fmt.Errorf("method %s%s: %w", method.Name, method.Descriptor, err)
			}
			boundaries[target] = struct{}{}
			boundaries[nextOffset] = struct{}{}
		case bytecode.IsUnconditionalBranch(inst.Opcode):
			target := bytecode.BranchTarget(method.Bytecode, inst.Offset)
			if err := requireBoundary(instrByOffset, target); err != nil {
				return fmt.Errorf("method %s%s: %w", method.Name, method.Descriptor, err)
			}
			boundaries[target] = struct{}{}
			boundaries[nextOffset] = struct{}{}
		case bytecode.IsSwitch(inst.Opcode):
			def, cases, err := bytecode.SwitchTargets(method.Bytecode, inst.Offset)
			if err != nil {
				return fmt.Errorf("method %s%s: %w", method.Name, method.Descriptor, err)
			}
			if err := requireBoundary(instrByOffset, def); err != nil {
				return fmt.Errorf("method %s%s: %w", method.Name, method.Descriptor, err)
			}
			boundaries[def] = struct{}{}
			for _, c := range cases {
				if err := requireBoundary(instrByOffset, c); err != nil {
					return fmt.Errorf("method %s%s: %w", method.Name, method.Descriptor, err)
				}
				boundaries[c] = struct{}{}
			}
			boundaries[nextOffset] = struct{}{}
		case bytecode.IsTerminator(inst.Opcode):
			boundaries[nextOffset] = struct{}{}
		}
	}

	for _, h := range method.ExceptionTable {
		boundaries[h.HandlerPC] = struct{}{}
		boundaries[h.EndPC] = struct{}{}
		boundaries[h.StartPC] = struct{}{}
	}

	sorted := make([]int, 0, len(boundaries))
	for b := range boundaries {
		if b >= 0 && b <= codeLen {
			sorted = append(sorted, b)
		}
	}
	sort.Ints(sorted)

	blocks := make([]*ir.BasicBlock, 0, len(sorted))
	blockByStart := make(map[int]*ir.BasicBlock, len(sorted))
	for i := 0; i < len(sorted)-1; i++ {
		start, end := sorted[i], sorted[i+1]
		if start == end {
			continue
		}
		block := &ir.BasicBlock{Start: start, End: end}
		blocks = append(blocks, block)
		blockByStart[start] = block
	}

	for _, inst := range method.Instructions {
		block := blockForOffset(blocks, inst.Offset)
		if block != nil {
			block.Instructions = append(block.Instructions, inst)
		}
	}

	edges := buildEdges(method, blocks, blockByStart)

	method.CFG = blocks
	method.Edges = edges
	return nil
}

func requireBoundary(instrByOffset map[int]*ir.Instruction, target int) error {
	if _, ok := instrByOffset[target]; !ok {
		return fmt.Errorf("%w: offset %d", ErrInvalidTarget, target)
	}
	return nil
}

// blockForOffset finds the block containing offset via binary search;
// blocks is sorted by Start since it was built from a sorted boundary list.
func blockForOffset(blocks []*ir.BasicBlock, offset int) *ir.BasicBlock {
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].Start > offset })
	if i == 0 {
		return nil
	}
	candidate := blocks[i-1]
	if offset >= candidate.Start && offset < candidate.End {
		return candidate
	}
	return nil
}

func buildEdges(method *ir.Method, blocks []*ir.BasicBlock, blockByStart map[int]*ir.BasicBlock) []*ir.FlowEdge {
	type edgeKey struct {
		from, to int
		kind     ir.EdgeKind
	}
	seen := make(map[edgeKey]struct{})
	var edges []*ir.FlowEdge
	add := func(from, to int, kind ir.EdgeKind) {
		k := edgeKey{from, to, kind}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		edges = append(edges, &ir.FlowEdge{From: from, To: to, Kind: kind})
	}

	for i, block := range blocks {
		if len(block.Instructions) == 0 {
			continue
		}
		last := block.Instructions[len(block.Instructions)-1]
		var nextBlockStart int
		hasNext := i+1 < len(blocks)
		if hasNext {
			nextBlockStart = blocks[i+1].Start
		}

		switch {
		case bytecode.IsConditionalBranch(last.Opcode):
			target := bytecode.BranchTarget(method.Bytecode, last.Offset)
			add(block.Start, target, ir.Branch)
			if hasNext {
				add(block.Start, nextBlockStart, ir.FallThrough)
			}
		case bytecode.IsUnconditionalBranch(last.Opcode):
			target := bytecode.BranchTarget(method.Bytecode, last.Offset)
			add(block.Start, target, ir.Branch)
		case bytecode.IsSwitch(last.Opcode):
			def, cases, err := bytecode.SwitchTargets(method.Bytecode, last.Offset)
			if err == nil {
				add(block.Start, def, ir.Branch)
				for _, c := range cases {
					add(block.Start, c, ir.Branch)
				}
			}
		case bytecode.IsTerminator(last.Opcode):
			// return/athrow/ret: no fall-through.
		default:
			if hasNext {
				add(block.Start, nextBlockStart, ir.FallThrough)
			}
		}
	}

	for _, h := range method.ExceptionTable {
		handlerBlock, ok := blockByStart[h.HandlerPC]
		if !ok {
			continue
		}
		for _, block := range blocks {
			if block.Start < h.EndPC && block.End > h.StartPC {
				add(block.Start, handlerBlock.Start, ir.Exception)
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}
