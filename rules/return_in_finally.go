package rules

import "github.com/exoego/inspequte-sub000/ir"

// ReturnInFinallyRule flags a return inside a finally block, which
// silently discards any exception or return value the try block produced.
type ReturnInFinallyRule struct{}

func (ReturnInFinallyRule) Metadata() Metadata {
	return Metadata{
		ID:          "RETURN_IN_FINALLY",
		Name:        "Return in finally",
		Description: "A finally block returns, overriding exceptions or prior returns",
	}
}

const returnInFinallyMessage = "Return in finally overrides exceptions or prior returns. Move the return outside the finally block or return after the try/finally."

var returnOpcodes = map[byte]bool{
	0xac: true, // ireturn
	0xad: true, // lreturn
	0xae: true, // freturn
	0xaf: true, // dreturn
	0xb0: true, // areturn
	0xb1: true, // return
}

func (ReturnInFinallyRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			results = append(results, analyzeReturnInFinally(ctx, class, method)...)
		}
	}
	return results, nil
}

func analyzeReturnInFinally(ctx *Context, class *ir.Class, method *ir.Method) []Result {
	blockByStart := make(map[int]*ir.BasicBlock, len(method.CFG))
	for _, block := range method.CFG {
		blockByStart[block.Start] = block
	}
	successors := make(map[int][]int)
	for _, edge := range method.Edges {
		successors[edge.From] = append(successors[edge.From], edge.To)
	}

	var results []Result
	seenOffsets := make(map[int]bool)
	for _, handler := range method.ExceptionTable {
		if handler.CatchType != "" {
			continue
		}
		for _, offset := range returnOffsetsReachableFrom(handler.HandlerPC, blockByStart, successors) {
			if seenOffsets[offset] {
				continue
			}
			seenOffsets[offset] = true
			results = append(results, methodResult("RETURN_IN_FINALLY", returnInFinallyMessage, ctx, class, method, offset))
		}
	}
	return results
}

func returnOffsetsReachableFrom(start int, blockByStart map[int]*ir.BasicBlock, successors map[int][]int) []int {
	var offsets []int
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
		for _, inst := range block.Instructions {
			if returnOpcodes[inst.Opcode] {
				offsets = append(offsets, inst.Offset)
			}
		}
		queue = append(queue, successors[cur]...)
	}
	return offsets
}
