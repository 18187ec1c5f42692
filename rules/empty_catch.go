package rules

import "github.com/exoego/inspequte-sub000/ir"

// EmptyCatchRule flags catch/finally handlers whose block contains
// nothing but trivial bookkeeping opcodes — i.e. the exception is
// silently swallowed.
type EmptyCatchRule struct{}

func (EmptyCatchRule) Metadata() Metadata {
	return Metadata{
		ID:          "EMPTY_CATCH",
		Name:        "Empty catch block",
		Description: "Catch blocks with no meaningful instructions",
	}
}

func (EmptyCatchRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			blockByStart := make(map[int]*ir.BasicBlock, len(method.CFG))
			for _, block := range method.CFG {
				blockByStart[block.Start] = block
			}
			for _, handler := range method.ExceptionTable {
				block, ok := blockByStart[handler.HandlerPC]
				if !ok || !isTrivialHandlerBlock(block) {
					continue
				}
				message := "Empty catch block in " + class.Name + "." + method.Name + method.Descriptor
				results = append(results, methodResult("EMPTY_CATCH", message, ctx, class, method, handler.HandlerPC))
			}
		}
	}
	return results, nil
}

// trivialHandlerOpcodes are the opcodes that never observe or act on the
// caught exception: storing it, discarding it, and falling through.
var trivialHandlerOpcodes = map[byte]bool{
	0x00: true, // nop
	0x3a: true, // astore
	0x4b: true, // astore_0
	0x4c: true, // astore_1
	0x4d: true, // astore_2
	0x4e: true, // astore_3
	0x57: true, // pop
	0xa7: true, // goto
	0xa8: true, // jsr
	0xac: true, // ireturn
	0xad: true, // lreturn
	0xae: true, // freturn
	0xaf: true, // dreturn
	0xb0: true, // areturn
	0xb1: true, // return
	0xbf: true, // athrow
}

func isTrivialHandlerBlock(block *ir.BasicBlock) bool {
	for _, inst := range block.Instructions {
		if !trivialHandlerOpcodes[inst.Opcode] {
			return false
		}
	}
	return true
}
