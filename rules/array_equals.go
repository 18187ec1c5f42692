package rules

import (
	"github.com/exoego/inspequte-sub000/bytecode"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/typeuse"
)

// ArrayEqualsRule flags array comparisons performed with == (if_acmp*)
// instead of Arrays.equals, a common correctness mistake since arrays
// never override Object.equals.
type ArrayEqualsRule struct{}

func (ArrayEqualsRule) Metadata() Metadata {
	return Metadata{
		ID:          "ARRAY_EQUALS",
		Name:        "Array equals",
		Description: "Array comparisons using == (reference equality)",
	}
}

type arrayValueKind int

const (
	arrayUnknown arrayValueKind = iota
	arrayIsArray
	arrayNotArray
)

func (ArrayEqualsRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			if !method.HasBody() {
				continue
			}
			results = append(results, analyzeArrayEqualsMethod(ctx, class, method)...)
		}
	}
	return results, nil
}

func analyzeArrayEqualsMethod(ctx *Context, class *ir.Class, method *ir.Method) []Result {
	callsByOffset := make(map[int]*ir.CallSite, len(method.Calls))
	for _, call := range method.Calls {
		callsByOffset[call.Offset] = call
	}

	var results []Result
	var stack []arrayValueKind
	locals := make(map[int]arrayValueKind)

	pop := func() arrayValueKind {
		if len(stack) == 0 {
			return arrayUnknown
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	code := method.Bytecode
	for _, inst := range method.Instructions {
		op := inst.Opcode
		switch {
		case op >= 0x02 && op <= 0x11: // iconst_m1..sipush: scalar constants
			stack = append(stack, arrayNotArray)
		case op == bytecode.OpAconstNull:
			stack = append(stack, arrayUnknown)
		case op == bytecode.OpAload || (op >= 0x2a && op <= 0x2d):
			idx, ok := bytecode.LocalIndex(code, inst.Offset)
			if !ok {
				stack = append(stack, arrayUnknown)
				continue
			}
			stack = append(stack, locals[idx])
		case op == bytecode.OpAstore || (op >= 0x4b && op <= 0x4e):
			idx, ok := bytecode.LocalIndex(code, inst.Offset)
			if ok {
				locals[idx] = pop()
			}
		case op == bytecode.OpNewarray || op == bytecode.OpAnewarray:
			pop()
			stack = append(stack, arrayIsArray)
		case op == bytecode.OpMultianewarray:
			dims := int(code[inst.Offset+3])
			for i := 0; i < dims; i++ {
				pop()
			}
			stack = append(stack, arrayIsArray)
		case op == bytecode.OpNew:
			stack = append(stack, arrayNotArray)
		case op == bytecode.OpLdc || op == bytecode.OpLdcW || op == bytecode.OpLdc2W:
			stack = append(stack, arrayNotArray)
		case op == 0x59: // dup
			if len(stack) > 0 {
				stack = append(stack, stack[len(stack)-1])
			}
		case op == 0x57: // pop
			pop()
		case op == 0xa5 || op == 0xa6: // if_acmpeq, if_acmpne
			right := pop()
			left := pop()
			if left == arrayIsArray && right == arrayIsArray {
				message := "Array comparison uses reference equality: " + class.Name + "." + method.Name + method.Descriptor
				results = append(results, methodResult("ARRAY_EQUALS", message, ctx, class, method, inst.Offset))
			}
		case bytecode.IsConditionalBranch(op):
			pop()
			if op >= 0x9f && op <= 0xa6 {
				pop()
			}
		case op == bytecode.OpInvokevirtual || op == bytecode.OpInvokespecial || op == bytecode.OpInvokeinterface || op == bytecode.OpInvokestatic:
			call, ok := callsByOffset[inst.Offset]
			if !ok {
				continue
			}
			argCount := 0
			isVoid := false
			if params, ret, err := typeuse.ParseMethodDescriptor(call.Descriptor); err == nil {
				argCount = len(params)
				isVoid = ret.Tag == ir.TUVoid
			}
			for i := 0; i < argCount; i++ {
				pop()
			}
			if call.Kind != ir.Static {
				pop()
			}
			if !isVoid {
				stack = append(stack, arrayUnknown)
			}
		}
	}
	return results
}
