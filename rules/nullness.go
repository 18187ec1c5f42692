package rules

import (
	"strconv"

	"github.com/exoego/inspequte-sub000/bytecode"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/opcodes"
	"github.com/exoego/inspequte-sub000/stackmachine"
	"github.com/exoego/inspequte-sub000/typeuse"
	"github.com/exoego/inspequte-sub000/worklist"
)

// NullnessRule checks JSpecify nullness two ways: statically, that an
// override doesn't narrow an inherited parameter's accepted null or widen
// an inherited return type's nullability; and over the method body, that
// no call site, field access, or array-length dereferences a value the
// analysis can prove is Nullable, and no @NonNull-declared method returns
// a value it can prove is Nullable.
type NullnessRule struct{}

func (NullnessRule) Metadata() Metadata {
	return Metadata{
		ID:          "NULLNESS",
		Name:        "Nullness contract violation",
		Description: "Overrides that weaken a nullness contract, or code that dereferences a provably-null value",
	}
}

func (NullnessRule) Run(ctx *Context) ([]Result, error) {
	classByName := make(map[string]*ir.Class, len(ctx.Classes))
	for _, class := range ctx.Classes {
		classByName[class.Name] = class
	}
	methodsByID := make(map[ir.MethodId]*ir.Method)
	for _, class := range ctx.Classes {
		for _, method := range class.Methods {
			methodsByID[method.Id(class.Name)] = method
		}
	}

	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			results = append(results, checkOverrideNullness(ctx, class, method, classByName)...)
			if method.HasBody() {
				results = append(results, analyzeNullnessFlow(ctx, class, method, methodsByID)...)
			}
		}
	}
	return results, nil
}

// checkOverrideNullness compares method against every ancestor
// declaration it overrides, not only the nearest one. Parameters are contravariant (an override may
// not start rejecting null its supertype accepted); the return type is
// covariant (an override may not start returning null its supertype
// promised not to). Descriptor matching ignores generic specialization, so
// a bridge-method mismatch in parameter count is treated as "no match"
// rather than misreported.
func checkOverrideNullness(ctx *Context, class *ir.Class, method *ir.Method, classByName map[string]*ir.Class) []Result {
	if method.IsStatic() || method.Name == "<init>" || method.Name == "<clinit>" {
		return nil
	}
	var results []Result
	for _, ancestorName := range ancestorChain(class, classByName) {
		ancestor, ok := classByName[ancestorName]
		if !ok {
			continue
		}
		for _, superMethod := range ancestor.Methods {
			if superMethod.Name != method.Name || superMethod.Descriptor != method.Descriptor {
				continue
			}
			if superMethod.IsStatic() || superMethod.AccessFlags.Has(ir.AccPrivate) {
				continue
			}
			results = append(results, compareOverrideNullness(ctx, class, method, ancestor, superMethod)...)
		}
	}
	return results
}

func compareOverrideNullness(ctx *Context, class *ir.Class, method *ir.Method, ancestor *ir.Class, superMethod *ir.Method) []Result {
	var results []Result
	if superMethod.Nullness.Return == ir.NonNull && method.Nullness.Return == ir.Nullable {
		message := "Nullness issue: " + class.Name + "." + method.Name + method.Descriptor +
			" returns @Nullable but overrides @NonNull " + ancestor.Name + "." + superMethod.Name + superMethod.Descriptor
		results = append(results, methodResult("NULLNESS", message, ctx, class, method, 0))
	}
	n := len(superMethod.Nullness.Parameters)
	if len(method.Nullness.Parameters) < n {
		n = len(method.Nullness.Parameters)
	}
	for i := 0; i < n; i++ {
		if superMethod.Nullness.Parameters[i] == ir.Nullable && method.Nullness.Parameters[i] == ir.NonNull {
			message := "Nullness issue: " + class.Name + "." + method.Name + method.Descriptor +
				" parameter " + strconv.Itoa(i) + " is @NonNull but overrides @Nullable " + ancestor.Name + "." + superMethod.Name + superMethod.Descriptor
			results = append(results, methodResult("NULLNESS", message, ctx, class, method, 0))
		}
	}
	return results
}

func ancestorChain(class *ir.Class, classByName map[string]*ir.Class) []string {
	var chain []string
	visited := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		if name == "" || visited[name] {
			return
		}
		visited[name] = true
		chain = append(chain, name)
		ancestor, ok := classByName[name]
		if !ok {
			return
		}
		visit(ancestor.SuperName)
		for _, iface := range ancestor.Interfaces {
			visit(iface)
		}
	}
	visit(class.SuperName)
	for _, iface := range class.Interfaces {
		visit(iface)
	}
	return chain
}

type nullnessDomain struct{}

func (nullnessDomain) UnknownValue() ir.Nullness { return ir.Unknown }
func (nullnessDomain) ScalarValue() ir.Nullness  { return ir.NonNull }

// nullnessFlowState is one worklist program point: the position plus a
// byte-packed snapshot of every tracked local slot's and operand stack
// slot's nullness (one byte per slot, in ir.Nullness's own numbering).
// Packing into strings keeps the state comparable, as worklist.Semantics
// requires for its visited set.
type nullnessFlowState struct {
	pos    worklist.Position
	locals string
	stack  string
}

func encodeNullnessSlice(vs []ir.Nullness) string {
	if len(vs) == 0 {
		return ""
	}
	b := make([]byte, len(vs))
	for i, v := range vs {
		b[i] = byte(v)
	}
	return string(b)
}

func decodeNullnessSlice(s string) []ir.Nullness {
	if s == "" {
		return nil
	}
	vs := make([]ir.Nullness, len(s))
	for i := 0; i < len(s); i++ {
		vs[i] = ir.Nullness(s[i])
	}
	return vs
}

// nullnessFlowSemantics drives the worklist engine over one method: local
// slots are joined at block entry with JoinNullness so every path into a
// shared block converges onto one nullness vector rather than forking the
// visited set per path, and ifnull/ifnonnull/if_acmpeq/if_acmpne against a
// directly-loaded local narrow that local to NonNull on whichever outgoing
// edge proves it isn't null. The operand stack is tracked only within a
// block and reset empty at every block entry, since verified bytecode
// carries an empty stack across block boundaries for the shapes this rule
// cares about.
type nullnessFlowSemantics struct {
	class         *ir.Class
	methodsByID   map[ir.MethodId]*ir.Method
	callsByOffset map[int]*ir.CallSite

	entryLocals map[int][]ir.Nullness
}

func (s *nullnessFlowSemantics) InitialStates(method *ir.Method) []nullnessFlowState {
	locals := make([]ir.Nullness, method.MaxLocals)
	slot := 0
	if !method.IsStatic() {
		if len(locals) > 0 {
			locals[0] = ir.NonNull // this is never null
		}
		slot = 1
	}
	for _, p := range method.Nullness.Parameters {
		if slot >= len(locals) {
			break
		}
		locals[slot] = p
		slot++ // approximates each parameter to one slot; long/double widen the true index
	}
	start := method.CFG[0].Start
	s.entryLocals[start] = locals
	return []nullnessFlowState{{
		pos:    worklist.Position{BlockStart: start, InstructionIndex: 0},
		locals: encodeNullnessSlice(locals),
	}}
}

func (s *nullnessFlowSemantics) Canonicalize(state nullnessFlowState) nullnessFlowState {
	return state
}

func (s *nullnessFlowSemantics) Position(state nullnessFlowState) worklist.Position {
	return state.pos
}

func (s *nullnessFlowSemantics) TransferInstruction(method *ir.Method, inst *ir.Instruction, state nullnessFlowState) worklist.InstructionStep[nullnessFlowState] {
	locals := decodeNullnessSlice(state.locals)
	machine := stackmachine.New[ir.Nullness](ir.Unknown)
	for _, v := range decodeNullnessSlice(state.stack) {
		machine.Push(v)
	}

	var findings []worklist.Finding
	transfer := opcodes.New[ir.Nullness](nullnessDomain{})
	transfer.Pre = func(m *stackmachine.Machine[ir.Nullness], meth *ir.Method, in *ir.Instruction) opcodes.Outcome {
		switch {
		case in.Opcode == bytecode.OpAconstNull:
			m.Push(ir.Nullable)
			return opcodes.Applied

		case isObjectLoadOpcode(in.Opcode):
			idx, ok := bytecode.LocalIndex(meth.Bytecode, in.Offset)
			if !ok || idx >= len(locals) {
				m.Push(ir.Unknown)
				return opcodes.Applied
			}
			m.Push(locals[idx])
			return opcodes.Applied

		case isObjectStoreOpcode(in.Opcode):
			v := m.Pop()
			if idx, ok := bytecode.LocalIndex(meth.Bytecode, in.Offset); ok && idx < len(locals) {
				locals[idx] = v
			}
			return opcodes.Applied

		case in.Opcode == bytecode.OpGetfield || in.Opcode == 0xbe: // getfield, arraylength
			if m.Peek() == ir.Nullable {
				findings = append(findings, worklist.Finding{Message: nullReceiverMessage(s.class, meth), Offset: in.Offset})
			}
			return opcodes.NotHandled

		case in.Opcode == bytecode.OpPutfield:
			values := m.StackValues()
			if len(values) >= 2 && values[len(values)-2] == ir.Nullable {
				findings = append(findings, worklist.Finding{Message: nullReceiverMessage(s.class, meth), Offset: in.Offset})
			}
			return opcodes.NotHandled

		case in.Opcode == 0xb0: // areturn
			if m.Peek() == ir.Nullable && meth.Nullness.Return == ir.NonNull {
				findings = append(findings, worklist.Finding{Message: nullReturnMessage(s.class, meth), Offset: in.Offset})
			}
			return opcodes.NotHandled

		case isInvokeOpcode(in.Opcode):
			return s.applyInvokeNullness(meth, in, m, &findings)
		}
		return opcodes.NotHandled
	}
	transfer.Apply(machine, method, inst, method.Bytecode)

	next := nullnessFlowState{
		pos:    worklist.Position{BlockStart: state.pos.BlockStart, InstructionIndex: state.pos.InstructionIndex + 1},
		locals: encodeNullnessSlice(locals),
		stack:  encodeNullnessSlice(machine.StackValues()),
	}
	return worklist.InstructionStep[nullnessFlowState]{Findings: findings, NextState: next}
}

func (s *nullnessFlowSemantics) OnBlockEnd(method *ir.Method, state nullnessFlowState, successors []worklist.Successor) worklist.BlockEndStep[nullnessFlowState] {
	if len(successors) == 0 {
		return worklist.BlockEndStep[nullnessFlowState]{}
	}

	refineLocal, refineOpcode, refine := -1, byte(0), false
	if block := blockByStartOffset(method.CFG, state.pos.BlockStart); block != nil {
		if idx, op, ok := nullCheckRefinement(block, method.Bytecode); ok {
			refineLocal, refineOpcode, refine = idx, op, true
		}
	}

	next := make([]nullnessFlowState, 0, len(successors))
	for _, succ := range successors {
		locals := decodeNullnessSlice(state.locals)
		if refine && refineLocal < len(locals) && succ.Kind == notNullEdge(refineOpcode) {
			locals = append([]ir.Nullness(nil), locals...)
			locals[refineLocal] = ir.NonNull
		}
		joined := s.joinEntry(succ.Block.Start, locals)
		next = append(next, nullnessFlowState{
			pos:    worklist.Position{BlockStart: succ.Block.Start, InstructionIndex: 0},
			locals: encodeNullnessSlice(joined),
		})
	}
	return worklist.BlockEndStep[nullnessFlowState]{NextStates: next}
}

// joinEntry merges incoming against blockStart's previously recorded
// entry vector via ir.JoinNullness, records the merge, and returns it, so
// every path reaching the same block converges onto one nullness vector
// instead of the visited set forking a separate entry per path.
func (s *nullnessFlowSemantics) joinEntry(blockStart int, incoming []ir.Nullness) []ir.Nullness {
	prior, ok := s.entryLocals[blockStart]
	if !ok {
		merged := append([]ir.Nullness(nil), incoming...)
		s.entryLocals[blockStart] = merged
		return merged
	}
	merged := make([]ir.Nullness, len(prior))
	for i := range merged {
		var b ir.Nullness
		if i < len(incoming) {
			b = incoming[i]
		}
		merged[i] = ir.JoinNullness(prior[i], b)
	}
	s.entryLocals[blockStart] = merged
	return merged
}

func (s *nullnessFlowSemantics) applyInvokeNullness(method *ir.Method, inst *ir.Instruction, m *stackmachine.Machine[ir.Nullness], findings *[]worklist.Finding) opcodes.Outcome {
	call, ok := s.callsByOffset[inst.Offset]
	if !ok {
		return opcodes.NotHandled
	}
	callee := s.methodsByID[ir.MethodId{ClassName: call.Owner, Name: call.Name, Descriptor: call.Descriptor}]

	argCount := 0
	isVoid := true
	if params, ret, err := typeuse.ParseMethodDescriptor(call.Descriptor); err == nil {
		argCount = len(params)
		isVoid = ret.Tag == ir.TUVoid
	}
	args := make([]ir.Nullness, argCount)
	for i := argCount - 1; i >= 0; i-- {
		args[i] = m.Pop()
	}
	if callee != nil {
		for i, arg := range args {
			if i < len(callee.Nullness.Parameters) && arg == ir.Nullable && callee.Nullness.Parameters[i] == ir.NonNull {
				*findings = append(*findings, worklist.Finding{Message: nullArgumentMessage(call), Offset: inst.Offset})
			}
		}
	}

	if call.Kind != ir.Static {
		receiver := m.Pop()
		if receiver == ir.Nullable && call.Name != "<init>" {
			*findings = append(*findings, worklist.Finding{Message: nullReceiverMessage(s.class, method), Offset: inst.Offset})
		}
	}

	returnNullness := ir.Unknown
	if callee != nil {
		returnNullness = callee.Nullness.Return
	}
	if !isVoid {
		m.Push(returnNullness)
	}
	return opcodes.Applied
}

// nullCheckRefinement inspects block's terminating instruction for an
// ifnull/ifnonnull/if_acmpeq/if_acmpne comparison fed directly by a
// aload/aload_N of a local (if_acmp* only when the other operand is the
// null literal), returning that local's slot and the comparison opcode.
func nullCheckRefinement(block *ir.BasicBlock, code []byte) (local int, opcode byte, ok bool) {
	n := len(block.Instructions)
	if n == 0 {
		return 0, 0, false
	}
	last := block.Instructions[n-1]
	switch last.Opcode {
	case bytecode.OpIfnull, bytecode.OpIfnonnull:
		if n < 2 {
			return 0, 0, false
		}
		if idx, found := directObjectLocal(block.Instructions[n-2], code); found {
			return idx, last.Opcode, true
		}
	case 0xa5, 0xa6: // if_acmpeq, if_acmpne
		if n < 3 {
			return 0, 0, false
		}
		a, b := block.Instructions[n-3], block.Instructions[n-2]
		if b.Opcode == bytecode.OpAconstNull {
			if idx, found := directObjectLocal(a, code); found {
				return idx, last.Opcode, true
			}
		}
		if a.Opcode == bytecode.OpAconstNull {
			if idx, found := directObjectLocal(b, code); found {
				return idx, last.Opcode, true
			}
		}
	}
	return 0, 0, false
}

func directObjectLocal(inst *ir.Instruction, code []byte) (int, bool) {
	if !isObjectLoadOpcode(inst.Opcode) {
		return 0, false
	}
	return bytecode.LocalIndex(code, inst.Offset)
}

func isObjectLoadOpcode(op byte) bool {
	return op == bytecode.OpAload || (op >= 0x2a && op <= 0x2d)
}

func isObjectStoreOpcode(op byte) bool {
	return op == bytecode.OpAstore || (op >= 0x4b && op <= 0x4e)
}

// notNullEdge reports which successor edge kind is reached only when the
// compared value is proven not to be null.
func notNullEdge(opcode byte) ir.EdgeKind {
	switch opcode {
	case bytecode.OpIfnonnull, 0xa6: // ifnonnull, if_acmpne
		return ir.Branch
	default: // ifnull, if_acmpeq
		return ir.FallThrough
	}
}

func blockByStartOffset(blocks []*ir.BasicBlock, start int) *ir.BasicBlock {
	for _, b := range blocks {
		if b.Start == start {
			return b
		}
	}
	return nil
}

// analyzeNullnessFlow runs the worklist engine's join-lattice fixed point
// over method, seeded at its entry block with this/parameters, and flags
// the program points where a provably-null value is dereferenced or
// returned.
func analyzeNullnessFlow(ctx *Context, class *ir.Class, method *ir.Method, methodsByID map[ir.MethodId]*ir.Method) []Result {
	callsByOffset := make(map[int]*ir.CallSite, len(method.Calls))
	for _, call := range method.Calls {
		callsByOffset[call.Offset] = call
	}
	sem := &nullnessFlowSemantics{
		class:         class,
		methodsByID:   methodsByID,
		callsByOffset: callsByOffset,
		entryLocals:   make(map[int][]ir.Nullness),
	}

	var results []Result
	for _, finding := range worklist.Run[nullnessFlowState](method, sem) {
		results = append(results, methodResult("NULLNESS", finding.Message, ctx, class, method, finding.Offset))
	}
	return results
}

func nullReceiverMessage(class *ir.Class, method *ir.Method) string {
	return "Nullness issue: possible null receiver in " + class.Name + "." + method.Name + method.Descriptor
}

func nullReturnMessage(class *ir.Class, method *ir.Method) string {
	return "Nullness issue: " + class.Name + "." + method.Name + method.Descriptor + " returns null but is @NonNull"
}

func nullArgumentMessage(call *ir.CallSite) string {
	return "Nullness issue: possible null argument to @NonNull parameter of " + call.Owner + "." + call.Name + call.Descriptor
}
