package rules

import (
	"strings"

	"github.com/exoego/inspequte-sub000/bytecode"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/opcodes"
	"github.com/exoego/inspequte-sub000/stackmachine"
	"github.com/exoego/inspequte-sub000/typeuse"
)

// MutateUnmodifiableCollectionRule flags calls to a mutator method
// (add, put, remove, ...) on a receiver that was just produced by a
// known unmodifiable-collection factory, which always throws
// UnsupportedOperationException at runtime.
type MutateUnmodifiableCollectionRule struct{}

func (MutateUnmodifiableCollectionRule) Metadata() Metadata {
	return Metadata{
		ID:          "MUTATE_UNMODIFIABLE_COLLECTION",
		Name:        "Mutate unmodifiable collection",
		Description: "A collection produced by an unmodifiable factory is later mutated",
	}
}

type collectionKind int

const (
	collectionUnknown collectionKind = iota
	collectionUnmodifiable
)

type collectionDomain struct{}

func (collectionDomain) UnknownValue() collectionKind { return collectionUnknown }
func (collectionDomain) ScalarValue() collectionKind  { return collectionUnknown }

var unmodifiableFactories = map[ownerName]bool{
	{"java/util/List", "of"}:          true,
	{"java/util/List", "copyOf"}:      true,
	{"java/util/Set", "of"}:           true,
	{"java/util/Set", "copyOf"}:       true,
	{"java/util/Map", "of"}:           true,
	{"java/util/Map", "ofEntries"}:    true,
	{"java/util/Map", "copyOf"}:       true,
	{"java/util/Collections", "unmodifiableList"}:       true,
	{"java/util/Collections", "unmodifiableSet"}:        true,
	{"java/util/Collections", "unmodifiableMap"}:        true,
	{"java/util/Collections", "unmodifiableCollection"}: true,
	{"java/util/Collections", "unmodifiableSortedSet"}:  true,
	{"java/util/Collections", "unmodifiableSortedMap"}:  true,
	{"java/util/Collections", "emptyList"}:               true,
	{"java/util/Collections", "emptySet"}:                true,
	{"java/util/Collections", "emptyMap"}:                true,
	{"java/util/Collections", "singletonList"}:           true,
	{"java/util/Collections", "singleton"}:               true,
	{"java/util/Collections", "singletonMap"}:            true,
	{"java/util/stream/Stream", "toList"}:                true,
}

var unmodifiableMutators = map[string]bool{
	"add": true, "addAll": true, "addFirst": true, "addLast": true,
	"clear": true, "compute": true, "computeIfAbsent": true, "computeIfPresent": true,
	"merge": true, "put": true, "putAll": true, "putIfAbsent": true,
	"remove": true, "removeAll": true, "removeIf": true, "removeFirst": true, "removeLast": true,
	"replace": true, "replaceAll": true, "retainAll": true, "set": true, "sort": true,
}

func isJavaUtilCollectionOwner(owner string) bool {
	return strings.HasPrefix(owner, "java/util/")
}

func (MutateUnmodifiableCollectionRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			if !method.HasBody() {
				continue
			}
			results = append(results, analyzeMutateUnmodifiableCollection(ctx, class, method)...)
		}
	}
	return results, nil
}

func analyzeMutateUnmodifiableCollection(ctx *Context, class *ir.Class, method *ir.Method) []Result {
	callsByOffset := make(map[int]*ir.CallSite, len(method.Calls))
	for _, call := range method.Calls {
		callsByOffset[call.Offset] = call
	}

	var results []Result
	transfer := opcodes.New[collectionKind](collectionDomain{})
	transfer.Pre = func(m *stackmachine.Machine[collectionKind], meth *ir.Method, inst *ir.Instruction) opcodes.Outcome {
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
		for i := 0; i < argCount; i++ {
			m.Pop()
		}

		receiver := collectionUnknown
		if call.Kind != ir.Static {
			receiver = m.Pop()
		}

		if isJavaUtilCollectionOwner(call.Owner) && unmodifiableMutators[call.Name] && receiver == collectionUnmodifiable {
			message := "Unmodifiable collection is mutated in " + class.Name + "." + meth.Name + meth.Descriptor +
				"; create a mutable copy before calling " + call.Name + "()."
			results = append(results, methodResult("MUTATE_UNMODIFIABLE_COLLECTION", message, ctx, class, meth, inst.Offset))
		}

		if !isVoid {
			if unmodifiableFactories[ownerName{call.Owner, call.Name}] {
				m.Push(collectionUnmodifiable)
			} else {
				m.Push(collectionUnknown)
			}
		}
		return opcodes.Applied
	}

	machine := stackmachine.New[collectionKind](collectionUnknown)
	code := method.Bytecode
	for _, inst := range method.Instructions {
		transfer.Apply(machine, method, inst, code)
	}
	return results
}

func isInvokeOpcode(op byte) bool {
	return op == bytecode.OpInvokevirtual || op == bytecode.OpInvokespecial ||
		op == bytecode.OpInvokestatic || op == bytecode.OpInvokeinterface
}
