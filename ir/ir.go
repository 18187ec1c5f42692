// Package ir holds the shared intermediate-representation types produced by
// the class-file reader, bytecode decoder, CFG builder and annotation
// assimilator, and consumed by the call graph, dataflow engine and rules.
package ir

// CallKind distinguishes the four JVM invoke dispatch forms.
type CallKind int

const (
	// Virtual is invokevirtual: dynamic dispatch over the declared owner
	// and every overriding subtype.
	Virtual CallKind = iota
	// Interface is invokeinterface: dynamic dispatch over implementors.
	Interface
	// Special is invokespecial: constructors, private methods, super calls.
	Special
	// Static is invokestatic: no receiver.
	Static
)

func (k CallKind) String() string {
	switch k {
	case Virtual:
		return "Virtual"
	case Interface:
		return "Interface"
	case Special:
		return "Special"
	case Static:
		return "Static"
	default:
		return "Unknown"
	}
}

// EdgeKind classifies a FlowEdge between two basic blocks.
type EdgeKind int

const (
	FallThrough EdgeKind = iota
	Branch
	Exception
)

func (k EdgeKind) String() string {
	switch k {
	case FallThrough:
		return "FallThrough"
	case Branch:
		return "Branch"
	case Exception:
		return "Exception"
	default:
		return "Unknown"
	}
}

// CallSite is a single invokeXxx instruction resolved against the
// constant pool, tagged with the dispatch kind implied by its opcode.
type CallSite struct {
	Owner      string // binary name of the declared receiver type
	Name       string
	Descriptor string
	Kind       CallKind
	Offset     int // bytecode offset of the invoke instruction
}

// InstructionKind is a tagged union over the semantic content the bytecode
// decoder extracts from an instruction beyond its raw opcode.
type InstructionKind struct {
	Tag InstructionTag

	Invoke      *CallSite
	InvokeDyn   *InvokeDynamic
	ConstString string
	ConstClass  string
	ConstInt    int32
	ConstFloat  float32
}

type InstructionTag int

const (
	KindOther InstructionTag = iota
	KindInvoke
	KindInvokeDynamic
	KindConstString
	KindConstClass
	KindConstInt
	KindConstFloat
)

// InvokeDynamic describes the statically-known part of an invokedynamic
// instruction: the call-site descriptor and, if recoverable from the
// bootstrap method's method handle, the lambda implementation's name.
type InvokeDynamic struct {
	Descriptor string
	ImplMethod string // empty when not recoverable
}

// Instruction is one decoded bytecode position.
type Instruction struct {
	Offset int
	Opcode byte
	Kind   InstructionKind
}

// BasicBlock is a maximal straight-line run of instructions over a
// half-open offset range [Start, End).
type BasicBlock struct {
	Start        int
	End          int
	Instructions []*Instruction
}

// FlowEdge connects two basic blocks identified by their Start offsets.
type FlowEdge struct {
	From int
	To   int
	Kind EdgeKind
}

// ExceptionHandler is one entry of a method's exception table.
type ExceptionHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType string // empty binary name means "any" (finally)
}

// LocalVariableType is one row of a method's LocalVariableTypeTable.
type LocalVariableType struct {
	StartPC   int
	Length    int
	Name      string
	Signature string
	Index     int
}

// LineNumberEntry maps a bytecode offset to a source line.
type LineNumberEntry struct {
	StartPC    int
	LineNumber int
}

// Nullness is the three-valued JSpecify nullness lattice.
type Nullness int

const (
	Unknown Nullness = iota
	Nullable
	NonNull
)

func (n Nullness) String() string {
	switch n {
	case Nullable:
		return "Nullable"
	case NonNull:
		return "NonNull"
	default:
		return "Unknown"
	}
}

// JoinNullness implements the lattice join: equal values are preserved,
// any disagreement collapses to Unknown.
func JoinNullness(a, b Nullness) Nullness {
	if a == b {
		return a
	}
	return Unknown
}

// TypeUseTag distinguishes the variants of the TypeUse recursive tree.
type TypeUseTag int

const (
	TUBase TypeUseTag = iota
	TUVoid
	TUArray
	TUClass
	TUTypeVar
	TUWildcard
)

// TypeUse is the recursive tree describing a single generic type usage,
// carrying a Nullness at every node so JSpecify type-use annotations can be
// attached to arbitrarily nested positions (array components, type
// arguments, wildcard bounds, inner classes).
type TypeUse struct {
	Tag      TypeUseTag
	Nullness Nullness

	Base string // for TUBase: one of BCDFIJSZ; for TUTypeVar: the variable name

	Array *TypeUse // for TUArray

	ClassName     string     // for TUClass: binary name
	TypeArguments []*TypeUse // for TUClass: generic type arguments
	Inner         *TypeUse   // for TUClass: enclosing-class inner type, if any

	WildcardBound *TypeUse // for TUWildcard: nil means unbounded
}

// MethodTypeUse bundles the structural type-use trees for a method's
// parameters and return type, plus its own type parameters.
type MethodTypeUse struct {
	Parameters []*TypeUse
	Return     *TypeUse
	TypeParams []string
}

// NullnessSummary is the flat per-method nullness fact: one value for the
// return type, one per formal parameter, independent of the structural
// TypeUse tree (used when no generic signature is present).
type NullnessSummary struct {
	Return     Nullness
	Parameters []Nullness
}

// BootstrapMethod is one entry of a class's BootstrapMethods attribute,
// resolved down to the method handle's target so invokedynamic call sites
// can recover a lambda's implementation method without re-reading the
// constant pool.
type BootstrapMethod struct {
	RefKind    byte
	Owner      string
	Name       string
	Descriptor string
}

// MethodId uniquely identifies a method irrespective of which CallEdge or
// index references it; equal by value so callers can share identity
// without a back-pointer graph.
type MethodId struct {
	ClassName  string
	Name       string
	Descriptor string
}

// CallEdge is one resolved edge of the CHA call graph.
type CallEdge struct {
	Caller MethodId
	Callee MethodId
	Kind   CallKind
	Offset int
}

// Method is one method inside a parsed class.
type Method struct {
	Name        string
	Descriptor  string
	Signature   string // generic signature, empty if absent
	AccessFlags AccessFlags

	// NullnessDefault is this method's own @NullMarked/@NullUnmarked
	// annotation, independent of its owning class's default.
	NullnessDefault NullnessDefault

	Nullness  NullnessSummary
	TypeUse   *MethodTypeUse // nil if no signature/annotations to build from
	Bytecode  []byte
	LineTable []LineNumberEntry

	// RawRuntimeVisibleAnnotations/RawRuntimeVisibleTypeAnnotations hold the
	// attribute body verbatim; typeuse decodes them lazily since decoding
	// requires the owning class's constant pool, which the reader does not
	// retain past Parse.
	RawRuntimeVisibleAnnotations     []byte
	RawRuntimeVisibleTypeAnnotations []byte

	// Instructions is the flat, offset-ordered decode output (bytecode
	// package). CFG partitions the same *Instruction pointers into blocks;
	// it is not a copy.
	Instructions []*Instruction
	CFG          []*BasicBlock
	Edges        []*FlowEdge
	Calls        []*CallSite
	Strings      []string

	ExceptionTable []ExceptionHandler
	LocalVarTypes  []LocalVariableType

	MaxStack  int
	MaxLocals int
}

func (m *Method) Id(className string) MethodId {
	return MethodId{ClassName: className, Name: m.Name, Descriptor: m.Descriptor}
}

// IsAbstract, IsStatic, IsPublic, IsSynthetic, IsBridge report on access flags.
func (m *Method) IsAbstract() bool  { return m.AccessFlags.Has(AccAbstract) }
func (m *Method) IsStatic() bool    { return m.AccessFlags.Has(AccStatic) }
func (m *Method) IsPublic() bool    { return m.AccessFlags.Has(AccPublic) }
func (m *Method) IsSynthetic() bool { return m.AccessFlags.Has(AccSynthetic) }
func (m *Method) IsBridge() bool    { return m.AccessFlags.Has(AccBridge) }

// HasBody reports whether this method carries a Code attribute.
func (m *Method) HasBody() bool { return len(m.Bytecode) > 0 }

// Field is one field inside a parsed class.
type Field struct {
	Name        string
	Descriptor  string
	Signature   string
	AccessFlags AccessFlags
	TypeUse     *TypeUse

	RawRuntimeVisibleAnnotations     []byte
	RawRuntimeVisibleTypeAnnotations []byte
}

// AccessFlags is the raw JVM access_flags bitmask with typed accessors.
type AccessFlags uint16

const (
	AccPublic    AccessFlags = 0x0001
	AccPrivate   AccessFlags = 0x0002
	AccProtected AccessFlags = 0x0004
	AccStatic    AccessFlags = 0x0008
	AccFinal     AccessFlags = 0x0010
	AccSuper     AccessFlags = 0x0020
	AccSync      AccessFlags = 0x0020 // ACC_SYNCHRONIZED shares the bit with ACC_SUPER on methods
	AccBridge    AccessFlags = 0x0040
	AccVarargs   AccessFlags = 0x0080
	AccVolatile  AccessFlags = 0x0040
	AccTransient AccessFlags = 0x0080
	AccNative    AccessFlags = 0x0100
	AccInterface AccessFlags = 0x0200
	AccAbstract  AccessFlags = 0x0400
	AccStrict    AccessFlags = 0x0800
	AccSynthetic AccessFlags = 0x1000
	AccAnnot     AccessFlags = 0x2000
	AccEnum      AccessFlags = 0x4000
	AccModule    AccessFlags = 0x8000
)

func (f AccessFlags) Has(bit AccessFlags) bool { return f&bit != 0 }

// NullnessDefault is the @NullMarked/@NullUnmarked effective default for a
// class or method, before explicit-annotation overrides are applied.
type NullnessDefault int

const (
	DefaultInherit NullnessDefault = iota
	DefaultNullMarked
	DefaultNullUnmarked
)

// Class is one parsed class file, immutable once produced by the scanner.
type Class struct {
	Name              string // binary (slash) form
	SourceFile        string // empty if absent
	SuperName         string // empty for java/lang/Object
	AccessFlags       AccessFlags
	Interfaces        []string
	Signature         string // generic class signature, empty if absent
	TypeParams        []string
	ReferencedClasses []string // sorted, deduplicated, excludes own name

	Fields  []*Field
	Methods []*Method

	ArtifactIndex int // -1 if not produced by the scanner (should not occur in practice)
	IsRecord      bool

	NullnessDefault NullnessDefault

	RawRuntimeVisibleAnnotations []byte
	BootstrapMethods             []BootstrapMethod

	// Minimal indicates this class was parsed by the minimal-parser
	// fallback (unrecognized attribute encountered): only structural
	// fields above are populated, Fields/Methods are empty.
	Minimal bool
}

// IsInterface reports whether this class is an interface type.
func (c *Class) IsInterface() bool { return c.AccessFlags.Has(AccInterface) }

// MethodByNameDescriptor returns the method with the given name and
// descriptor, or nil.
func (c *Class) MethodByNameDescriptor(name, descriptor string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// ArtifactRole tags the purpose of an Artifact within the scan.
type ArtifactRole string

const AnalysisTargetRole ArtifactRole = "analysisTarget"

// Artifact is one scanned input: a class file, a JAR, or a nested JAR.
type Artifact struct {
	URI         string
	Length      int64
	ParentIndex int // -1 when top-level
	Roles       []ArtifactRole
	ContentHash uint64 // highwayhash64 of the raw bytes; 0 for directory placeholders
}

func (a *Artifact) HasRole(role ArtifactRole) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
