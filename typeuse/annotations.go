// Package typeuse assimilates JSpecify nullness information out of a
// method or field's raw annotation attributes: a flat Nullness summary for
// the return type and each parameter, and a structural TypeUse tree built
// from the generic signature (or the descriptor, when no signature is
// present) with type-path-addressed annotations applied onto it.
package typeuse

import (
	"github.com/exoego/inspequte-sub000/ir"
)

// Target types from the RuntimeVisibleTypeAnnotations target_type byte
// that this package recognizes; every other value is skipped structurally
// but otherwise ignored.
const (
	targetTypeParameterClass       = 0x00
	targetTypeParameterMethod      = 0x01
	targetSupertype                = 0x10
	targetTypeParameterBoundClass  = 0x11
	targetTypeParameterBoundMethod = 0x12
	targetField                    = 0x13
	targetMethodReturn             = 0x14
	targetMethodReceiver           = 0x15
	targetMethodFormalParameter    = 0x16
	targetThrows                   = 0x17
	targetLocalVariable            = 0x40
	targetResourceVariable         = 0x41
	targetExceptionParameter       = 0x42
	targetInstanceOf               = 0x43
	targetNew                      = 0x44
	targetConstructorReference     = 0x45
	targetMethodReference          = 0x46
	targetCast                     = 0x47
	targetConstructorInvocationArg = 0x48
	targetMethodInvocationArg      = 0x49
	targetConstructorReferenceArg  = 0x4A
	targetMethodReferenceArg       = 0x4B
)

// AnnotationResolver resolves a constant pool Utf8 entry. Satisfied
// structurally by classfile.ConstantPool.
type AnnotationResolver interface {
	Utf8(index uint16) (string, bool)
}

// PathEntry is one step of a type_path: which structural position inside
// a TypeUse tree a type annotation's nullness applies to.
type PathEntry struct {
	Kind     byte
	ArgIndex byte
}

// TypeAnnotation is one decoded entry of a RuntimeVisibleTypeAnnotations
// attribute, reduced to what the nullness assimilator needs.
type TypeAnnotation struct {
	TargetType byte
	ParamIndex int // formal_parameter_target index; -1 when not applicable
	Path       []PathEntry
	Nullness   ir.Nullness
	Recognized bool // true when the annotation's type_index names a JSpecify nullness annotation
}

// DecodeTypeAnnotations parses a RuntimeVisibleTypeAnnotations attribute
// body. Annotations this package has no use for are still walked
// structurally (so later entries parse correctly) but come back with
// Recognized false.
func DecodeTypeAnnotations(raw []byte, resolver AnnotationResolver) ([]TypeAnnotation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := newReader(raw)
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	out := make([]TypeAnnotation, 0, count)
	for i := 0; i < int(count); i++ {
		ta, err := decodeOneTypeAnnotation(r, resolver)
		if err != nil {
			return nil, err
		}
		out = append(out, ta)
	}
	return out, nil
}

func decodeOneTypeAnnotation(r *reader, resolver AnnotationResolver) (TypeAnnotation, error) {
	ta := TypeAnnotation{ParamIndex: -1}

	targetType, err := r.u1()
	if err != nil {
		return ta, err
	}
	ta.TargetType = targetType

	if err := skipTargetInfo(r, targetType, &ta); err != nil {
		return ta, err
	}

	path, err := readTypePath(r)
	if err != nil {
		return ta, err
	}
	ta.Path = path

	typeIndex, err := r.u2()
	if err != nil {
		return ta, err
	}
	numPairs, err := r.u2()
	if err != nil {
		return ta, err
	}
	for i := 0; i < int(numPairs); i++ {
		if err := skipElementValuePair(r); err != nil {
			return ta, err
		}
	}

	if resolver != nil {
		if name, ok := resolver.Utf8(typeIndex); ok {
			if n, recognized := nullnessForAnnotation(name); recognized {
				ta.Nullness = n
				ta.Recognized = true
			}
		}
	}
	return ta, nil
}

func skipTargetInfo(r *reader, targetType byte, ta *TypeAnnotation) error {
	switch targetType {
	case targetTypeParameterClass, targetTypeParameterMethod:
		return r.skip(1)
	case targetSupertype:
		return r.skip(2)
	case targetTypeParameterBoundClass, targetTypeParameterBoundMethod:
		return r.skip(2)
	case targetField, targetMethodReturn, targetMethodReceiver:
		return nil
	case targetMethodFormalParameter:
		idx, err := r.u1()
		if err != nil {
			return err
		}
		ta.ParamIndex = int(idx)
		return nil
	case targetThrows:
		return r.skip(2)
	case targetLocalVariable, targetResourceVariable:
		tableLength, err := r.u2()
		if err != nil {
			return err
		}
		return r.skip(int(tableLength) * 6)
	case targetExceptionParameter:
		return r.skip(2)
	case targetInstanceOf, targetNew, targetConstructorReference, targetMethodReference:
		return r.skip(2)
	case targetCast, targetConstructorInvocationArg, targetMethodInvocationArg, targetConstructorReferenceArg, targetMethodReferenceArg:
		return r.skip(3)
	default:
		// Unknown target_type: best effort, assume a two-byte target_info
		// (the offset_target shape) rather than aborting the whole attribute.
		return r.skip(2)
	}
}

func readTypePath(r *reader) ([]PathEntry, error) {
	length, err := r.u1()
	if err != nil {
		return nil, err
	}
	path := make([]PathEntry, 0, length)
	for i := 0; i < int(length); i++ {
		kind, err := r.u1()
		if err != nil {
			return nil, err
		}
		argIndex, err := r.u1()
		if err != nil {
			return nil, err
		}
		path = append(path, PathEntry{Kind: kind, ArgIndex: argIndex})
	}
	return path, nil
}

// skipElementValuePair and skipElementValue walk annotation element-value
// structures without interpreting them; JSpecify nullness annotations are
// marker annotations with no element-value pairs, but a RuntimeVisible*
// attribute may carry other annotations alongside them in the same blob.
func skipElementValuePair(r *reader) error {
	if err := r.skip(2); err != nil { // element_name_index
		return err
	}
	return skipElementValue(r)
}

func skipElementValue(r *reader) error {
	tag, err := r.u1()
	if err != nil {
		return err
	}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		return r.skip(2)
	case 'e':
		return r.skip(4)
	case '@':
		if err := r.skip(2); err != nil { // type_index
			return err
		}
		numPairs, err := r.u2()
		if err != nil {
			return err
		}
		for i := 0; i < int(numPairs); i++ {
			if err := skipElementValuePair(r); err != nil {
				return err
			}
		}
		return nil
	case '[':
		numValues, err := r.u2()
		if err != nil {
			return err
		}
		for i := 0; i < int(numValues); i++ {
			if err := skipElementValue(r); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrMalformed
	}
}

func nullnessForAnnotation(descriptor string) (ir.Nullness, bool) {
	switch descriptor {
	case "Lorg/jspecify/annotations/Nullable;":
		return ir.Nullable, true
	case "Lorg/jspecify/annotations/NonNull;":
		return ir.NonNull, true
	case "Lorg/jspecify/annotations/NullnessUnspecified;":
		return ir.Unknown, true
	default:
		return ir.Unknown, false
	}
}

// ScanNullnessDefault inspects a RuntimeVisibleAnnotations attribute body
// (regular annotations, not type annotations) for @NullMarked/@NullUnmarked
// and returns the resulting default. Multiple markers resolve to whichever
// was seen last; real class files never carry both.
func ScanNullnessDefault(raw []byte, resolver AnnotationResolver) (ir.NullnessDefault, error) {
	if len(raw) == 0 {
		return ir.DefaultInherit, nil
	}
	r := newReader(raw)
	count, err := r.u2()
	if err != nil {
		return ir.DefaultInherit, err
	}
	result := ir.DefaultInherit
	for i := 0; i < int(count); i++ {
		typeIndex, err := r.u2()
		if err != nil {
			return ir.DefaultInherit, err
		}
		numPairs, err := r.u2()
		if err != nil {
			return ir.DefaultInherit, err
		}
		if resolver != nil {
			if name, ok := resolver.Utf8(typeIndex); ok {
				switch name {
				case "Lorg/jspecify/annotations/NullMarked;":
					result = ir.DefaultNullMarked
				case "Lorg/jspecify/annotations/NullUnmarked;":
					result = ir.DefaultNullUnmarked
				}
			}
		}
		for j := 0; j < int(numPairs); j++ {
			if err := skipElementValuePair(r); err != nil {
				return ir.DefaultInherit, err
			}
		}
	}
	return result, nil
}
