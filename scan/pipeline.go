package scan

import (
	"fmt"

	"github.com/exoego/inspequte-sub000/bytecode"
	"github.com/exoego/inspequte-sub000/cfg"
	"github.com/exoego/inspequte-sub000/classfile"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/typeuse"
)

// fieldTypeAnnotationTarget is the RuntimeVisibleTypeAnnotations target_type
// byte for a field declaration (JVMS 4.7.20); typeuse keeps the full table
// unexported since only the method-shaped entries feed its public API.
const fieldTypeAnnotationTarget = 0x13

// assemble runs the per-class pipeline the scanner performs once for every
// parsed class: bytecode decoding and CFG construction for every method
// with a body, and JSpecify nullness/type-use assimilation for every
// method and field. cp must be the ConstantPool classfile.Parse returned
// alongside class; it is not retained past this call.
func assemble(class *ir.Class, cp *classfile.ConstantPool) error {
	if class.Minimal {
		return nil
	}

	classDefault, err := typeuse.ScanNullnessDefault(class.RawRuntimeVisibleAnnotations, cp)
	if err != nil {
		return fmt.Errorf("class %s: nullness default: %w", class.Name, err)
	}
	class.NullnessDefault = classDefault

	for _, field := range class.Fields {
		if err := assembleField(field, cp, classDefault); err != nil {
			return fmt.Errorf("class %s field %s: %w", class.Name, field.Name, err)
		}
	}

	for _, method := range class.Methods {
		if err := assembleMethod(method, cp, class.BootstrapMethods, classDefault); err != nil {
			return fmt.Errorf("class %s method %s%s: %w", class.Name, method.Name, method.Descriptor, err)
		}
	}
	return nil
}

func assembleMethod(method *ir.Method, cp *classfile.ConstantPool, bootstrap []ir.BootstrapMethod, classDefault ir.NullnessDefault) error {
	if method.HasBody() {
		instructions, calls, strings, err := bytecode.Decode(cp, bootstrap, method.Bytecode)
		if err != nil {
			return fmt.Errorf("bytecode decode: %w", err)
		}
		method.Instructions = instructions
		method.Calls = calls
		method.Strings = strings
		if err := cfg.Build(method); err != nil {
			return fmt.Errorf("cfg build: %w", err)
		}
	}

	mt, err := typeuse.BuildMethodTypeUse(method.Signature, method.Descriptor)
	if err != nil {
		return fmt.Errorf("type use: %w", err)
	}
	method.TypeUse = mt

	methodDefault, err := typeuse.ScanNullnessDefault(method.RawRuntimeVisibleAnnotations, cp)
	if err != nil {
		return fmt.Errorf("nullness default: %w", err)
	}
	method.NullnessDefault = methodDefault

	paramCount := len(mt.Parameters)
	summary := ir.NullnessSummary{Parameters: make([]ir.Nullness, paramCount)}
	if len(method.RawRuntimeVisibleTypeAnnotations) > 0 {
		annotations, err := typeuse.DecodeTypeAnnotations(method.RawRuntimeVisibleTypeAnnotations, cp)
		if err != nil {
			return fmt.Errorf("type annotations: %w", err)
		}
		summary = typeuse.MethodNullness(annotations, paramCount)
		typeuse.ApplyTypeAnnotations(mt, annotations)
	}

	def := typeuse.EffectiveDefault(methodDefault, classDefault)
	typeuse.ApplyDefault(def, &summary, mt)
	method.Nullness = summary
	return nil
}

func assembleField(field *ir.Field, cp *classfile.ConstantPool, classDefault ir.NullnessDefault) error {
	tu, err := typeuse.BuildFieldTypeUse(field.Signature, field.Descriptor)
	if err != nil {
		return fmt.Errorf("type use: %w", err)
	}
	field.TypeUse = tu

	if len(field.RawRuntimeVisibleTypeAnnotations) > 0 {
		annotations, err := typeuse.DecodeTypeAnnotations(field.RawRuntimeVisibleTypeAnnotations, cp)
		if err != nil {
			return fmt.Errorf("type annotations: %w", err)
		}
		for _, ta := range annotations {
			if !ta.Recognized || ta.TargetType != fieldTypeAnnotationTarget || len(ta.Path) != 0 {
				continue
			}
			if tu.Nullness == ir.Unknown {
				tu.Nullness = ta.Nullness
			} else {
				tu.Nullness = ir.JoinNullness(tu.Nullness, ta.Nullness)
			}
		}
	}

	typeuse.ApplyFieldDefault(classDefault, tu)
	return nil
}
