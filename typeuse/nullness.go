package typeuse

import "github.com/exoego/inspequte-sub000/ir"

// BuildMethodTypeUse builds the structural TypeUse tree for a method's
// parameters and return type, preferring the generic signature and
// falling back to the descriptor when no signature is present or the
// signature fails to parse.
func BuildMethodTypeUse(signature, descriptor string) (*ir.MethodTypeUse, error) {
	if signature != "" {
		typeParams, params, ret, err := ParseMethodSignature(signature)
		if err == nil {
			return &ir.MethodTypeUse{Parameters: params, Return: ret, TypeParams: typeParams}, nil
		}
	}
	params, ret, err := ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	return &ir.MethodTypeUse{Parameters: params, Return: ret}, nil
}

// BuildFieldTypeUse builds the structural TypeUse tree for a field,
// preferring the generic signature and falling back to the descriptor.
func BuildFieldTypeUse(signature, descriptor string) (*ir.TypeUse, error) {
	if signature != "" {
		if tu, err := ParseFieldSignature(signature); err == nil {
			return tu, nil
		}
	}
	return ParseFieldDescriptor(descriptor)
}

// MethodNullness reduces a method's decoded type annotations to the flat
// per-return/per-parameter Nullness summary: only empty-type_path entries
// targeting METHOD_RETURN or METHOD_FORMAL_PARAMETER contribute. Multiple
// annotations landing on the same slot join to Unknown on conflict.
func MethodNullness(annotations []TypeAnnotation, paramCount int) ir.NullnessSummary {
	summary := ir.NullnessSummary{Parameters: make([]ir.Nullness, paramCount)}
	returnSet := false
	paramSet := make([]bool, paramCount)

	for _, ta := range annotations {
		if !ta.Recognized || len(ta.Path) != 0 {
			continue
		}
		switch ta.TargetType {
		case targetMethodReturn:
			if returnSet {
				summary.Return = ir.JoinNullness(summary.Return, ta.Nullness)
			} else {
				summary.Return = ta.Nullness
				returnSet = true
			}
		case targetMethodFormalParameter:
			if ta.ParamIndex < 0 || ta.ParamIndex >= paramCount {
				continue
			}
			if paramSet[ta.ParamIndex] {
				summary.Parameters[ta.ParamIndex] = ir.JoinNullness(summary.Parameters[ta.ParamIndex], ta.Nullness)
			} else {
				summary.Parameters[ta.ParamIndex] = ta.Nullness
				paramSet[ta.ParamIndex] = true
			}
		}
	}
	return summary
}

// ApplyTypeAnnotations walks each recognized non-empty-path annotation's
// type_path from the method's return or parameter root and sets the
// Nullness of the addressed structural node. Entries whose path does not
// resolve against the built tree (a signature/annotation mismatch) are
// silently dropped rather than failing the whole method.
func ApplyTypeAnnotations(mt *ir.MethodTypeUse, annotations []TypeAnnotation) {
	for _, ta := range annotations {
		if !ta.Recognized || len(ta.Path) == 0 {
			continue
		}
		var root *ir.TypeUse
		switch ta.TargetType {
		case targetMethodReturn:
			root = mt.Return
		case targetMethodFormalParameter:
			if ta.ParamIndex < 0 || ta.ParamIndex >= len(mt.Parameters) {
				continue
			}
			root = mt.Parameters[ta.ParamIndex]
		default:
			continue
		}
		if root == nil {
			continue
		}
		if node := walkTypePath(root, ta.Path); node != nil {
			if node.Nullness == ir.Unknown {
				node.Nullness = ta.Nullness
			} else {
				node.Nullness = ir.JoinNullness(node.Nullness, ta.Nullness)
			}
		}
	}
}

func walkTypePath(root *ir.TypeUse, path []PathEntry) *ir.TypeUse {
	node := root
	for _, entry := range path {
		switch entry.Kind {
		case 0: // array component
			if node.Tag != ir.TUArray || node.Array == nil {
				return nil
			}
			node = node.Array
		case 1: // enclosing class inner
			if node.Tag != ir.TUClass || node.Inner == nil {
				return nil
			}
			node = node.Inner
		case 2: // wildcard bound
			if node.Tag != ir.TUWildcard || node.WildcardBound == nil {
				return nil
			}
			node = node.WildcardBound
		case 3: // type argument
			if node.Tag != ir.TUClass || int(entry.ArgIndex) >= len(node.TypeArguments) {
				return nil
			}
			node = node.TypeArguments[entry.ArgIndex]
		default:
			return nil
		}
	}
	return node
}

// EffectiveDefault resolves method_level ?? class_level ?? Inherit.
func EffectiveDefault(methodLevel, classLevel ir.NullnessDefault) ir.NullnessDefault {
	if methodLevel != ir.DefaultInherit {
		return methodLevel
	}
	return classLevel
}

// ApplyDefault upgrades every still-Unknown nullness in a method's flat
// summary, and every still-Unknown class, type-variable or array node of
// its structural TypeUse tree, to NonNull when def is NonNull-by-default.
// Explicit Nullable and NonNull values, already resolved by
// MethodNullness/ApplyTypeAnnotations, are never touched.
func ApplyDefault(def ir.NullnessDefault, summary *ir.NullnessSummary, mt *ir.MethodTypeUse) {
	if def != ir.DefaultNullMarked {
		return
	}
	if summary.Return == ir.Unknown {
		summary.Return = ir.NonNull
	}
	for i := range summary.Parameters {
		if summary.Parameters[i] == ir.Unknown {
			summary.Parameters[i] = ir.NonNull
		}
	}
	if mt == nil {
		return
	}
	upgradeTree(mt.Return)
	for _, p := range mt.Parameters {
		upgradeTree(p)
	}
}

// ApplyFieldDefault is ApplyDefault's field-level counterpart: a field has
// no parameter list, only its own TypeUse tree.
func ApplyFieldDefault(def ir.NullnessDefault, tu *ir.TypeUse) {
	if def != ir.DefaultNullMarked {
		return
	}
	upgradeTree(tu)
}

func upgradeTree(node *ir.TypeUse) {
	if node == nil {
		return
	}
	if node.Nullness == ir.Unknown {
		switch node.Tag {
		case ir.TUClass, ir.TUTypeVar, ir.TUArray:
			node.Nullness = ir.NonNull
		}
	}
	upgradeTree(node.Array)
	upgradeTree(node.Inner)
	upgradeTree(node.WildcardBound)
	for _, arg := range node.TypeArguments {
		upgradeTree(arg)
	}
}
