package typeuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/ir"
)

func TestMethodNullness_EmptyPathOnly(t *testing.T) {
	annotations := []TypeAnnotation{
		{TargetType: targetMethodReturn, Recognized: true, Nullness: ir.Nullable},
		{TargetType: targetMethodFormalParameter, ParamIndex: 1, Recognized: true, Nullness: ir.NonNull},
		{TargetType: targetMethodFormalParameter, ParamIndex: 0, Path: []PathEntry{{Kind: 3}}, Recognized: true, Nullness: ir.NonNull},
	}
	summary := MethodNullness(annotations, 2)
	assert.Equal(t, ir.Nullable, summary.Return)
	assert.Equal(t, ir.Unknown, summary.Parameters[0], "non-empty path entries must not feed the flat summary")
	assert.Equal(t, ir.NonNull, summary.Parameters[1])
}

func TestMethodNullness_ConflictCollapsesToUnknown(t *testing.T) {
	annotations := []TypeAnnotation{
		{TargetType: targetMethodReturn, Recognized: true, Nullness: ir.Nullable},
		{TargetType: targetMethodReturn, Recognized: true, Nullness: ir.NonNull},
	}
	summary := MethodNullness(annotations, 0)
	assert.Equal(t, ir.Unknown, summary.Return)
}

func TestApplyTypeAnnotations_TypeArgument(t *testing.T) {
	mt := &ir.MethodTypeUse{
		Return: &ir.TypeUse{
			Tag:       ir.TUClass,
			ClassName: "java/util/List",
			TypeArguments: []*ir.TypeUse{
				{Tag: ir.TUClass, ClassName: "java/lang/String"},
			},
		},
	}
	annotations := []TypeAnnotation{
		{TargetType: targetMethodReturn, Path: []PathEntry{{Kind: 3, ArgIndex: 0}}, Recognized: true, Nullness: ir.Nullable},
	}
	ApplyTypeAnnotations(mt, annotations)
	assert.Equal(t, ir.Nullable, mt.Return.TypeArguments[0].Nullness)
	assert.Equal(t, ir.Unknown, mt.Return.Nullness, "root stays untouched when the path points deeper")
}

func TestApplyTypeAnnotations_ArrayComponent(t *testing.T) {
	mt := &ir.MethodTypeUse{
		Parameters: []*ir.TypeUse{
			{Tag: ir.TUArray, Array: &ir.TypeUse{Tag: ir.TUClass, ClassName: "java/lang/String"}},
		},
	}
	annotations := []TypeAnnotation{
		{TargetType: targetMethodFormalParameter, ParamIndex: 0, Path: []PathEntry{{Kind: 0}}, Recognized: true, Nullness: ir.NonNull},
	}
	ApplyTypeAnnotations(mt, annotations)
	assert.Equal(t, ir.NonNull, mt.Parameters[0].Array.Nullness)
}

func TestApplyTypeAnnotations_UnresolvablePathIsDropped(t *testing.T) {
	mt := &ir.MethodTypeUse{Return: &ir.TypeUse{Tag: ir.TUBase, Base: "I"}}
	annotations := []TypeAnnotation{
		{TargetType: targetMethodReturn, Path: []PathEntry{{Kind: 0}}, Recognized: true, Nullness: ir.Nullable},
	}
	assert.NotPanics(t, func() { ApplyTypeAnnotations(mt, annotations) })
	assert.Equal(t, ir.Unknown, mt.Return.Nullness)
}

func TestEffectiveDefault_MethodOverridesClass(t *testing.T) {
	assert.Equal(t, ir.DefaultNullUnmarked, EffectiveDefault(ir.DefaultNullUnmarked, ir.DefaultNullMarked))
	assert.Equal(t, ir.DefaultNullMarked, EffectiveDefault(ir.DefaultInherit, ir.DefaultNullMarked))
	assert.Equal(t, ir.DefaultInherit, EffectiveDefault(ir.DefaultInherit, ir.DefaultInherit))
}

func TestApplyDefault_UpgradesOnlyUnknown(t *testing.T) {
	summary := &ir.NullnessSummary{Return: ir.Unknown, Parameters: []ir.Nullness{ir.Nullable, ir.Unknown}}
	mt := &ir.MethodTypeUse{
		Return: &ir.TypeUse{Tag: ir.TUClass, ClassName: "java/lang/String"},
		Parameters: []*ir.TypeUse{
			{Tag: ir.TUBase, Base: "I"},
		},
	}
	ApplyDefault(ir.DefaultNullMarked, summary, mt)

	assert.Equal(t, ir.NonNull, summary.Return)
	assert.Equal(t, ir.Nullable, summary.Parameters[0], "explicit Nullable must never be overridden")
	assert.Equal(t, ir.NonNull, summary.Parameters[1])
	assert.Equal(t, ir.NonNull, mt.Return.Nullness)
	assert.Equal(t, ir.Unknown, mt.Parameters[0].Nullness, "primitives are never nullable")
}

func TestApplyDefault_NoopWithoutNullMarked(t *testing.T) {
	summary := &ir.NullnessSummary{Return: ir.Unknown}
	ApplyDefault(ir.DefaultInherit, summary, nil)
	assert.Equal(t, ir.Unknown, summary.Return)
}

func TestUpgradeTree_RecursesThroughTypeArguments(t *testing.T) {
	tu := &ir.TypeUse{
		Tag:       ir.TUClass,
		ClassName: "java/util/List",
		TypeArguments: []*ir.TypeUse{
			{Tag: ir.TUWildcard, WildcardBound: &ir.TypeUse{Tag: ir.TUClass, ClassName: "java/lang/Number"}},
		},
	}
	ApplyFieldDefault(ir.DefaultNullMarked, tu)
	assert.Equal(t, ir.NonNull, tu.Nullness)
	assert.Equal(t, ir.Unknown, tu.TypeArguments[0].Nullness, "wildcards themselves are not reference positions")
	require.NotNil(t, tu.TypeArguments[0].WildcardBound)
	assert.Equal(t, ir.NonNull, tu.TypeArguments[0].WildcardBound.Nullness)
}
