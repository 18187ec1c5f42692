package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/classfile"
	"github.com/exoego/inspequte-sub000/ir"
)

func TestAssemble_BuildsInstructionsCFGAndTypeUseForMethodWithBody(t *testing.T) {
	data := buildClassWithTrivialMethod("com/example/Greeter", "java/lang/Object", "run")
	class, cp, err := classfile.Parse(data, "Greeter.class")
	require.NoError(t, err)
	require.False(t, class.Minimal)
	require.Len(t, class.Methods, 1)

	err = assemble(class, cp)
	require.NoError(t, err)

	method := class.Methods[0]
	assert.NotEmpty(t, method.Instructions)
	assert.NotEmpty(t, method.CFG)
	require.NotNil(t, method.TypeUse)
	assert.Equal(t, ir.TUVoid, method.TypeUse.Return.Tag)
	assert.Empty(t, method.TypeUse.Parameters)
}

func TestAssemble_MinimalClassSkipsPipeline(t *testing.T) {
	class := &ir.Class{Name: "com/example/Weird", Minimal: true}
	err := assemble(class, nil)
	require.NoError(t, err)
	assert.Nil(t, class.Methods)
}

func TestAssembleField_BuildsTypeUseFromDescriptor(t *testing.T) {
	field := &ir.Field{Name: "count", Descriptor: "I"}
	err := assembleField(field, nil, ir.DefaultInherit)
	require.NoError(t, err)
	require.NotNil(t, field.TypeUse)
	assert.Equal(t, ir.TUBase, field.TypeUse.Tag)
	assert.Equal(t, "I", field.TypeUse.Base)
}

func TestAssembleField_NullMarkedDefaultUpgradesReferenceType(t *testing.T) {
	field := &ir.Field{Name: "name", Descriptor: "Ljava/lang/String;"}
	err := assembleField(field, nil, ir.DefaultNullMarked)
	require.NoError(t, err)
	assert.Equal(t, ir.NonNull, field.TypeUse.Nullness)
}
