package typeuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/ir"
)

func TestParseFieldSignature_ParameterizedType(t *testing.T) {
	tu, err := ParseFieldSignature("Ljava/util/List<Ljava/lang/String;>;")
	require.NoError(t, err)
	assert.Equal(t, ir.TUClass, tu.Tag)
	assert.Equal(t, "java/util/List", tu.ClassName)
	require.Len(t, tu.TypeArguments, 1)
	assert.Equal(t, "java/lang/String", tu.TypeArguments[0].ClassName)
}

func TestParseFieldSignature_TypeVariable(t *testing.T) {
	tu, err := ParseFieldSignature("TT;")
	require.NoError(t, err)
	assert.Equal(t, ir.TUTypeVar, tu.Tag)
	assert.Equal(t, "T", tu.Base)
}

func TestParseFieldSignature_WildcardBounds(t *testing.T) {
	tu, err := ParseFieldSignature("Ljava/util/List<+Ljava/lang/Number;>;")
	require.NoError(t, err)
	require.Len(t, tu.TypeArguments, 1)
	wildcard := tu.TypeArguments[0]
	assert.Equal(t, ir.TUWildcard, wildcard.Tag)
	require.NotNil(t, wildcard.WildcardBound)
	assert.Equal(t, "java/lang/Number", wildcard.WildcardBound.ClassName)
}

func TestParseFieldSignature_UnboundedWildcard(t *testing.T) {
	tu, err := ParseFieldSignature("Ljava/util/List<*>;")
	require.NoError(t, err)
	require.Len(t, tu.TypeArguments, 1)
	assert.Equal(t, ir.TUWildcard, tu.TypeArguments[0].Tag)
	assert.Nil(t, tu.TypeArguments[0].WildcardBound)
}

func TestParseFieldSignature_InnerClass(t *testing.T) {
	tu, err := ParseFieldSignature("Lcom/example/Outer<Ljava/lang/String;>.Inner;")
	require.NoError(t, err)
	assert.Equal(t, "com/example/Outer", tu.ClassName)
	require.NotNil(t, tu.Inner)
	assert.Equal(t, "Inner", tu.Inner.ClassName)
}

func TestParseFieldSignature_ArrayOfTypeVariable(t *testing.T) {
	tu, err := ParseFieldSignature("[TT;")
	require.NoError(t, err)
	assert.Equal(t, ir.TUArray, tu.Tag)
	assert.Equal(t, ir.TUTypeVar, tu.Array.Tag)
}

func TestParseMethodSignature_GenericMethod(t *testing.T) {
	typeParams, params, ret, err := ParseMethodSignature("<T:Ljava/lang/Object;>(TT;)TT;")
	require.NoError(t, err)
	assert.Equal(t, []string{"T"}, typeParams)
	require.Len(t, params, 1)
	assert.Equal(t, ir.TUTypeVar, params[0].Tag)
	assert.Equal(t, ir.TUTypeVar, ret.Tag)
}

func TestParseMethodSignature_ThrowsClauseIsConsumed(t *testing.T) {
	_, params, ret, err := ParseMethodSignature("(Ljava/lang/String;)V^Ljava/io/IOException;")
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, ir.TUVoid, ret.Tag)
}

func TestParseMethodSignature_MultipleTypeParameterBounds(t *testing.T) {
	typeParams, params, ret, err := ParseMethodSignature("<T:Ljava/lang/Object;:Ljava/io/Serializable;>(TT;)V")
	require.NoError(t, err)
	assert.Equal(t, []string{"T"}, typeParams)
	require.Len(t, params, 1)
	assert.Equal(t, ir.TUVoid, ret.Tag)
}
