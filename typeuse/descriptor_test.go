package typeuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/ir"
)

func TestParseFieldDescriptor_Primitive(t *testing.T) {
	tu, err := ParseFieldDescriptor("I")
	require.NoError(t, err)
	assert.Equal(t, ir.TUBase, tu.Tag)
	assert.Equal(t, "I", tu.Base)
}

func TestParseFieldDescriptor_ClassType(t *testing.T) {
	tu, err := ParseFieldDescriptor("Ljava/lang/String;")
	require.NoError(t, err)
	assert.Equal(t, ir.TUClass, tu.Tag)
	assert.Equal(t, "java/lang/String", tu.ClassName)
}

func TestParseFieldDescriptor_ArrayOfArray(t *testing.T) {
	tu, err := ParseFieldDescriptor("[[I")
	require.NoError(t, err)
	require.Equal(t, ir.TUArray, tu.Tag)
	require.Equal(t, ir.TUArray, tu.Array.Tag)
	assert.Equal(t, ir.TUBase, tu.Array.Array.Tag)
}

func TestParseFieldDescriptor_TrailingDataRejected(t *testing.T) {
	_, err := ParseFieldDescriptor("IJ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseMethodDescriptor_VoidReturnWithParams(t *testing.T) {
	params, ret, err := ParseMethodDescriptor("(Ljava/lang/String;I)V")
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, ir.TUClass, params[0].Tag)
	assert.Equal(t, "java/lang/String", params[0].ClassName)
	assert.Equal(t, ir.TUBase, params[1].Tag)
	assert.Equal(t, ir.TUVoid, ret.Tag)
}

func TestParseMethodDescriptor_NoParams(t *testing.T) {
	params, ret, err := ParseMethodDescriptor("()Ljava/lang/Object;")
	require.NoError(t, err)
	assert.Empty(t, params)
	assert.Equal(t, "java/lang/Object", ret.ClassName)
}

func TestParseMethodDescriptor_MissingOpenParen(t *testing.T) {
	_, _, err := ParseMethodDescriptor("Ljava/lang/String;)V")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}
