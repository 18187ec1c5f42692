package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/ir"
)

// fakeResolver is a minimal in-memory ConstantResolver for decoder tests,
// independent of the classfile package's binary constant pool format.
type fakeResolver struct {
	utf8      map[uint16]string
	classes   map[uint16]string
	strings   map[uint16]string
	ints      map[uint16]int32
	floats    map[uint16]float32
	methods   map[uint16][3]string // owner, name, descriptor
	ifaceMeth map[uint16][3]string
	invdyn    map[uint16]struct {
		bsm        uint16
		descriptor string
	}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		utf8: map[uint16]string{}, classes: map[uint16]string{},
		strings: map[uint16]string{}, ints: map[uint16]int32{}, floats: map[uint16]float32{},
		methods: map[uint16][3]string{}, ifaceMeth: map[uint16][3]string{},
		invdyn: map[uint16]struct {
			bsm        uint16
			descriptor string
		}{},
	}
}

func (f *fakeResolver) Utf8(i uint16) (string, bool)      { v, ok := f.utf8[i]; return v, ok }
func (f *fakeResolver) ClassName(i uint16) (string, bool) { v, ok := f.classes[i]; return v, ok }
func (f *fakeResolver) String(i uint16) (string, bool)    { v, ok := f.strings[i]; return v, ok }
func (f *fakeResolver) Integer(i uint16) (int32, bool)    { v, ok := f.ints[i]; return v, ok }
func (f *fakeResolver) Float(i uint16) (float32, bool)    { v, ok := f.floats[i]; return v, ok }

func (f *fakeResolver) MethodRef(i uint16) (string, string, string, bool) {
	v, ok := f.methods[i]
	return v[0], v[1], v[2], ok
}

func (f *fakeResolver) InterfaceMethodRef(i uint16) (string, string, string, bool) {
	v, ok := f.ifaceMeth[i]
	return v[0], v[1], v[2], ok
}

func (f *fakeResolver) InvokeDynamicParts(i uint16) (uint16, string, string, bool) {
	v, ok := f.invdyn[i]
	return v.bsm, "", v.descriptor, ok
}

func TestDecode_InvokeVirtual(t *testing.T) {
	r := newFakeResolver()
	r.methods[1] = [3]string{"java/lang/String", "length", "()I"}

	code := []byte{OpInvokevirtual, 0x00, 0x01, OpReturn()}
	instructions, calls, strs, err := Decode(r, nil, code)
	require.NoError(t, err)
	require.Len(t, instructions, 2)
	require.Len(t, calls, 1)
	assert.Empty(t, strs)

	call := calls[0]
	assert.Equal(t, "java/lang/String", call.Owner)
	assert.Equal(t, "length", call.Name)
	assert.Equal(t, "()I", call.Descriptor)
	assert.Equal(t, ir.Virtual, call.Kind)
	assert.Equal(t, 0, call.Offset)
}

func TestDecode_LdcString(t *testing.T) {
	r := newFakeResolver()
	r.strings[1] = "hello"

	code := []byte{OpLdc, 0x01, OpReturn()}
	instructions, _, strs, err := Decode(r, nil, code)
	require.NoError(t, err)
	require.Len(t, instructions, 2)
	require.Equal(t, []string{"hello"}, strs)
	assert.Equal(t, ir.KindConstString, instructions[0].Kind.Tag)
}

func TestDecode_InvalidOpcode(t *testing.T) {
	code := []byte{0xff}
	_, _, _, err := Decode(newFakeResolver(), nil, code)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOpcode)
}

func TestDecode_TableswitchLength(t *testing.T) {
	// tableswitch at offset 0: padding = 3, default=0, low=0, high=1 -> two
	// 4-byte targets, total length 1+3+4+4+4+(2*4) = 24.
	code := make([]byte, 24)
	code[0] = OpTableswitch
	// default at offset 4..7 = 0
	be32put(code, 8, 0)  // low
	be32put(code, 12, 1) // high
	// two jump offsets at 16..19 and 20..23, values unused for length test

	instructions, _, _, err := Decode(newFakeResolver(), nil, code)
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	assert.Equal(t, 0, instructions[0].Offset)
}

func TestDecode_WideIinc(t *testing.T) {
	code := []byte{OpWide, OpIinc, 0x00, 0x01, 0x00, 0x02, OpReturn()}
	instructions, _, _, err := Decode(newFakeResolver(), nil, code)
	require.NoError(t, err)
	require.Len(t, instructions, 2)
	assert.Equal(t, 6, instructions[1].Offset)
}

func TestDecode_InvokeDynamicResolvesImplMethod(t *testing.T) {
	r := newFakeResolver()
	r.invdyn[1] = struct {
		bsm        uint16
		descriptor string
	}{bsm: 0, descriptor: "()Ljava/lang/Runnable;"}
	bootstrap := []ir.BootstrapMethod{{Name: "lambda$run$0"}}

	code := []byte{OpInvokedynamic, 0x00, 0x01, 0x00, 0x00, OpReturn()}
	instructions, _, _, err := Decode(r, bootstrap, code)
	require.NoError(t, err)
	require.Len(t, instructions, 2)
	require.Equal(t, ir.KindInvokeDynamic, instructions[0].Kind.Tag)
	assert.Equal(t, "lambda$run$0", instructions[0].Kind.InvokeDyn.ImplMethod)
}

func be32put(code []byte, at int, v int32) {
	code[at] = byte(v >> 24)
	code[at+1] = byte(v >> 16)
	code[at+2] = byte(v >> 8)
	code[at+3] = byte(v)
}

// OpReturn is a tiny local helper so tests read as instruction streams
// without hand-rolling the 0xb1 literal everywhere.
func OpReturn() byte { return 0xb1 }
