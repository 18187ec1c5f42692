package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cpBuilder assembles a constant pool byte stream and tracks the next free
// index, mirroring how javac lays entries out (1-indexed, Long/Double
// consuming two slots - not exercised here since these tests never need
// wide constants).
type cpBuilder struct {
	buf  []byte
	next uint16
}

func newCPBuilder() *cpBuilder { return &cpBuilder{next: 1} }

func appendU2(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendU4(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (b *cpBuilder) utf8(s string) uint16 {
	idx := b.next
	b.buf = append(b.buf, tagUtf8)
	b.buf = appendU2(b.buf, uint16(len(s)))
	b.buf = append(b.buf, []byte(s)...)
	b.next++
	return idx
}

func (b *cpBuilder) class(nameIdx uint16) uint16 {
	idx := b.next
	b.buf = append(b.buf, tagClass)
	b.buf = appendU2(b.buf, nameIdx)
	b.next++
	return idx
}

func (b *cpBuilder) nameAndType(nameIdx, descIdx uint16) uint16 {
	idx := b.next
	b.buf = append(b.buf, tagNameAndType)
	b.buf = appendU2(b.buf, nameIdx)
	b.buf = appendU2(b.buf, descIdx)
	b.next++
	return idx
}

func (b *cpBuilder) methodref(classIdx, ntIdx uint16) uint16 {
	idx := b.next
	b.buf = append(b.buf, tagMethodref)
	b.buf = appendU2(b.buf, classIdx)
	b.buf = appendU2(b.buf, ntIdx)
	b.next++
	return idx
}

func (b *cpBuilder) count() uint16 { return b.next }

// classBuilder assembles a full class file around a cpBuilder, with one
// method carrying a Code attribute and no further members.
type classBuilder struct {
	cp              *cpBuilder
	thisIdx         uint16
	superIdx        uint16
	methodNameIdx   uint16
	methodDescIdx   uint16
	codeAttrNameIdx uint16
	sourceFileIdx   uint16 // 0 if absent
	sourceFileAttr  uint16
	code            []byte
	extraClassAttr  []byte // raw pre-built class-level attribute bytes, appended verbatim
	extraClassAttrs int
}

func newClassBuilder(thisName, superName, methodName, methodDescriptor string, code []byte) *classBuilder {
	cp := newCPBuilder()
	thisNameU := cp.utf8(thisName)
	superNameU := cp.utf8(superName)
	thisIdx := cp.class(thisNameU)
	superIdx := cp.class(superNameU)
	methodNameIdx := cp.utf8(methodName)
	methodDescIdx := cp.utf8(methodDescriptor)
	codeAttrNameIdx := cp.utf8(attrCode)
	return &classBuilder{
		cp:              cp,
		thisIdx:         thisIdx,
		superIdx:        superIdx,
		methodNameIdx:   methodNameIdx,
		methodDescIdx:   methodDescIdx,
		codeAttrNameIdx: codeAttrNameIdx,
		code:            code,
	}
}

func (cb *classBuilder) withSourceFile(name string) *classBuilder {
	cb.sourceFileAttr = cb.cp.utf8(attrSourceFile)
	cb.sourceFileIdx = cb.cp.utf8(name)
	return cb
}

func (cb *classBuilder) build() []byte {
	var out []byte
	out = appendU4(out, magic)
	out = appendU2(out, 0)  // minor
	out = appendU2(out, 52) // major (Java 8)

	out = appendU2(out, cb.cp.count())
	out = append(out, cb.cp.buf...)

	out = appendU2(out, 0x0021) // ACC_PUBLIC | ACC_SUPER
	out = appendU2(out, cb.thisIdx)
	out = appendU2(out, cb.superIdx)
	out = appendU2(out, 0) // interfaces_count

	out = appendU2(out, 0) // fields_count

	out = appendU2(out, 1) // methods_count
	out = appendU2(out, 0x0001) // ACC_PUBLIC
	out = appendU2(out, cb.methodNameIdx)
	out = appendU2(out, cb.methodDescIdx)
	out = appendU2(out, 1) // method attributes_count

	var codeBody []byte
	codeBody = appendU2(codeBody, 2)                  // max_stack
	codeBody = appendU2(codeBody, 1)                  // max_locals
	codeBody = appendU4(codeBody, uint32(len(cb.code)))
	codeBody = append(codeBody, cb.code...)
	codeBody = appendU2(codeBody, 0) // exception_table_length
	codeBody = appendU2(codeBody, 0) // code attributes_count

	out = appendU2(out, cb.codeAttrNameIdx)
	out = appendU4(out, uint32(len(codeBody)))
	out = append(out, codeBody...)

	classAttrCount := 0
	var classAttrBytes []byte
	if cb.sourceFileAttr != 0 {
		classAttrCount++
		classAttrBytes = appendU2(classAttrBytes, cb.sourceFileAttr)
		classAttrBytes = appendU4(classAttrBytes, 2)
		classAttrBytes = appendU2(classAttrBytes, cb.sourceFileIdx)
	}
	classAttrBytes = append(classAttrBytes, cb.extraClassAttr...)
	classAttrCount += cb.extraClassAttrs

	out = appendU2(out, uint16(classAttrCount))
	out = append(out, classAttrBytes...)
	return out
}

func TestParse_BadMagic(t *testing.T) {
	_, _, err := Parse([]byte{0, 0, 0, 0}, "bad.class")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParse_Truncated(t *testing.T) {
	data := []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00}
	_, _, err := Parse(data, "truncated.class")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParse_MinimalValidClass(t *testing.T) {
	code := []byte{0xb1} // return
	cb := newClassBuilder("com/example/Foo", "java/lang/Object", "run", "()V", code).withSourceFile("Foo.java")
	data := cb.build()

	class, _, err := Parse(data, "Foo.class")
	require.NoError(t, err)
	require.NotNil(t, class)

	assert.Equal(t, "com/example/Foo", class.Name)
	assert.Equal(t, "java/lang/Object", class.SuperName)
	assert.Equal(t, "Foo.java", class.SourceFile)
	assert.False(t, class.Minimal)
	require.Len(t, class.Methods, 1)

	m := class.Methods[0]
	assert.Equal(t, "run", m.Name)
	assert.Equal(t, "()V", m.Descriptor)
	assert.Equal(t, code, m.Bytecode)
	assert.True(t, m.IsPublic())
	assert.True(t, m.HasBody())
}

func TestParse_ReferencedClassesExcludesOwnNameAndNormalizesArrays(t *testing.T) {
	code := []byte{0xb1}
	cp := newCPBuilder()
	thisNameU := cp.utf8("com/example/Bar")
	superNameU := cp.utf8("java/lang/Object")
	thisIdx := cp.class(thisNameU)
	superIdx := cp.class(superNameU)
	methodNameIdx := cp.utf8("run")
	methodDescIdx := cp.utf8("()V")
	codeAttrNameIdx := cp.utf8(attrCode)

	// an extra Class entry referencing an array-of-String descriptor, plus
	// a redundant self-reference that must be excluded from the output.
	arrayNameU := cp.utf8("[Ljava/lang/String;")
	cp.class(arrayNameU)
	cp.class(thisNameU)

	cb := &classBuilder{
		cp:              cp,
		thisIdx:         thisIdx,
		superIdx:        superIdx,
		methodNameIdx:   methodNameIdx,
		methodDescIdx:   methodDescIdx,
		codeAttrNameIdx: codeAttrNameIdx,
		code:            code,
	}
	data := cb.build()

	class, _, err := Parse(data, "Bar.class")
	require.NoError(t, err)
	assert.Contains(t, class.ReferencedClasses, "java/lang/String")
	assert.NotContains(t, class.ReferencedClasses, "com/example/Bar")
}

func TestParse_CodeAttributeAtClassScopeFallsBackToMinimal(t *testing.T) {
	code := []byte{0xb1}
	cb := newClassBuilder("com/example/Baz", "java/lang/Object", "run", "()V", code)
	cb.extraClassAttrs = 1
	var extra []byte
	extra = appendU2(extra, cb.codeAttrNameIdx)
	extra = appendU4(extra, 2)
	extra = appendU2(extra, 0)
	cb.extraClassAttr = extra

	data := cb.build()
	class, _, err := Parse(data, "Baz.class")
	require.NoError(t, err)
	assert.True(t, class.Minimal)
	assert.Empty(t, class.Methods)
	assert.Equal(t, "com/example/Baz", class.Name)
}
