package scan

// buildMinimalClassBytes assembles the smallest valid class file the
// scanner's pipeline will accept: a public class with the given binary
// name and super name, no interfaces, no fields, and either zero or one
// method. Mirrors the constant-pool and attribute layout classfile's own
// tests build, kept separate since that builder is unexported to its
// package.

const (
	tagUtf8  = 1
	tagClass = 7

	tagNameAndType = 12
	tagMethodref   = 10

	cafebabe = 0xCAFEBABE
)

type cpEntry struct {
	buf []byte
}

type minimalClassBuilder struct {
	entries []cpEntry
	next    uint16
}

func newMinimalClassBuilder() *minimalClassBuilder {
	return &minimalClassBuilder{next: 1}
}

func u2(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
func u4(v uint32) []byte { return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)} }

func (b *minimalClassBuilder) utf8(s string) uint16 {
	idx := b.next
	buf := append([]byte{tagUtf8}, u2(uint16(len(s)))...)
	buf = append(buf, s...)
	b.entries = append(b.entries, cpEntry{buf: buf})
	b.next++
	return idx
}

func (b *minimalClassBuilder) class(nameIdx uint16) uint16 {
	idx := b.next
	buf := append([]byte{tagClass}, u2(nameIdx)...)
	b.entries = append(b.entries, cpEntry{buf: buf})
	b.next++
	return idx
}

func (b *minimalClassBuilder) nameAndType(nameIdx, descIdx uint16) uint16 {
	idx := b.next
	buf := append([]byte{tagNameAndType}, u2(nameIdx)...)
	buf = append(buf, u2(descIdx)...)
	b.entries = append(b.entries, cpEntry{buf: buf})
	b.next++
	return idx
}

func (b *minimalClassBuilder) methodref(classIdx, ntIdx uint16) uint16 {
	idx := b.next
	buf := append([]byte{tagMethodref}, u2(classIdx)...)
	buf = append(buf, u2(ntIdx)...)
	b.entries = append(b.entries, cpEntry{buf: buf})
	b.next++
	return idx
}

func (b *minimalClassBuilder) pool() []byte {
	var out []byte
	for _, e := range b.entries {
		out = append(out, e.buf...)
	}
	return out
}

// buildMinimalClassBytes builds a class with no methods and no attributes.
func buildMinimalClassBytes(thisName, superName string) []byte {
	cp := newMinimalClassBuilder()
	thisU := cp.utf8(thisName)
	superU := cp.utf8(superName)
	thisIdx := cp.class(thisU)
	superIdx := cp.class(superU)

	var out []byte
	out = append(out, u4(cafebabe)...)
	out = append(out, u2(0)...)  // minor
	out = append(out, u2(52)...) // major
	out = append(out, u2(cp.next)...)
	out = append(out, cp.pool()...)
	out = append(out, u2(0x0021)...) // ACC_PUBLIC | ACC_SUPER
	out = append(out, u2(thisIdx)...)
	out = append(out, u2(superIdx)...)
	out = append(out, u2(0)...) // interfaces_count
	out = append(out, u2(0)...) // fields_count
	out = append(out, u2(0)...) // methods_count
	out = append(out, u2(0)...) // attributes_count
	return out
}

// buildClassWithTrivialMethod builds a class with one void no-arg method
// whose entire body is a bare "return" (0xb1), enough to exercise the
// scanner's bytecode-decode/CFG-build pipeline step without a real code
// attribute from javac.
func buildClassWithTrivialMethod(thisName, superName, methodName string) []byte {
	cp := newMinimalClassBuilder()
	thisU := cp.utf8(thisName)
	superU := cp.utf8(superName)
	thisIdx := cp.class(thisU)
	superIdx := cp.class(superU)
	methodNameIdx := cp.utf8(methodName)
	methodDescIdx := cp.utf8("()V")
	codeAttrNameIdx := cp.utf8("Code")

	var out []byte
	out = append(out, u4(cafebabe)...)
	out = append(out, u2(0)...)
	out = append(out, u2(52)...)
	out = append(out, u2(cp.next)...)
	out = append(out, cp.pool()...)
	out = append(out, u2(0x0021)...)
	out = append(out, u2(thisIdx)...)
	out = append(out, u2(superIdx)...)
	out = append(out, u2(0)...) // interfaces
	out = append(out, u2(0)...) // fields

	out = append(out, u2(1)...)      // methods_count
	out = append(out, u2(0x0001)...) // ACC_PUBLIC
	out = append(out, u2(methodNameIdx)...)
	out = append(out, u2(methodDescIdx)...)
	out = append(out, u2(1)...) // method attributes_count

	code := []byte{0xb1} // return
	var codeBody []byte
	codeBody = append(codeBody, u2(1)...) // max_stack
	codeBody = append(codeBody, u2(1)...) // max_locals
	codeBody = append(codeBody, u4(uint32(len(code)))...)
	codeBody = append(codeBody, code...)
	codeBody = append(codeBody, u2(0)...) // exception_table_length
	codeBody = append(codeBody, u2(0)...) // code attributes_count

	out = append(out, u2(codeAttrNameIdx)...)
	out = append(out, u4(uint32(len(codeBody)))...)
	out = append(out, codeBody...)

	out = append(out, u2(0)...) // class attributes_count
	return out
}
