// Package classfile parses JVM class file bytes into the shared ir.Class
// model: constant pool resolution, field/method/attribute decoding, and a
// minimal-parser fallback for attribute shapes this reader does not model.
package classfile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/exoego/inspequte-sub000/ir"
)

const magic = 0xCAFEBABE

// Attribute names this reader understands structurally. Any other
// attribute_name_index is skipped by its declared attribute_length without
// being interpreted, the same way a real reader tolerates standard
// attributes (StackMapTable, InnerClasses, ...) it has no
// use for. Parse falls back to the minimal reader only when one of these
// names turns up in a context the format does not allow it in (Code nested
// inside a class's own attribute list, for instance) - a genuinely
// "unmatched" shape, not merely an attribute this reader ignores.
const (
	attrCode                        = "Code"
	attrLineNumberTable              = "LineNumberTable"
	attrLocalVariableTypeTable       = "LocalVariableTypeTable"
	attrSourceFile                   = "SourceFile"
	attrSignature                    = "Signature"
	attrRecord                       = "Record"
	attrExceptions                   = "Exceptions"
	attrRuntimeVisibleAnnotations     = "RuntimeVisibleAnnotations"
	attrRuntimeVisibleTypeAnnotations = "RuntimeVisibleTypeAnnotations"
	attrBootstrapMethods              = "BootstrapMethods"
)

// Parse decodes a byte slice into an ir.Class. fileID identifies the input
// for error messages (artifact URI or JAR-entry name). The returned
// ConstantPool is valid only for the duration of the caller's pipeline step
// (bytecode decoding, typeuse assimilation); it is not part of the
// persisted IR and callers must not retain it past that step.
func Parse(data []byte, fileID string) (*ir.Class, *ConstantPool, error) {
	r := newByteReader(data)

	magicWord, err := r.u4()
	if err != nil {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}
	if magicWord != magic {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, ErrBadMagic)
	}

	if _, err := r.u2(); err != nil { // minor_version
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}
	if _, err := r.u2(); err != nil { // major_version
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}

	cp, err := parseConstantPool(r)
	if err != nil {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}

	accessFlagsRaw, err := r.u2()
	if err != nil {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}
	accessFlags := ir.AccessFlags(accessFlagsRaw)

	thisClassIdx, err := r.u2()
	if err != nil {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}
	thisName, ok := cp.ClassName(thisClassIdx)
	if !ok {
		return nil, nil, fmt.Errorf("classfile %s: %w: this_class index %d", fileID, ErrBadConstantPoolIndex, thisClassIdx)
	}

	superClassIdx, err := r.u2()
	if err != nil {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}
	var superName string
	if superClassIdx != 0 {
		superName, ok = cp.ClassName(superClassIdx)
		if !ok {
			return nil, nil, fmt.Errorf("classfile %s: %w: super_class index %d", fileID, ErrBadConstantPoolIndex, superClassIdx)
		}
	}

	interfacesCount, err := r.u2()
	if err != nil {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}
	interfaces := make([]string, 0, interfacesCount)
	for i := 0; i < int(interfacesCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
		}
		name, ok := cp.ClassName(idx)
		if !ok {
			return nil, nil, fmt.Errorf("classfile %s: %w: interface index %d", fileID, ErrBadConstantPoolIndex, idx)
		}
		interfaces = append(interfaces, name)
	}

	class := &ir.Class{
		Name:              thisName,
		SuperName:         superName,
		AccessFlags:       accessFlags,
		Interfaces:        interfaces,
		ReferencedClasses: referencedClasses(cp, thisName),
		ArtifactIndex:     -1,
	}

	fields, methods, err := parseFieldsAndMethods(r, cp)
	if err != nil {
		if errors.Is(err, ErrUnmatchedAttribute) {
			class.Minimal = true
			return class, cp, nil
		}
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}

	classAttrCount, err := r.u2()
	if err != nil {
		return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
	}
	for i := 0; i < int(classAttrCount); i++ {
		name, body, err := readAttribute(r, cp)
		if err != nil {
			return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
		}
		switch name {
		case attrCode, attrLineNumberTable, attrLocalVariableTypeTable:
			// these attributes are only valid nested inside a method's Code
			// attribute; seeing them at class scope is an unmatched shape.
			class.Minimal = true
			return class, cp, nil
		case attrSourceFile:
			idx, ok := u2From(body)
			if !ok {
				return nil, nil, fmt.Errorf("classfile %s: %w", fileID, ErrTruncated)
			}
			if name, ok := cp.Utf8(idx); ok {
				class.SourceFile = name
			}
		case attrSignature:
			if sig, ok := resolveSignatureAttr(body, cp); ok {
				class.Signature = sig
			}
		case attrRecord:
			class.IsRecord = true
		case attrRuntimeVisibleAnnotations:
			class.RawRuntimeVisibleAnnotations = body
		case attrBootstrapMethods:
			methods, err := parseBootstrapMethods(body, cp)
			if err != nil {
				return nil, nil, fmt.Errorf("classfile %s: %w", fileID, err)
			}
			class.BootstrapMethods = methods
		}
	}

	class.Fields = fields
	class.Methods = methods
	return class, cp, nil
}

func u2From(body []byte) (uint16, bool) {
	if len(body) < 2 {
		return 0, false
	}
	return uint16(body[0])<<8 | uint16(body[1]), true
}

func parseFieldsAndMethods(r *byteReader, cp *ConstantPool) ([]*ir.Field, []*ir.Method, error) {
	fieldsCount, err := r.u2()
	if err != nil {
		return nil, nil, err
	}
	fields := make([]*ir.Field, 0, fieldsCount)
	for i := 0; i < int(fieldsCount); i++ {
		f, err := parseField(r, cp)
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, f)
	}

	methodsCount, err := r.u2()
	if err != nil {
		return nil, nil, err
	}
	methods := make([]*ir.Method, 0, methodsCount)
	for i := 0; i < int(methodsCount); i++ {
		m, err := parseMethod(r, cp)
		if err != nil {
			return nil, nil, err
		}
		methods = append(methods, m)
	}

	return fields, methods, nil
}

// readAttribute reads one attribute_info (name index + length-prefixed
// body) and returns its resolved name and raw body bytes.
func readAttribute(r *byteReader, cp *ConstantPool) (string, []byte, error) {
	nameIdx, err := r.u2()
	if err != nil {
		return "", nil, err
	}
	length, err := r.u4()
	if err != nil {
		return "", nil, err
	}
	body, err := r.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	name, ok := cp.Utf8(nameIdx)
	if !ok {
		return "", nil, fmt.Errorf("%w: attribute name index %d", ErrBadConstantPoolIndex, nameIdx)
	}
	return name, body, nil
}

func parseField(r *byteReader, cp *ConstantPool) (*ir.Field, error) {
	accessFlags, err := r.u2()
	if err != nil {
		return nil, err
	}
	nameIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	descIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	name, ok := cp.Utf8(nameIdx)
	if !ok {
		return nil, fmt.Errorf("%w: field name index %d", ErrBadConstantPoolIndex, nameIdx)
	}
	descriptor, ok := cp.Utf8(descIdx)
	if !ok {
		return nil, fmt.Errorf("%w: field descriptor index %d", ErrBadConstantPoolIndex, descIdx)
	}

	field := &ir.Field{Name: name, Descriptor: descriptor, AccessFlags: ir.AccessFlags(accessFlags)}

	attrCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(attrCount); i++ {
		attrName, body, err := readAttribute(r, cp)
		if err != nil {
			return nil, err
		}
		switch attrName {
		case attrCode, attrLineNumberTable, attrLocalVariableTypeTable:
			return nil, fmt.Errorf("%w: %s on a field", ErrUnmatchedAttribute, attrName)
		case attrSignature:
			if sig, ok := resolveSignatureAttr(body, cp); ok {
				field.Signature = sig
			}
		case attrRuntimeVisibleAnnotations:
			field.RawRuntimeVisibleAnnotations = body
		case attrRuntimeVisibleTypeAnnotations:
			field.RawRuntimeVisibleTypeAnnotations = body
		}
	}
	return field, nil
}

func parseMethod(r *byteReader, cp *ConstantPool) (*ir.Method, error) {
	accessFlags, err := r.u2()
	if err != nil {
		return nil, err
	}
	nameIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	descIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	name, ok := cp.Utf8(nameIdx)
	if !ok {
		return nil, fmt.Errorf("%w: method name index %d", ErrBadConstantPoolIndex, nameIdx)
	}
	descriptor, ok := cp.Utf8(descIdx)
	if !ok {
		return nil, fmt.Errorf("%w: method descriptor index %d", ErrBadConstantPoolIndex, descIdx)
	}

	method := &ir.Method{Name: name, Descriptor: descriptor, AccessFlags: ir.AccessFlags(accessFlags)}

	attrCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(attrCount); i++ {
		attrName, body, err := readAttribute(r, cp)
		if err != nil {
			return nil, err
		}
		switch attrName {
		case attrCode:
			if err := parseCodeAttribute(body, cp, method); err != nil {
				return nil, err
			}
		case attrLineNumberTable, attrLocalVariableTypeTable:
			return nil, fmt.Errorf("%w: %s outside Code", ErrUnmatchedAttribute, attrName)
		case attrSignature:
			if sig, ok := resolveSignatureAttr(body, cp); ok {
				method.Signature = sig
			}
		case attrRuntimeVisibleAnnotations:
			method.RawRuntimeVisibleAnnotations = body
		case attrRuntimeVisibleTypeAnnotations:
			method.RawRuntimeVisibleTypeAnnotations = body
		case attrExceptions:
			// checked-exception targets are already captured in
			// ReferencedClasses via the whole-pool Class-entry scan.
		}
	}
	return method, nil
}

func resolveSignatureAttr(body []byte, cp *ConstantPool) (string, bool) {
	idx, ok := u2From(body)
	if !ok {
		return "", false
	}
	return cp.Utf8(idx)
}

// parseCodeAttribute decodes a Code attribute body directly: its nested
// sub-attributes share the same constant pool as the enclosing class, so
// it is not routed through readAttribute itself.
func parseCodeAttribute(body []byte, cp *ConstantPool, method *ir.Method) error {
	br := newByteReader(body)

	maxStack, err := br.u2()
	if err != nil {
		return err
	}
	maxLocals, err := br.u2()
	if err != nil {
		return err
	}
	codeLength, err := br.u4()
	if err != nil {
		return err
	}
	code, err := br.bytes(int(codeLength))
	if err != nil {
		return err
	}

	method.MaxStack = int(maxStack)
	method.MaxLocals = int(maxLocals)
	method.Bytecode = append([]byte(nil), code...)

	exTableLen, err := br.u2()
	if err != nil {
		return err
	}
	handlers := make([]ir.ExceptionHandler, 0, exTableLen)
	for i := 0; i < int(exTableLen); i++ {
		startPC, err := br.u2()
		if err != nil {
			return err
		}
		endPC, err := br.u2()
		if err != nil {
			return err
		}
		handlerPC, err := br.u2()
		if err != nil {
			return err
		}
		catchTypeIdx, err := br.u2()
		if err != nil {
			return err
		}
		var catchType string
		if catchTypeIdx != 0 {
			catchType, _ = cp.ClassName(catchTypeIdx)
		}
		handlers = append(handlers, ir.ExceptionHandler{
			StartPC:   int(startPC),
			EndPC:     int(endPC),
			HandlerPC: int(handlerPC),
			CatchType: catchType,
		})
	}
	method.ExceptionTable = handlers

	codeAttrCount, err := br.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(codeAttrCount); i++ {
		name, sub, err := readAttribute(br, cp)
		if err != nil {
			return err
		}
		switch name {
		case attrLineNumberTable:
			entries, err := parseLineNumberTable(sub)
			if err != nil {
				return err
			}
			method.LineTable = entries
		case attrLocalVariableTypeTable:
			entries, err := parseLocalVariableTypeTable(sub, cp)
			if err != nil {
				return err
			}
			method.LocalVarTypes = entries
		case attrCode:
			return fmt.Errorf("%w: Code nested inside Code", ErrUnmatchedAttribute)
		}
	}
	return nil
}

func parseLineNumberTable(body []byte) ([]ir.LineNumberEntry, error) {
	br := newByteReader(body)
	count, err := br.u2()
	if err != nil {
		return nil, err
	}
	entries := make([]ir.LineNumberEntry, 0, count)
	for i := 0; i < int(count); i++ {
		startPC, err := br.u2()
		if err != nil {
			return nil, err
		}
		line, err := br.u2()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ir.LineNumberEntry{StartPC: int(startPC), LineNumber: int(line)})
	}
	return entries, nil
}

func parseLocalVariableTypeTable(body []byte, cp *ConstantPool) ([]ir.LocalVariableType, error) {
	br := newByteReader(body)
	count, err := br.u2()
	if err != nil {
		return nil, err
	}
	entries := make([]ir.LocalVariableType, 0, count)
	for i := 0; i < int(count); i++ {
		startPC, err := br.u2()
		if err != nil {
			return nil, err
		}
		length, err := br.u2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := br.u2()
		if err != nil {
			return nil, err
		}
		sigIdx, err := br.u2()
		if err != nil {
			return nil, err
		}
		index, err := br.u2()
		if err != nil {
			return nil, err
		}
		name, _ := cp.Utf8(nameIdx)
		signature, _ := cp.Utf8(sigIdx)
		entries = append(entries, ir.LocalVariableType{
			StartPC:   int(startPC),
			Length:    int(length),
			Name:      name,
			Signature: signature,
			Index:     int(index),
		})
	}
	return entries, nil
}

// parseBootstrapMethods decodes a BootstrapMethods attribute body into its
// resolved method-handle targets, discarding the static argument indices
// (the opcode decoder only needs the handle target to recover a lambda's
// implementation name).
func parseBootstrapMethods(body []byte, cp *ConstantPool) ([]ir.BootstrapMethod, error) {
	br := newByteReader(body)
	count, err := br.u2()
	if err != nil {
		return nil, err
	}
	out := make([]ir.BootstrapMethod, 0, count)
	for i := 0; i < int(count); i++ {
		handleIdx, err := br.u2()
		if err != nil {
			return nil, err
		}
		argCount, err := br.u2()
		if err != nil {
			return nil, err
		}
		if err := br.skip(int(argCount) * 2); err != nil {
			return nil, err
		}
		refKind, owner, name, descriptor, _ := cp.MethodHandleTarget(handleIdx)
		out = append(out, ir.BootstrapMethod{RefKind: refKind, Owner: owner, Name: name, Descriptor: descriptor})
	}
	return out, nil
}

// referencedClasses collects every Class constant pool entry's resolved,
// normalized binary name, excluding the class's own name, sorted and
// deduplicated.
func referencedClasses(cp *ConstantPool, ownName string) []string {
	set := make(map[string]struct{})
	for idx := 1; idx < len(cp.entries); idx++ {
		if cp.entries[idx].tag != tagClass {
			continue
		}
		raw, ok := cp.Utf8(cp.entries[idx].nameIndex)
		if !ok {
			continue
		}
		name, ok := normalizeReferencedClassName(raw)
		if !ok || name == ownName {
			continue
		}
		set[name] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeReferencedClassName(raw string) (string, bool) {
	s := raw
	for strings.HasPrefix(s, "[") {
		s = s[1:]
	}
	if s == "" {
		return "", false
	}
	if s[0] == 'L' && strings.HasSuffix(s, ";") && len(s) >= 2 {
		return s[1 : len(s)-1], true
	}
	if len(s) == 1 {
		return "", false // primitive array component
	}
	return s, true
}
