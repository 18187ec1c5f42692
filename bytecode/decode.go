// Package bytecode walks a method's Code array into the typed instruction
// stream, call-site list, and string constants the rest of the analyzer
// consumes - JVM Spec chapter 6 opcode shapes, decoded without executing
// anything.
package bytecode

import (
	"fmt"

	"github.com/exoego/inspequte-sub000/ir"
)

// ConstantResolver is the subset of classfile.ConstantPool's resolution
// methods the decoder needs. classfile.ConstantPool satisfies this
// interface structurally; bytecode does not import classfile so the two
// packages can be tested independently.
type ConstantResolver interface {
	Utf8(index uint16) (string, bool)
	ClassName(index uint16) (string, bool)
	String(index uint16) (string, bool)
	Integer(index uint16) (int32, bool)
	Float(index uint16) (float32, bool)
	MethodRef(index uint16) (owner, name, descriptor string, ok bool)
	InterfaceMethodRef(index uint16) (owner, name, descriptor string, ok bool)
	InvokeDynamicParts(index uint16) (bootstrapIndex uint16, name, descriptor string, ok bool)
}

// Decode walks code from offset 0, producing the ordered instruction list,
// the subset tagged Invoke as a flat call-site list, and every string
// constant touched by a ldc/ldc_w. bootstrapMethods resolves invokedynamic
// call sites to their lambda implementation, when recoverable.
func Decode(resolver ConstantResolver, bootstrapMethods []ir.BootstrapMethod, code []byte) ([]*ir.Instruction, []*ir.CallSite, []string, error) {
	var instructions []*ir.Instruction
	var calls []*ir.CallSite
	var strings []string

	offset := 0
	for offset < len(code) {
		opcode := code[offset]
		length, err := instructionLength(code, offset)
		if err != nil {
			return nil, nil, nil, err
		}

		kind, err := decodeKind(resolver, bootstrapMethods, code, offset, opcode, length)
		if err != nil {
			return nil, nil, nil, err
		}

		inst := &ir.Instruction{Offset: offset, Opcode: opcode, Kind: kind}
		instructions = append(instructions, inst)

		switch kind.Tag {
		case ir.KindInvoke:
			calls = append(calls, kind.Invoke)
		case ir.KindConstString:
			strings = append(strings, kind.ConstString)
		}

		offset += length
	}
	return instructions, calls, strings, nil
}

// instructionLength computes the full length (opcode byte included) of the
// instruction starting at offset.
func instructionLength(code []byte, offset int) (int, error) {
	opcode := code[offset]
	length := opcodeLength[opcode]
	switch length {
	case lenInvalid:
		return 0, fmt.Errorf("%w: 0x%02x at offset %d", ErrInvalidOpcode, opcode, offset)
	case lenVariable:
		return switchLength(code, offset)
	case lenWide:
		return wideLength(code, offset)
	default:
		if offset+length > len(code) {
			return 0, fmt.Errorf("%w: opcode 0x%02x at offset %d needs %d bytes", ErrBoundsViolation, opcode, offset, length)
		}
		return length, nil
	}
}

func wideLength(code []byte, offset int) (int, error) {
	if offset+1 >= len(code) {
		return 0, fmt.Errorf("%w: wide at offset %d missing wrapped opcode", ErrBoundsViolation, offset)
	}
	wrapped := code[offset+1]
	if wrapped == OpIinc {
		if offset+6 > len(code) {
			return 0, fmt.Errorf("%w: wide iinc at offset %d", ErrBoundsViolation, offset)
		}
		return 6, nil
	}
	if offset+4 > len(code) {
		return 0, fmt.Errorf("%w: wide at offset %d", ErrBoundsViolation, offset)
	}
	return 4, nil
}

func switchLength(code []byte, offset int) (int, error) {
	opcode := code[offset]
	padding := (4 - ((offset + 1) % 4)) % 4
	cursor := offset + 1 + padding
	if cursor+4 > len(code) {
		return 0, fmt.Errorf("%w: switch at offset %d missing default", ErrBoundsViolation, offset)
	}
	cursor += 4 // default

	if opcode == OpTableswitch {
		if cursor+8 > len(code) {
			return 0, fmt.Errorf("%w: tableswitch at offset %d missing low/high", ErrBoundsViolation, offset)
		}
		low := be32(code, cursor)
		high := be32(code, cursor+4)
		cursor += 8
		count := int64(high) - int64(low) + 1
		if count < 0 {
			return 0, fmt.Errorf("%w: tableswitch at offset %d has high < low", ErrBoundsViolation, offset)
		}
		cursor += int(count) * 4
	} else { // lookupswitch
		if cursor+4 > len(code) {
			return 0, fmt.Errorf("%w: lookupswitch at offset %d missing npairs", ErrBoundsViolation, offset)
		}
		npairs := be32(code, cursor)
		cursor += 4
		cursor += int(npairs) * 8
	}

	if cursor > len(code) {
		return 0, fmt.Errorf("%w: switch at offset %d overruns code", ErrBoundsViolation, offset)
	}
	return cursor - offset, nil
}

// SwitchTargets decodes a tableswitch/lookupswitch instruction's default
// and case targets as absolute code offsets (the JVM spec encodes them as
// signed offsets relative to the instruction's own offset). Exported so the
// CFG builder can compute branch boundaries without re-deriving the
// padding/layout rules itself.
func SwitchTargets(code []byte, offset int) (defaultTarget int, caseTargets []int, err error) {
	opcode := code[offset]
	padding := (4 - ((offset + 1) % 4)) % 4
	cursor := offset + 1 + padding
	if cursor+4 > len(code) {
		return 0, nil, fmt.Errorf("%w: switch at offset %d missing default", ErrBoundsViolation, offset)
	}
	defaultTarget = offset + int(be32(code, cursor))
	cursor += 4

	if opcode == OpTableswitch {
		if cursor+8 > len(code) {
			return 0, nil, fmt.Errorf("%w: tableswitch at offset %d missing low/high", ErrBoundsViolation, offset)
		}
		low := be32(code, cursor)
		high := be32(code, cursor+4)
		cursor += 8
		for i := low; i <= high; i++ {
			if cursor+4 > len(code) {
				return 0, nil, fmt.Errorf("%w: tableswitch at offset %d truncated table", ErrBoundsViolation, offset)
			}
			caseTargets = append(caseTargets, offset+int(be32(code, cursor)))
			cursor += 4
		}
	} else {
		if cursor+4 > len(code) {
			return 0, nil, fmt.Errorf("%w: lookupswitch at offset %d missing npairs", ErrBoundsViolation, offset)
		}
		npairs := be32(code, cursor)
		cursor += 4
		for i := int32(0); i < npairs; i++ {
			if cursor+8 > len(code) {
				return 0, nil, fmt.Errorf("%w: lookupswitch at offset %d truncated table", ErrBoundsViolation, offset)
			}
			caseTargets = append(caseTargets, offset+int(be32(code, cursor+4)))
			cursor += 8
		}
	}
	return defaultTarget, caseTargets, nil
}

// BranchTarget decodes the single relative target of a goto/if.../jsr
// (2-byte operand) or goto_w/jsr_w (4-byte operand) instruction.
func BranchTarget(code []byte, offset int) int {
	opcode := code[offset]
	if opcode == OpGotoW || opcode == OpJsrW {
		return offset + int(be32(code, offset+1))
	}
	return offset + int(int16(be16(code, offset+1)))
}

// IsConditionalBranch reports whether opcode is an ifXX/if_icmpXX/
// if_acmpXX/ifnull/ifnonnull comparison that falls through when not taken.
func IsConditionalBranch(opcode byte) bool {
	return (opcode >= OpIfeq && opcode <= 0xa6) || opcode == OpIfnull || opcode == OpIfnonnull
}

// IsUnconditionalBranch reports whether opcode always transfers control
// (goto/goto_w/jsr/jsr_w) with no fall-through edge.
func IsUnconditionalBranch(opcode byte) bool {
	return opcode == OpGoto || opcode == OpGotoW || opcode == OpJsr || opcode == OpJsrW
}

// IsSwitch reports whether opcode is tableswitch/lookupswitch.
func IsSwitch(opcode byte) bool {
	return opcode == OpTableswitch || opcode == OpLookupswitch
}

// IsTerminator reports whether opcode ends a basic block with no implicit
// fall-through to the next instruction (return family, athrow, ret, the
// unconditional branches, and tableswitch/lookupswitch).
func IsTerminator(opcode byte) bool {
	switch opcode {
	case 0xac, 0xad, 0xae, 0xaf, 0xb0, 0xb1, // Xreturn / return
		0xbf,   // athrow
		OpRet: // ret
		return true
	}
	return IsUnconditionalBranch(opcode) || IsSwitch(opcode)
}

// LocalIndex returns the local variable slot an iload/lload/fload/dload/
// aload/istore/lstore/fstore/dstore/astore/ret/iinc instruction addresses,
// including the shorthand _0../_3 forms (index implied by the opcode
// itself) and the wide-prefixed 2-byte-index form. ok is false for any
// other opcode.
func LocalIndex(code []byte, offset int) (index int, ok bool) {
	opcode := code[offset]
	if opcode == OpWide {
		if offset+1 >= len(code) {
			return 0, false
		}
		return int(be16(code, offset+2)), true
	}
	switch {
	case opcode >= OpIload && opcode <= OpAload:
		return int(code[offset+1]), true
	case opcode >= OpIstore && opcode <= OpAstore:
		return int(code[offset+1]), true
	case opcode == OpRet:
		return int(code[offset+1]), true
	case opcode == OpIinc:
		return int(code[offset+1]), true
	case opcode >= 0x1a && opcode <= 0x2d: // iload_0..aload_3
		return int((opcode - 0x1a) % 4), true
	case opcode >= 0x3b && opcode <= 0x4e: // istore_0..astore_3
		return int((opcode - 0x3b) % 4), true
	default:
		return 0, false
	}
}

func be16(code []byte, at int) uint16 {
	return uint16(code[at])<<8 | uint16(code[at+1])
}

func be32(code []byte, at int) int32 {
	return int32(uint32(code[at])<<24 | uint32(code[at+1])<<16 | uint32(code[at+2])<<8 | uint32(code[at+3]))
}

func decodeKind(resolver ConstantResolver, bootstrapMethods []ir.BootstrapMethod, code []byte, offset int, opcode byte, length int) (ir.InstructionKind, error) {
	switch opcode {
	case OpLdc:
		return decodeLdc(resolver, uint16(code[offset+1])), nil
	case OpLdcW, OpLdc2W:
		return decodeLdc(resolver, be16(code, offset+1)), nil
	case OpInvokevirtual:
		return decodeInvoke(resolver, be16(code, offset+1), ir.Virtual, offset)
	case OpInvokespecial:
		return decodeInvoke(resolver, be16(code, offset+1), ir.Special, offset)
	case OpInvokestatic:
		return decodeInvoke(resolver, be16(code, offset+1), ir.Static, offset)
	case OpInvokeinterface:
		return decodeInvokeInterface(resolver, be16(code, offset+1), offset)
	case OpInvokedynamic:
		return decodeInvokeDynamic(resolver, bootstrapMethods, be16(code, offset+1)), nil
	default:
		return ir.InstructionKind{Tag: ir.KindOther}, nil
	}
}

func decodeLdc(resolver ConstantResolver, index uint16) ir.InstructionKind {
	if s, ok := resolver.String(index); ok {
		return ir.InstructionKind{Tag: ir.KindConstString, ConstString: s}
	}
	if c, ok := resolver.ClassName(index); ok {
		return ir.InstructionKind{Tag: ir.KindConstClass, ConstClass: c}
	}
	if v, ok := resolver.Integer(index); ok {
		return ir.InstructionKind{Tag: ir.KindConstInt, ConstInt: v}
	}
	if v, ok := resolver.Float(index); ok {
		return ir.InstructionKind{Tag: ir.KindConstFloat, ConstFloat: v}
	}
	return ir.InstructionKind{Tag: ir.KindOther}
}

func decodeInvoke(resolver ConstantResolver, index uint16, kind ir.CallKind, offset int) (ir.InstructionKind, error) {
	owner, name, descriptor, ok := resolver.MethodRef(index)
	if !ok {
		return ir.InstructionKind{}, fmt.Errorf("bytecode: unresolved method reference at offset %d", offset)
	}
	return ir.InstructionKind{
		Tag: ir.KindInvoke,
		Invoke: &ir.CallSite{
			Owner: owner, Name: name, Descriptor: descriptor,
			Kind: kind, Offset: offset,
		},
	}, nil
}

func decodeInvokeInterface(resolver ConstantResolver, index uint16, offset int) (ir.InstructionKind, error) {
	owner, name, descriptor, ok := resolver.InterfaceMethodRef(index)
	if !ok {
		return ir.InstructionKind{}, fmt.Errorf("bytecode: unresolved interface method reference at offset %d", offset)
	}
	return ir.InstructionKind{
		Tag: ir.KindInvoke,
		Invoke: &ir.CallSite{
			Owner: owner, Name: name, Descriptor: descriptor,
			Kind: ir.Interface, Offset: offset,
		},
	}, nil
}

func decodeInvokeDynamic(resolver ConstantResolver, bootstrapMethods []ir.BootstrapMethod, index uint16) ir.InstructionKind {
	bsmIndex, _, descriptor, ok := resolver.InvokeDynamicParts(index)
	if !ok {
		return ir.InstructionKind{Tag: ir.KindOther}
	}
	dyn := &ir.InvokeDynamic{Descriptor: descriptor}
	if int(bsmIndex) < len(bootstrapMethods) {
		dyn.ImplMethod = bootstrapMethods[bsmIndex].Name
	}
	return ir.InstructionKind{Tag: ir.KindInvokeDynamic, InvokeDyn: dyn}
}
