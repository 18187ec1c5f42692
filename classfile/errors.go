package classfile

import "errors"

// ErrBadMagic is returned when the first four bytes are not CAFEBABE.
var ErrBadMagic = errors.New("classfile: bad magic")

// ErrTruncated is returned when the byte slice ends before a structural
// field that the format requires is fully read. An unknown constant-pool
// tag is reported with it too, since that entry's length, and so the rest
// of the pool, cannot be delimited.
var ErrTruncated = errors.New("classfile: truncated class file")

// ErrBadConstantPoolIndex is returned when a constant-pool index is out of
// range or refers to an entry of the wrong kind.
var ErrBadConstantPoolIndex = errors.New("classfile: bad constant pool index")

// ErrUnmatchedAttribute signals that an attribute was encountered whose
// structure this reader does not model; the caller falls back to the
// minimal parser.
var ErrUnmatchedAttribute = errors.New("classfile: unmatched attribute")
