package bytecode

import "errors"

// ErrInvalidOpcode is returned when a byte in the code array does not name
// any JVM opcode.
var ErrInvalidOpcode = errors.New("bytecode: invalid opcode")

// ErrBoundsViolation is returned when an instruction's operand bytes (or a
// switch's padding/table) run past the end of the code array.
var ErrBoundsViolation = errors.New("bytecode: bounds violation")
