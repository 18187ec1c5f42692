package cfg

import "errors"

// ErrInvalidTarget is returned when a branch or switch case refers to an
// offset that is not the start of any decoded instruction. Exception
// handler offsets are not checked against it: a handler whose HandlerPC
// starts no block simply gets no exception edge.
var ErrInvalidTarget = errors.New("cfg: invalid branch target")
