package typeuse

import "errors"

// ErrTruncated is returned when an annotation, signature, or descriptor
// blob ends before a structurally required field has been read.
var ErrTruncated = errors.New("typeuse: truncated")

// ErrMalformed is returned when a signature or descriptor does not match
// the grammar its kind requires.
var ErrMalformed = errors.New("typeuse: malformed")
