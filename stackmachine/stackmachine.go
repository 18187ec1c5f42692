// Package stackmachine implements a generic, side-effect-free operand
// stack and local-variable store that rules compose with a ValueDomain to
// approximate a method's runtime state during dataflow analysis.
package stackmachine

// ValueDomain supplies the abstract values a Machine pushes when it has no
// concrete value to propagate.
type ValueDomain[V any] interface {
	// UnknownValue is used wherever the machine has no information at all
	// about a pushed value (the bottom of the stack, an unmodeled opcode).
	UnknownValue() V
	// ScalarValue is used for ordinary constant/arithmetic pushes where the
	// domain only tracks presence, not identity.
	ScalarValue() V
}

// Machine is a per-method operand stack plus a sparse local-variable
// table, parameterized over an abstract value type V. It never panics:
// stack underflow and missing locals both yield the configured bottom
// value instead.
type Machine[V any] struct {
	stack  []V
	locals map[int]V
	bottom V
}

// New creates a Machine whose underflow/miss reads return bottom.
func New[V any](bottom V) *Machine[V] {
	return &Machine[V]{locals: make(map[int]V), bottom: bottom}
}

// Push appends v to the top of the stack.
func (m *Machine[V]) Push(v V) {
	m.stack = append(m.stack, v)
}

// Pop removes and returns the top of the stack, or bottom if empty.
func (m *Machine[V]) Pop() V {
	if len(m.stack) == 0 {
		return m.bottom
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

// PopN drops up to n entries from the top of the stack.
func (m *Machine[V]) PopN(n int) {
	if n <= 0 {
		return
	}
	if n > len(m.stack) {
		n = len(m.stack)
	}
	m.stack = m.stack[:len(m.stack)-n]
}

// Peek returns the top of the stack without removing it, or bottom if
// empty.
func (m *Machine[V]) Peek() V {
	if len(m.stack) == 0 {
		return m.bottom
	}
	return m.stack[len(m.stack)-1]
}

// LoadLocal reads slot i, yielding bottom for a slot never stored to.
func (m *Machine[V]) LoadLocal(i int) V {
	if v, ok := m.locals[i]; ok {
		return v
	}
	return m.bottom
}

// StoreLocal writes slot i, creating it if necessary.
func (m *Machine[V]) StoreLocal(i int, v V) {
	m.locals[i] = v
}

// StackValues borrows the live stack slice for in-place inspection (dup2
// and similar instructions that reorder more than one slot at once).
// Callers must not retain the slice past the next mutating call.
func (m *Machine[V]) StackValues() []V {
	return m.stack
}

// Depth reports the current stack height.
func (m *Machine[V]) Depth() int {
	return len(m.stack)
}

// Bottom returns the configured bottom value.
func (m *Machine[V]) Bottom() V {
	return m.bottom
}
