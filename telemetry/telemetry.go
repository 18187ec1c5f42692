// Package telemetry gives the rest of the module a single, optional place
// to emit structured diagnostic events instead of writing to stdout/stderr
// directly. A nil *Tracer is always safe to call into: it starts Noop
// spans.
package telemetry

// Attr is one structured key/value attribute attached to an Event.
type Attr struct {
	Key   string
	Value any
}

// String builds a string-valued Attr.
func String(key, value string) Attr { return Attr{Key: key, Value: value} }

// Int builds an int-valued Attr.
func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

// Span receives structured events scoped to one unit of work (a rule run,
// a class parse, an opcode-semantics fallback).
type Span interface {
	// Event records a named occurrence with optional attributes.
	Event(name string, attrs ...Attr)
	// End closes the span. Implementations that don't track duration may
	// treat this as a no-op.
	End()
}

// noopSpan discards every event; used wherever a caller passes no tracer.
type noopSpan struct{}

func (noopSpan) Event(string, ...Attr) {}
func (noopSpan) End()                  {}

// Noop is a shared no-op Span safe to use as a default.
var Noop Span = noopSpan{}

// Tracer starts spans. A nil *Tracer is valid and starts no-op spans, so
// callers never need a nil check before calling Start.
type Tracer struct {
	start func(name string) Span
}

// NewTracer wraps a span-starting function.
func NewTracer(start func(name string) Span) *Tracer {
	return &Tracer{start: start}
}

// Start begins a new span named name. A nil Tracer (or one built with a
// nil start func) returns Noop.
func (t *Tracer) Start(name string) Span {
	if t == nil || t.start == nil {
		return Noop
	}
	return t.start(name)
}

// CountingSpan is a Span that records how many times each event name fired,
// used by tests that assert on instrumentation without wiring a real sink.
type CountingSpan struct {
	Counts map[string]int
}

// NewCountingSpan returns a ready-to-use CountingSpan.
func NewCountingSpan() *CountingSpan {
	return &CountingSpan{Counts: make(map[string]int)}
}

func (c *CountingSpan) Event(name string, _ ...Attr) {
	c.Counts[name]++
}

func (c *CountingSpan) End() {}
