// Package rules defines the pluggable analysis-rule contract and the
// concrete rule catalog: one family that only walks the CFG and call
// graph, one family composed from the shared stack machine, and one
// family driven by the generic worklist engine.
package rules

import (
	"github.com/exoego/inspequte-sub000/callgraph"
	"github.com/exoego/inspequte-sub000/classpath"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/telemetry"
)

// Metadata identifies a rule for the SARIF ReportingDescriptor and for
// attributing results that don't set their own RuleID.
type Metadata struct {
	ID          string
	Name        string
	Description string
}

// Result is one finding a rule produced, independent of SARIF's wire
// shape; the engine/sarif packages translate this into a sarif.Result.
type Result struct {
	RuleID           string
	Message          string
	ArtifactURI      string
	Line             int
	ClassName        string
	MethodName       string
	MethodDescriptor string
}

// Rule is one analysis check. Run may return an error, which the engine
// treats as fatal to the whole run: dispatch stops and engine.Run returns
// a *RuleError.
type Rule interface {
	Metadata() Metadata
	Run(ctx *Context) ([]Result, error)
}

// Context is the immutable bundle handed to every rule: the parsed
// classes, the classpath index used to tell scanned from unresolved
// references apart, the over-approximate call graph, and enough artifact
// bookkeeping to resolve a class back to its originating input and decide
// whether that input is in scope for analysis.
type Context struct {
	Classes   []*ir.Class
	Classpath *classpath.Index
	CallGraph *callgraph.Graph

	// ArtifactURIs maps an artifact index to its location URI.
	ArtifactURIs map[int]string
	// AnalysisTargetArtifacts is the set of artifact indices carrying the
	// analysisTarget role. Empty means every artifact is a target.
	AnalysisTargetArtifacts map[int]bool
	// ParentArtifact maps a nested artifact (a JAR entry) to the index of
	// the archive that contains it.
	ParentArtifact map[int]int

	Tracer *telemetry.Tracer
}

// ClassArtifactURI resolves class's originating artifact's URI, if known.
func (c *Context) ClassArtifactURI(class *ir.Class) string {
	return c.ArtifactURIs[class.ArtifactIndex]
}

// IsAnalysisTargetClass reports whether class belongs to an artifact
// that is itself (or has a transitive ancestor that is) marked
// analysisTarget. When no artifact anywhere carries that role, every
// class is a target.
func (c *Context) IsAnalysisTargetClass(class *ir.Class) bool {
	if len(c.AnalysisTargetArtifacts) == 0 {
		return true
	}
	idx := class.ArtifactIndex
	visited := make(map[int]bool)
	for idx >= 0 && !visited[idx] {
		if c.AnalysisTargetArtifacts[idx] {
			return true
		}
		visited[idx] = true
		parent, ok := c.ParentArtifact[idx]
		if !ok {
			return false
		}
		idx = parent
	}
	return false
}

// AnalysisTargetClasses filters Classes down to analysis-target classes,
// preserving scan order.
func (c *Context) AnalysisTargetClasses() []*ir.Class {
	out := make([]*ir.Class, 0, len(c.Classes))
	for _, class := range c.Classes {
		if c.IsAnalysisTargetClass(class) {
			out = append(out, class)
		}
	}
	return out
}

// StartSpan opens a telemetry span scoped to a rule's class-level work.
// A nil Tracer yields a no-op span, so rules never need a nil check.
func (c *Context) StartSpan(name string) telemetry.Span {
	return c.Tracer.Start(name)
}

func classResult(ruleID, message string, ctx *Context, class *ir.Class) Result {
	return Result{
		RuleID:      ruleID,
		Message:     message,
		ArtifactURI: ctx.ClassArtifactURI(class),
		ClassName:   class.Name,
	}
}

func methodResult(ruleID, message string, ctx *Context, class *ir.Class, method *ir.Method, offset int) Result {
	return Result{
		RuleID:           ruleID,
		Message:          message,
		ArtifactURI:      ctx.ClassArtifactURI(class),
		Line:             lineForOffset(method, offset),
		ClassName:        class.Name,
		MethodName:       method.Name,
		MethodDescriptor: method.Descriptor,
	}
}

// lineForOffset finds the source line covering a bytecode offset, or 0
// when the method carries no LineNumberTable (or the offset precedes the
// first entry).
func lineForOffset(method *ir.Method, offset int) int {
	line := 0
	for _, entry := range method.LineTable {
		if entry.StartPC > offset {
			break
		}
		line = entry.LineNumber
	}
	return line
}
