// Package engine wires a scanned class set into rules.Context, dispatches
// the rule catalog inside telemetry spans, and normalizes the combined
// result set (rule-id backfill, deterministic sort, optional dedup) ahead
// of SARIF assembly.
package engine

import (
	"fmt"
	"sort"

	"github.com/exoego/inspequte-sub000/callgraph"
	"github.com/exoego/inspequte-sub000/classpath"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/rules"
	"github.com/exoego/inspequte-sub000/telemetry"
)

// Descriptor is the rule metadata the SARIF driver's ruleDescriptors
// array is built from; a 1:1 copy of rules.Metadata kept as its own type
// so engine's public surface doesn't leak the rules package's shape.
type Descriptor struct {
	ID          string
	Name        string
	Description string
}

// RuleError pairs a rule id with the error it returned. A rule error is
// fatal to the run: Run returns immediately, wrapped in RuleError so the
// caller can attribute the failure to the rule that raised it.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Options configures one analysis run.
type Options struct {
	Classes   []*ir.Class
	Artifacts []*ir.Artifact
	Tracer    *telemetry.Tracer
	// Rules overrides the built-in catalog; nil uses rules.All().
	Rules []rules.Rule
	// Dedup enables (message, artifact_uri, line, logical_location)
	// deduplication across the combined result set.
	Dedup bool
}

// Report is the engine's output: every rule's descriptor (for the SARIF
// tool.driver.rules array) plus the normalized, sorted result set.
type Report struct {
	Descriptors []Descriptor
	Results     []rules.Result
}

// BuildContext assembles a rules.Context from a scanned class/artifact
// set: a classpath index for resolving cross-references, an
// over-approximate CHA call graph, and the artifact-role bookkeeping
// rules.Context.IsAnalysisTargetClass needs.
func BuildContext(classes []*ir.Class, artifacts []*ir.Artifact, tracer *telemetry.Tracer) (*rules.Context, error) {
	cpIndex, err := classpath.Build(classes)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	graph, err := callgraph.Build(classes)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	artifactURIs := make(map[int]string, len(artifacts))
	targets := make(map[int]bool)
	parents := make(map[int]int, len(artifacts))
	for i, a := range artifacts {
		artifactURIs[i] = a.URI
		if a.HasRole(ir.AnalysisTargetRole) {
			targets[i] = true
		}
		if a.ParentIndex >= 0 {
			parents[i] = a.ParentIndex
		}
	}

	return &rules.Context{
		Classes:                 classes,
		Classpath:               cpIndex,
		CallGraph:               graph,
		ArtifactURIs:            artifactURIs,
		AnalysisTargetArtifacts: targets,
		ParentArtifact:          parents,
		Tracer:                  tracer,
	}, nil
}

// Run builds the rules.Context, then dispatches every rule (the provided
// catalog, or rules.All() when opts.Rules is nil) in rule-id order, each
// inside a span named after the rule's id; descriptors follow the same
// order. A rule error is fatal to the whole run: it aborts
// dispatch immediately and is returned wrapped in a *RuleError so the
// caller can attribute the failure to the rule that raised it.
func Run(opts Options) (*Report, error) {
	ctx, err := BuildContext(opts.Classes, opts.Artifacts, opts.Tracer)
	if err != nil {
		return nil, err
	}

	catalog := rules.All()
	if opts.Rules != nil {
		catalog = append([]rules.Rule(nil), opts.Rules...)
		sort.SliceStable(catalog, func(i, j int) bool { return catalog[i].Metadata().ID < catalog[j].Metadata().ID })
	}

	var descriptors []Descriptor
	var combined []rules.Result

	for _, rule := range catalog {
		meta := rule.Metadata()
		descriptors = append(descriptors, Descriptor{ID: meta.ID, Name: meta.Name, Description: meta.Description})

		span := ctx.StartSpan(meta.ID)
		results, err := rule.Run(ctx)
		if err != nil {
			span.Event("rule_error", telemetry.String("error", err.Error()))
			span.End()
			return nil, &RuleError{RuleID: meta.ID, Err: err}
		}
		span.Event("results", telemetry.Int("count", len(results)))
		span.End()

		for i := range results {
			if results[i].RuleID == "" {
				results[i].RuleID = meta.ID
			}
		}
		combined = append(combined, results...)
	}

	sortResults(combined)
	if opts.Dedup {
		combined = dedupResults(combined)
	}

	return &Report{Descriptors: descriptors, Results: combined}, nil
}

// sortResults orders the combined result set lexicographically by
// (rule_id, message_text), the order the dispatcher contract requires
// regardless of which rule produced a result or how many classes it
// touched.
func sortResults(results []rules.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RuleID != results[j].RuleID {
			return results[i].RuleID < results[j].RuleID
		}
		return results[i].Message < results[j].Message
	})
}

// dedupKey is the quadruple identical-finding dedup is keyed on; method
// name/descriptor stand in for "logical_location" since that's the only
// logical-location shape results carry today.
type dedupKey struct {
	message     string
	artifactURI string
	line        int
	logical     string
}

func dedupResults(results []rules.Result) []rules.Result {
	seen := make(map[dedupKey]bool, len(results))
	out := make([]rules.Result, 0, len(results))
	for _, r := range results {
		key := dedupKey{
			message:     r.Message,
			artifactURI: r.ArtifactURI,
			line:        r.Line,
			logical:     logicalLocation(r),
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// logicalLocation renders a result's class/method into the fully
// qualified name SARIF's logicalLocations entries use.
func logicalLocation(r rules.Result) string {
	if r.MethodName == "" {
		return r.ClassName
	}
	return r.ClassName + "." + r.MethodName + r.MethodDescriptor
}
