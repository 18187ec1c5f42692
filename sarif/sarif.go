// Package sarif defines the Static Analysis Results Interchange Format
// (SARIF) 2.1.0 types this module's findings are rendered into, and
// assembles the single-run Document the engine package's output maps to.
//
// See https://www.oasis-open.org/committees/tc_home.php?wg_abbrev=sarif
// for background on the format.
package sarif

import (
	"github.com/exoego/inspequte-sub000/engine"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/rules"
)

const (
	schemaURI = "https://json.schemastore.org/sarif-2.1.0.json"
	version   = "2.1.0"

	toolName           = "inspequte"
	toolInformationURI = "https://github.com/exoego/inspequte-sub000"
	analysisTargetRole = "analysisTarget"
)

// Log is the top-level SARIF object encoded as UTF-8 JSON.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []Run  `json:"runs"`
}

// Run summarizes one execution of the analyzer. This module always
// produces exactly one.
type Run struct {
	Tool        Tool         `json:"tool"`
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	Results     []Result     `json:"results"`
	Invocations []Invocation `json:"invocations,omitempty"`
}

// Tool captures information about the analyzer binary that produced Run.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver describes the tool and its full rule catalog.
type Driver struct {
	Name           string                `json:"name"`
	InformationURI string                `json:"informationUri,omitempty"`
	Rules          []ReportingDescriptor `json:"rules,omitempty"`
}

// ReportingDescriptor is one rule's catalog entry.
type ReportingDescriptor struct {
	ID               string      `json:"id"`
	Name             string      `json:"name,omitempty"`
	ShortDescription Description `json:"shortDescription,omitempty"`
}

// Description is a text message, optionally in markdown.
type Description struct {
	Text string `json:"text,omitempty"`
}

// Artifact is one scanned input in the run's artifacts array, in
// scanner order; ParentIndex/Roles are SARIF's nested-archive-entry
// convention for a class or JAR reached through another JAR.
type Artifact struct {
	Location    ArtifactLocation `json:"location"`
	Length      int64            `json:"length"`
	ParentIndex *int             `json:"parentIndex,omitempty"`
	Roles       []string         `json:"roles,omitempty"`
}

// ArtifactLocation is a path to an artifact.
type ArtifactLocation struct {
	URI   string `json:"uri,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// Invocation records one run of the tool: whether it completed without a
// fatal error, and enough of the command it was invoked with to
// reproduce the run.
type Invocation struct {
	ExecutionSuccessful bool           `json:"executionSuccessful"`
	Arguments           []string       `json:"arguments,omitempty"`
	CommandLine         string         `json:"commandLine,omitempty"`
	Properties          map[string]any `json:"properties,omitempty"`
}

// Result is one rule finding.
type Result struct {
	RuleID           string            `json:"ruleId"`
	Level            string            `json:"level,omitempty"`
	Message          Description       `json:"message"`
	Locations        []Location        `json:"locations,omitempty"`
	LogicalLocations []LogicalLocation `json:"logicalLocations,omitempty"`
}

// Location is a physical location within an artifact.
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
}

// Region pins a result to a single line; columns aren't tracked since no
// upstream pipeline stage carries column information.
type Region struct {
	StartLine int `json:"startLine,omitempty"`
}

// LogicalLocation names the declaration a result is attributed to, in
// `<class>.<name><descriptor>` form for a method-level result or bare
// `<class>` for a class-level one.
type LogicalLocation struct {
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
}

// BuildOptions configures Document assembly.
type BuildOptions struct {
	Arguments  []string
	ClassCount int
}

// Document assembles a complete SARIF Log from an engine report, the
// scanned artifact set, and the invocation's raw arguments. It never
// fails: invalid or missing data renders as an empty field rather than
// an error, so a caller can always emit whatever was produced up to a
// fatal failure elsewhere in the pipeline.
func Document(report *engine.Report, artifacts []*ir.Artifact, opts BuildOptions) *Log {
	return &Log{
		Version: version,
		Schema:  schemaURI,
		Runs: []Run{
			{
				Tool:        Tool{Driver: buildDriver(report.Descriptors)},
				Artifacts:   buildArtifacts(artifacts),
				Results:     buildResults(report.Results),
				Invocations: []Invocation{buildInvocation(opts, artifacts)},
			},
		},
	}
}

func buildDriver(descriptors []engine.Descriptor) Driver {
	rules := make([]ReportingDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		rules = append(rules, ReportingDescriptor{
			ID:               d.ID,
			Name:             d.Name,
			ShortDescription: Description{Text: d.Description},
		})
	}
	return Driver{Name: toolName, InformationURI: toolInformationURI, Rules: rules}
}

func buildArtifacts(artifacts []*ir.Artifact) []Artifact {
	out := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		entry := Artifact{
			Location: ArtifactLocation{URI: a.URI},
			Length:   a.Length,
		}
		if a.ParentIndex >= 0 {
			parent := a.ParentIndex
			entry.ParentIndex = &parent
		}
		if a.HasRole(ir.AnalysisTargetRole) {
			entry.Roles = []string{analysisTargetRole}
		}
		out = append(out, entry)
	}
	return out
}

func buildResults(results []rules.Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, resultFromRule(r))
	}
	return out
}

func resultFromRule(r rules.Result) Result {
	result := Result{
		RuleID:  r.RuleID,
		Level:   "warning",
		Message: Description{Text: r.Message},
	}
	if r.ArtifactURI != "" {
		loc := Location{PhysicalLocation: PhysicalLocation{ArtifactLocation: ArtifactLocation{URI: r.ArtifactURI}}}
		if r.Line > 0 {
			loc.PhysicalLocation.Region = &Region{StartLine: r.Line}
		}
		result.Locations = []Location{loc}
	}
	if r.ClassName != "" {
		result.LogicalLocations = []LogicalLocation{{FullyQualifiedName: logicalLocationName(r)}}
	}
	return result
}

func logicalLocationName(r rules.Result) string {
	if r.MethodName == "" {
		return r.ClassName
	}
	return r.ClassName + "." + r.MethodName + r.MethodDescriptor
}

func buildInvocation(opts BuildOptions, artifacts []*ir.Artifact) Invocation {
	return Invocation{
		ExecutionSuccessful: true,
		Arguments:           opts.Arguments,
		CommandLine:         joinArguments(opts.Arguments),
		Properties: map[string]any{
			"classCount":    opts.ClassCount,
			"artifactCount": len(artifacts),
		},
	}
}

func joinArguments(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
