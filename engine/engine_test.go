package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/rules"
)

func classFixture(name string, artifactIdx int) *ir.Class {
	return &ir.Class{Name: name, SuperName: "java/lang/Object", ArtifactIndex: artifactIdx}
}

type stubRule struct {
	id      string
	results []rules.Result
	err     error
}

func (s stubRule) Metadata() rules.Metadata {
	return rules.Metadata{ID: s.id, Name: s.id, Description: "stub rule " + s.id}
}

func (s stubRule) Run(ctx *rules.Context) ([]rules.Result, error) {
	return s.results, s.err
}

func TestBuildContext_ResolvesArtifactURIsAndRoles(t *testing.T) {
	classes := []*ir.Class{classFixture("App", 0)}
	artifacts := []*ir.Artifact{
		{URI: "app.jar", ParentIndex: -1, Roles: []ir.ArtifactRole{ir.AnalysisTargetRole}},
	}

	ctx, err := BuildContext(classes, artifacts, nil)
	require.NoError(t, err)
	assert.Equal(t, "app.jar", ctx.ArtifactURIs[0])
	assert.True(t, ctx.IsAnalysisTargetClass(classes[0]))
}

func TestBuildContext_DuplicateClassFails(t *testing.T) {
	classes := []*ir.Class{classFixture("App", 0), classFixture("App", 1)}
	artifacts := []*ir.Artifact{{ParentIndex: -1}, {ParentIndex: -1}}

	_, err := BuildContext(classes, artifacts, nil)
	require.Error(t, err)
}

func TestRun_BackfillsMissingRuleIDAndSortsByRuleThenMessage(t *testing.T) {
	classes := []*ir.Class{classFixture("App", 0)}
	artifacts := []*ir.Artifact{{ParentIndex: -1, Roles: []ir.ArtifactRole{ir.AnalysisTargetRole}}}

	catalog := []rules.Rule{
		stubRule{id: "ZZZ_RULE", results: []rules.Result{{Message: "z finding"}}},
		stubRule{id: "AAA_RULE", results: []rules.Result{{Message: "b finding"}, {Message: "a finding"}}},
	}

	report, err := Run(Options{Classes: classes, Artifacts: artifacts, Rules: catalog})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	assert.Equal(t, "AAA_RULE", report.Results[0].RuleID)
	assert.Equal(t, "a finding", report.Results[0].Message)
	assert.Equal(t, "AAA_RULE", report.Results[1].RuleID)
	assert.Equal(t, "b finding", report.Results[1].Message)
	assert.Equal(t, "ZZZ_RULE", report.Results[2].RuleID)

	require.Len(t, report.Descriptors, 2)
	assert.Equal(t, "AAA_RULE", report.Descriptors[0].ID)
	assert.Equal(t, "ZZZ_RULE", report.Descriptors[1].ID)
	assert.Equal(t, "z finding", report.Results[2].Message)
}

func TestRun_RuleErrorIsFatalToTheWholeRun(t *testing.T) {
	classes := []*ir.Class{classFixture("App", 0)}
	artifacts := []*ir.Artifact{{ParentIndex: -1, Roles: []ir.ArtifactRole{ir.AnalysisTargetRole}}}

	catalog := []rules.Rule{
		stubRule{id: "BROKEN_RULE", err: errors.New("boom")},
		stubRule{id: "OK_RULE", results: []rules.Result{{Message: "fine"}}},
	}

	report, err := Run(Options{Classes: classes, Artifacts: artifacts, Rules: catalog})
	require.Error(t, err)
	assert.Nil(t, report)
	var ruleErr *RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "BROKEN_RULE", ruleErr.RuleID)
}

func TestRun_DedupCollapsesIdenticalQuadruples(t *testing.T) {
	classes := []*ir.Class{classFixture("App", 0)}
	artifacts := []*ir.Artifact{{URI: "app.jar", ParentIndex: -1, Roles: []ir.ArtifactRole{ir.AnalysisTargetRole}}}

	dup := rules.Result{Message: "possible null receiver", ArtifactURI: "app.jar", Line: 10, ClassName: "App", MethodName: "run", MethodDescriptor: "()V"}
	catalog := []rules.Rule{
		stubRule{id: "NULLNESS", results: []rules.Result{dup, dup}},
	}

	report, err := Run(Options{Classes: classes, Artifacts: artifacts, Rules: catalog, Dedup: true})
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
}

func TestRun_WithoutDedupKeepsDuplicates(t *testing.T) {
	classes := []*ir.Class{classFixture("App", 0)}
	artifacts := []*ir.Artifact{{URI: "app.jar", ParentIndex: -1, Roles: []ir.ArtifactRole{ir.AnalysisTargetRole}}}

	dup := rules.Result{Message: "possible null receiver", ArtifactURI: "app.jar", Line: 10, ClassName: "App"}
	catalog := []rules.Rule{
		stubRule{id: "NULLNESS", results: []rules.Result{dup, dup}},
	}

	report, err := Run(Options{Classes: classes, Artifacts: artifacts, Rules: catalog})
	require.NoError(t, err)
	assert.Len(t, report.Results, 2)
}

func TestRun_NilRulesUsesBuiltInCatalog(t *testing.T) {
	classes := []*ir.Class{classFixture("App", 0)}
	artifacts := []*ir.Artifact{{ParentIndex: -1, Roles: []ir.ArtifactRole{ir.AnalysisTargetRole}}}

	report, err := Run(Options{Classes: classes, Artifacts: artifacts})
	require.NoError(t, err)
	assert.NotEmpty(t, report.Descriptors)
}
