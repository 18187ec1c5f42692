package scan

import (
	"context"

	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"

	"github.com/exoego/inspequte-sub000/internal/xio"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/telemetry"
)

// Options configures one Scan invocation.
type Options struct {
	// Inputs are analysis-target locations: class files, directories, or
	// JARs. Every class reached through one of these carries the
	// analysisTarget role (directly, or transitively through a JAR).
	Inputs []string
	// Classpath entries are resolution-only: their classes feed the
	// classpath index and call graph but are never themselves analyzed.
	Classpath []string
	// FS is the filesystem abstraction used for every read. Nil defaults
	// to afs.New().
	FS afs.Service
	// Tracer receives per-root scan events. A nil Tracer is safe.
	Tracer *telemetry.Tracer
}

// Result is everything the scanner produces: the full class set (targets
// and classpath-only resolution classes alike) and every artifact scanned,
// both in the scanner's total deterministic order.
type Result struct {
	Classes    []*ir.Class
	Artifacts  []*ir.Artifact
	ClassCount int
}

// Scan discovers and parses every class reachable from opts.Inputs and
// opts.Classpath, including classes pulled in transitively via manifest
// Class-Path headers, and assembles each one's CFG and nullness/type-use
// facts. Roots are processed in waves: the initial input+classpath list
// runs first (in parallel, one goroutine per root), and any classpath
// entries a JAR's manifest discovers are folded into a following wave,
// repeating until a wave discovers nothing new.
func Scan(ctx context.Context, opts Options) (*Result, error) {
	fs := opts.FS
	if fs == nil {
		fs = afs.New()
	}

	seen := make(map[string]bool)
	position := 0
	var wave []root
	for _, p := range opts.Inputs {
		addRoot(seen, &wave, p, true, &position)
	}
	for _, p := range opts.Classpath {
		addRoot(seen, &wave, p, false, &position)
	}

	var ordered []*rootResult
	for len(wave) > 0 {
		current := wave
		wave = nil

		resultsThisWave := make([]*rootResult, len(current))
		discoveredThisWave := make([][]string, len(current))

		group, gctx := errgroup.WithContext(ctx)
		for i, r := range current {
			i, r := i, r
			group.Go(func() error {
				res, discovered, err := walkRoot(gctx, fs, r, opts.Tracer)
				if err != nil {
					return err
				}
				resultsThisWave[i] = res
				discoveredThisWave[i] = discovered
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}

		ordered = append(ordered, resultsThisWave...)
		for _, discovered := range discoveredThisWave {
			for _, p := range discovered {
				addRoot(seen, &wave, p, false, &position)
			}
		}
	}

	artifacts, classes := mergeResults(ordered)
	return &Result{Classes: classes, Artifacts: artifacts, ClassCount: len(classes)}, nil
}

func addRoot(seen map[string]bool, wave *[]root, uri string, analysisTarget bool, position *int) {
	norm := normalizeURI(uri)
	if seen[norm] {
		return
	}
	seen[norm] = true
	*wave = append(*wave, root{uri: uri, analysisTarget: analysisTarget, position: *position})
	*position++
}

// normalizeURI is the seen-set key: a best-effort canonical form so the
// same physical path reached two different ways (a trailing slash, a
// redundant "./") collapses to one entry.
func normalizeURI(uri string) string {
	return xio.NormalizePath(uri)
}

// mergeResults flattens each root's locally-indexed artifacts/classes into
// one dense, globally-indexed set, rebasing ParentIndex and
// Class.ArtifactIndex by the running artifact-count offset.
func mergeResults(results []*rootResult) ([]*ir.Artifact, []*ir.Class) {
	var artifacts []*ir.Artifact
	var classes []*ir.Class
	offset := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, a := range res.artifacts {
			rebased := *a
			if rebased.ParentIndex >= 0 {
				rebased.ParentIndex += offset
			}
			artifacts = append(artifacts, &rebased)
		}
		for _, sc := range res.classes {
			sc.class.ArtifactIndex = sc.localArtIdx + offset
			classes = append(classes, sc.class)
		}
		offset += len(res.artifacts)
	}
	return artifacts, classes
}
