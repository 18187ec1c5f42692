// Package scan orchestrates the full per-class pipeline: discovering class
// files inside directories and JARs (including nested JARs reached through
// manifest class-paths), parsing each one, and assembling the IR's
// nullness/type-use/CFG facts on top of classfile's structural parse.
package scan

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/highwayhash"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"golang.org/x/sync/errgroup"

	"github.com/exoego/inspequte-sub000/classfile"
	"github.com/exoego/inspequte-sub000/internal/xio"
	"github.com/exoego/inspequte-sub000/ir"
	"github.com/exoego/inspequte-sub000/telemetry"
)

// contentHashKey is fixed and unexported, mirroring callgraph's resolution
// cache key: artifact hashes only need collision resistance within a
// single run, never cross-run stability.
var contentHashKey = []byte("0123456789ABCDEF0123456789ABCDEF")

func contentHash(data []byte) uint64 {
	h, _ := highwayhash.New64(contentHashKey)
	_, _ = h.Write(data)
	return h.Sum64()
}

// root is one entry of the combined, ordered input+classpath target list.
type root struct {
	uri            string
	analysisTarget bool
	position       int
}

// stagedClass pairs a parsed (but not yet assembled) class with the
// ConstantPool classfile.Parse produced for it and the local artifact
// index, local to one root's staging pass.
type stagedClass struct {
	class       *ir.Class
	cp          *classfile.ConstantPool
	localArtIdx int
}

// rootResult is what walking and parsing a single root produces, indexed
// locally starting at zero; Scan rebases these into the final dense index
// space during the sequential merge.
type rootResult struct {
	artifacts []*ir.Artifact
	classes   []*stagedClass
}

// walkRoot expands a single root (a class file, a directory, or a JAR) into
// a rootResult. fs is the afs.Service used for any filesystem-backed read;
// classpathRoots receives additional roots discovered via manifest
// Class-Path headers at this root's own level so Scan can fold them into
// the overall ordered list after this root finishes.
func walkRoot(ctx context.Context, fs afs.Service, r root, tracer *telemetry.Tracer) (*rootResult, []string, error) {
	span := tracer.Start("scan.root")
	defer span.End()
	span.Event("start", telemetry.String("uri", r.uri))

	info, err := fs.Exists(ctx, r.uri)
	if err != nil {
		return nil, nil, fmt.Errorf("scan: %s: %w", r.uri, err)
	}
	if !info {
		return nil, nil, fmt.Errorf("scan: input not found: %s", r.uri)
	}

	lower := strings.ToLower(r.uri)
	switch {
	case strings.HasSuffix(lower, ".jar"):
		data, err := fs.DownloadWithURL(ctx, r.uri)
		if err != nil {
			return nil, nil, fmt.Errorf("scan: %s: %w", r.uri, err)
		}
		res := &rootResult{}
		artIdx := appendArtifact(res, r.uri, int64(len(data)), -1, r.analysisTarget, contentHash(data))
		classpathRoots, err := expandJar(ctx, fs, r.uri, data, artIdx, r.analysisTarget, res)
		if err != nil {
			return nil, nil, err
		}
		return res, classpathRoots, nil
	case strings.HasSuffix(lower, ".class"):
		data, err := fs.DownloadWithURL(ctx, r.uri)
		if err != nil {
			return nil, nil, fmt.Errorf("scan: %s: %w", r.uri, err)
		}
		res := &rootResult{}
		if err := stageClassFile(res, path.Base(r.uri), r.uri, data, -1, r.analysisTarget); err != nil {
			return nil, nil, err
		}
		return res, nil, nil
	default:
		return walkDirectory(ctx, fs, r)
	}
}

// walkDirectory performs a depth-first, lexicographically ordered
// directory traversal, discovering .class files directly and recursing
// into .jar files exactly like a JAR input would be.
func walkDirectory(ctx context.Context, fs afs.Service, r root) (*rootResult, []string, error) {
	type found struct {
		relPath string
		uri     string
	}
	var files []found
	var classpathRoots []string

	visitor := storage.OnVisit(func(_ context.Context, baseURL, parent string, fi os.FileInfo, _ io.Reader) (bool, error) {
		if fi.IsDir() {
			return true, nil
		}
		lower := strings.ToLower(fi.Name())
		if !strings.HasSuffix(lower, ".class") && !strings.HasSuffix(lower, ".jar") {
			return true, nil
		}
		fileURL := url.Join(baseURL, parent, fi.Name())
		files = append(files, found{relPath: path.Join(parent, fi.Name()), uri: fileURL})
		return true, nil
	})
	if err := fs.Walk(ctx, r.uri, visitor); err != nil {
		return nil, nil, fmt.Errorf("scan: %s: %w", r.uri, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].relPath < files[j].relPath })

	res := &rootResult{}
	for _, f := range files {
		data, err := fs.DownloadWithURL(ctx, f.uri)
		if err != nil {
			return nil, nil, fmt.Errorf("scan: %s: %w", f.uri, err)
		}
		if strings.HasSuffix(strings.ToLower(f.uri), ".jar") {
			artIdx := appendArtifact(res, f.uri, int64(len(data)), -1, r.analysisTarget, contentHash(data))
			nested, err := expandJar(ctx, fs, f.uri, data, artIdx, r.analysisTarget, res)
			if err != nil {
				return nil, nil, err
			}
			classpathRoots = append(classpathRoots, nested...)
			continue
		}
		if err := stageClassFile(res, f.relPath, f.uri, data, -1, r.analysisTarget); err != nil {
			return nil, nil, err
		}
	}
	return res, classpathRoots, nil
}

func appendArtifact(res *rootResult, uri string, length int64, parent int, analysisTarget bool, hash uint64) int {
	a := &ir.Artifact{URI: uri, Length: length, ParentIndex: parent, ContentHash: hash}
	if analysisTarget {
		a.Roles = []ir.ArtifactRole{ir.AnalysisTargetRole}
	}
	res.artifacts = append(res.artifacts, a)
	return len(res.artifacts) - 1
}

func skipClassEntry(name string) bool {
	if path.Base(name) == "module-info.class" {
		return true
	}
	return strings.HasPrefix(name, "META-INF/versions/")
}

// expandJar enumerates a JAR's entries once, classifying class entries and
// nested-JAR entries, reads the class entries' bytes in parallel, then
// parses them one at a time in entry-name order (the parse step does not
// run in parallel), and recurses into nested JARs. It returns the classpath-only roots discovered through this
// JAR's own manifest Class-Path header (top-level JARs only: a nested JAR
// reached purely through zip bytes has no filesystem directory to resolve
// a sibling classpath entry against).
func expandJar(ctx context.Context, fs afs.Service, jarURI string, data []byte, artIdx int, analysisTarget bool, res *rootResult) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("scan: %s: %w", jarURI, err)
	}

	var classEntries []*zip.File
	var nestedJars []*zip.File
	var manifest []byte
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch {
		case f.Name == manifestPath:
			body, err := readZipEntry(f)
			if err != nil {
				return nil, fmt.Errorf("scan: %s!%s: %w", jarURI, f.Name, err)
			}
			manifest = body
		case strings.HasSuffix(strings.ToLower(f.Name), ".class"):
			if skipClassEntry(f.Name) {
				continue
			}
			classEntries = append(classEntries, f)
		case strings.HasSuffix(strings.ToLower(f.Name), ".jar"):
			nestedJars = append(nestedJars, f)
		}
	}

	sort.Slice(classEntries, func(i, j int) bool { return classEntries[i].Name < classEntries[j].Name })
	sort.Slice(nestedJars, func(i, j int) bool { return nestedJars[i].Name < nestedJars[j].Name })

	type parsed struct {
		name string
		data []byte
	}
	bodies := make([]parsed, len(classEntries))
	group := new(errgroup.Group)
	for i, f := range classEntries {
		i, f := i, f
		group.Go(func() error {
			data, err := readZipEntry(f)
			if err != nil {
				return fmt.Errorf("scan: %s!%s: %w", jarURI, f.Name, err)
			}
			bodies[i] = parsed{name: f.Name, data: data}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	for _, p := range bodies {
		if err := stageClassFile(res, p.name, jarURI+"!"+p.name, p.data, artIdx, analysisTarget); err != nil {
			return nil, err
		}
	}

	for _, f := range nestedJars {
		nestedData, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("scan: %s!%s: %w", jarURI, f.Name, err)
		}
		nestedURI := jarURI + "!" + f.Name
		nestedIdx := appendArtifact(res, nestedURI, int64(len(nestedData)), artIdx, analysisTarget, contentHash(nestedData))
		if err := expandNestedJar(zr, jarURI, f.Name, nestedData, nestedIdx, analysisTarget, res); err != nil {
			return nil, err
		}
	}

	var classpathRoots []string
	if manifest != nil {
		classPathEntries := parseManifestClassPath(manifest)
		baseDir := path.Dir(jarURI)
		for _, entry := range classPathEntries {
			resolved := resolveRelative(baseDir, entry)
			if ok, err := fs.Exists(ctx, resolved); err != nil || !ok {
				return nil, fmt.Errorf("scan: %s: missing manifest classpath entry %q", jarURI, entry)
			}
			classpathRoots = append(classpathRoots, resolved)
		}
	}
	return classpathRoots, nil
}

// expandNestedJar mirrors expandJar for an archive reached only through
// another archive's bytes, rather than through the filesystem directly.
// entryName is this archive's own entry path within enclosing (e.g.
// "BOOT-INF/lib/app.jar"); its Class-Path header, if any, is resolved
// relative to that path and restricted to sibling entries already present
// in enclosing - a nested archive carries no directory of its own to
// resolve an arbitrary filesystem reference against.
func expandNestedJar(enclosing *zip.Reader, enclosingURI, entryName string, data []byte, artIdx int, analysisTarget bool, res *rootResult) error {
	jarURI := enclosingURI + "!" + entryName
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("scan: %s: %w", jarURI, err)
	}

	var classEntries []*zip.File
	var manifest []byte
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch {
		case f.Name == manifestPath:
			body, err := readZipEntry(f)
			if err != nil {
				return fmt.Errorf("scan: %s!%s: %w", jarURI, f.Name, err)
			}
			manifest = body
		case strings.HasSuffix(strings.ToLower(f.Name), ".class") && !skipClassEntry(f.Name):
			classEntries = append(classEntries, f)
		}
	}
	sort.Slice(classEntries, func(i, j int) bool { return classEntries[i].Name < classEntries[j].Name })

	for _, f := range classEntries {
		body, err := readZipEntry(f)
		if err != nil {
			return fmt.Errorf("scan: %s!%s: %w", jarURI, f.Name, err)
		}
		if err := stageClassFile(res, f.Name, jarURI+"!"+f.Name, body, artIdx, analysisTarget); err != nil {
			return err
		}
	}

	if manifest == nil {
		return nil
	}
	baseDir := path.Dir(entryName)
	for _, entry := range parseManifestClassPath(manifest) {
		siblingName := resolveRelative(baseDir, entry)
		sibling := findZipEntry(enclosing, siblingName)
		if sibling == nil {
			return fmt.Errorf("scan: %s: missing manifest classpath entry %q", jarURI, entry)
		}
		siblingData, err := readZipEntry(sibling)
		if err != nil {
			return fmt.Errorf("scan: %s!%s: %w", enclosingURI, siblingName, err)
		}
		siblingIdx := appendArtifact(res, enclosingURI+"!"+siblingName, int64(len(siblingData)), artIdx, analysisTarget, contentHash(siblingData))
		if err := expandNestedJar(enclosing, enclosingURI, siblingName, siblingData, siblingIdx, analysisTarget, res); err != nil {
			return err
		}
	}
	return nil
}

func findZipEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func resolveRelative(baseDir, entry string) string {
	if filepath.IsAbs(entry) {
		return entry
	}
	return xio.JoinRelative(baseDir, entry)
}

func stageClassFile(res *rootResult, entryName, uri string, data []byte, parentArtIdx int, analysisTarget bool) error {
	if skipClassEntry(entryName) {
		return nil
	}
	artIdx := appendArtifact(res, uri, int64(len(data)), parentArtIdx, analysisTarget, contentHash(data))
	class, cp, err := classfile.Parse(data, uri)
	if err != nil {
		return fmt.Errorf("scan: %s: %w", uri, err)
	}
	if err := assemble(class, cp); err != nil {
		return fmt.Errorf("scan: %s: %w", uri, err)
	}
	res.classes = append(res.classes, &stagedClass{class: class, cp: cp, localArtIdx: artIdx})
	return nil
}
