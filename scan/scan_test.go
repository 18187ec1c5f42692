package scan

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/exoego/inspequte-sub000/ir"
)

func writeFile(t *testing.T, p string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func TestScan_DirectoryInputProducesAnalysisTargetClasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "com", "example", "Foo.class"), buildMinimalClassBytes("com/example/Foo", "java/lang/Object"))
	writeFile(t, filepath.Join(dir, "com", "example", "Bar.class"), buildMinimalClassBytes("com/example/Bar", "java/lang/Object"))

	res, err := Scan(context.Background(), Options{Inputs: []string{dir}, FS: afs.New()})
	require.NoError(t, err)
	require.Len(t, res.Classes, 2)
	assert.Equal(t, 2, res.ClassCount)

	names := []string{res.Classes[0].Name, res.Classes[1].Name}
	assert.ElementsMatch(t, []string{"com/example/Foo", "com/example/Bar"}, names)

	for _, c := range res.Classes {
		art := res.Artifacts[c.ArtifactIndex]
		assert.True(t, art.HasRole(ir.AnalysisTargetRole))
	}
}

func TestScan_ClasspathInputIsNotAnalysisTarget(t *testing.T) {
	inputDir := t.TempDir()
	writeFile(t, filepath.Join(inputDir, "App.class"), buildMinimalClassBytes("App", "java/lang/Object"))

	cpDir := t.TempDir()
	writeFile(t, filepath.Join(cpDir, "Lib.class"), buildMinimalClassBytes("Lib", "java/lang/Object"))

	res, err := Scan(context.Background(), Options{
		Inputs:    []string{inputDir},
		Classpath: []string{cpDir},
		FS:        afs.New(),
	})
	require.NoError(t, err)
	require.Len(t, res.Classes, 2)

	for _, c := range res.Classes {
		art := res.Artifacts[c.ArtifactIndex]
		switch c.Name {
		case "App":
			assert.True(t, art.HasRole(ir.AnalysisTargetRole))
		case "Lib":
			assert.False(t, art.HasRole(ir.AnalysisTargetRole))
		default:
			t.Fatalf("unexpected class %s", c.Name)
		}
	}
}

func TestScan_JarManifestClassPathPullsInDependencyJar(t *testing.T) {
	dir := t.TempDir()

	libData := zipBytes(t, map[string][]byte{
		"com/example/Lib.class": buildMinimalClassBytes("com/example/Lib", "java/lang/Object"),
	})
	writeFile(t, filepath.Join(dir, "lib.jar"), libData)

	manifest := []byte("Manifest-Version: 1.0\r\nClass-Path: lib.jar\r\n")
	appData := zipBytes(t, map[string][]byte{
		"META-INF/MANIFEST.MF": manifest,
		"App.class":            buildMinimalClassBytes("App", "java/lang/Object"),
	})
	appPath := filepath.Join(dir, "app.jar")
	writeFile(t, appPath, appData)

	res, err := Scan(context.Background(), Options{Inputs: []string{appPath}, FS: afs.New()})
	require.NoError(t, err)
	require.Len(t, res.Classes, 2)

	var sawApp, sawLib bool
	for _, c := range res.Classes {
		art := res.Artifacts[c.ArtifactIndex]
		switch c.Name {
		case "App":
			sawApp = true
			assert.True(t, art.HasRole(ir.AnalysisTargetRole))
		case "com/example/Lib":
			sawLib = true
			assert.False(t, art.HasRole(ir.AnalysisTargetRole))
		}
	}
	assert.True(t, sawApp)
	assert.True(t, sawLib)
}

func TestScan_DeterministicAcrossRepeatedRuns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"A", "B", "C", "D"} {
		writeFile(t, filepath.Join(dir, name+".class"), buildMinimalClassBytes(name, "java/lang/Object"))
	}

	first, err := Scan(context.Background(), Options{Inputs: []string{dir}, FS: afs.New()})
	require.NoError(t, err)
	second, err := Scan(context.Background(), Options{Inputs: []string{dir}, FS: afs.New()})
	require.NoError(t, err)

	require.Len(t, second.Classes, len(first.Classes))
	for i := range first.Classes {
		assert.Equal(t, first.Classes[i].Name, second.Classes[i].Name)
	}
}

func TestScan_EmptyOptionsProducesEmptyResult(t *testing.T) {
	res, err := Scan(context.Background(), Options{FS: afs.New()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ClassCount)
	assert.Empty(t, res.Classes)
	assert.Empty(t, res.Artifacts)
}

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
