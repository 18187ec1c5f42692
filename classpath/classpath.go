// Package classpath indexes parsed classes by binary name so later phases
// can resolve a referenced class to the artifact that supplied it, without
// ever rejecting a class whose cross-references point outside the scanned
// set.
package classpath

import (
	"fmt"
	"strings"

	"github.com/exoego/inspequte-sub000/internal/xio"
	"github.com/exoego/inspequte-sub000/ir"
)

// platformPrefixes are binary-name prefixes always treated as present,
// whether or not a scanned artifact actually supplied the class - the JDK
// itself is never handed to the analyzer as an input artifact.
var platformPrefixes = []string{"java/", "javax/", "jdk/", "sun/", "com/sun/"}

// Index maps a class's binary name to the artifact index that supplied it.
type Index struct {
	artifactOf map[string]int
}

// DuplicateClassError reports the same binary name seen from more than one
// artifact; building an Index is an all-or-nothing operation so the
// analyzer never silently picks one.
type DuplicateClassError struct {
	ClassName        string
	FirstArtifactIdx int
	SecondArtifact   int
}

func (e *DuplicateClassError) Error() string {
	return fmt.Sprintf("classpath: duplicate classes for %q: artifact %d and artifact %d",
		e.ClassName, e.FirstArtifactIdx, e.SecondArtifact)
}

// Build indexes every class by its ArtifactIndex. It fails fast on the
// first duplicate binary name it encounters, in scan order.
func Build(classes []*ir.Class) (*Index, error) {
	idx := &Index{artifactOf: make(map[string]int, len(classes))}
	for _, c := range classes {
		if existing, ok := idx.artifactOf[c.Name]; ok {
			return nil, &DuplicateClassError{ClassName: c.Name, FirstArtifactIdx: existing, SecondArtifact: c.ArtifactIndex}
		}
		idx.artifactOf[c.Name] = c.ArtifactIndex
	}
	return idx, nil
}

// Has reports whether className resolves to a scanned artifact or a
// platform class.
func (idx *Index) Has(className string) bool {
	if _, ok := idx.artifactOf[className]; ok {
		return true
	}
	return IsPlatformClass(className)
}

// ArtifactIndex returns the artifact that supplied className, or -1 when
// className was not scanned (including platform classes, which carry no
// artifact of their own).
func (idx *Index) ArtifactIndex(className string) int {
	if a, ok := idx.artifactOf[className]; ok {
		return a
	}
	return -1
}

// Len reports the number of distinct scanned classes indexed.
func (idx *Index) Len() int { return len(idx.artifactOf) }

// ClassNames returns every indexed binary name, sorted.
func (idx *Index) ClassNames() []string {
	names := make([]string, 0, len(idx.artifactOf))
	for name := range idx.artifactOf {
		names = append(names, name)
	}
	return xio.SortStrings(names)
}

// IsPlatformClass reports whether a binary name belongs to the JDK's own
// namespace, which the scanner never supplies as an artifact but which
// must never be flagged as an unresolved reference.
func IsPlatformClass(className string) bool {
	for _, prefix := range platformPrefixes {
		if strings.HasPrefix(className, prefix) {
			return true
		}
	}
	return false
}
