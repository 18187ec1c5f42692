// Package xio holds small path/ordering helpers shared by packages that
// walk a filesystem or archive and need the result in a stable, scheduling
// independent order.
package xio

import (
	"path"
	"sort"
	"strings"
)

// NormalizePath canonicalizes uri for use as a dedup-set key: a trailing
// slash is stripped and "." segments are collapsed, so the same physical
// location reached through two superficially different strings collapses
// to one key.
func NormalizePath(uri string) string {
	trimmed := strings.TrimSuffix(uri, "/")
	return path.Clean(trimmed)
}

// JoinRelative resolves entry against baseDir the way a manifest
// Class-Path reference is resolved against its owning JAR's directory: an
// absolute entry is returned unchanged, anything else is joined onto
// baseDir.
func JoinRelative(baseDir, entry string) string {
	if path.IsAbs(entry) {
		return entry
	}
	return path.Join(baseDir, entry)
}

// SortStrings returns a sorted copy of ss, leaving the input untouched.
func SortStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}
