// Package callgraph builds an over-approximate call graph by class
// hierarchy analysis: every call-site resolves to the set of methods that
// could be invoked at runtime given only the declared receiver type and
// the class hierarchy, with no attempt at points-to precision.
package callgraph

import (
	"sort"
	"time"

	"github.com/minio/highwayhash"

	"github.com/exoego/inspequte-sub000/ir"
)

// hashKey is fixed and unexported: the resolution cache only needs
// collision resistance within a single run, never cross-run stability.
var hashKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// Graph is the resolved CHA call graph plus timing counters surfaced for
// diagnostics but never persisted into analysis output.
type Graph struct {
	Edges []ir.CallEdge

	HierarchyBuildTime      time.Duration
	MethodIndexTime         time.Duration
	EdgeMaterializationTime time.Duration
}

type classEntry struct {
	methods map[callKey]struct{} // (name, descriptor) this class declares directly
}

type callKey struct {
	name       string
	descriptor string
}

// Build walks every call-site of every method in classes and resolves it
// against the hierarchy formed by each class's super_name and interfaces.
func Build(classes []*ir.Class) (*Graph, error) {
	hierarchyStart := time.Now()
	// children maps a class name to every class that directly extends or
	// implements it - the JVM doesn't distinguish the two for dispatch
	// purposes, so neither does this graph.
	children := make(map[string][]string)
	classByName := make(map[string]*ir.Class, len(classes))
	for _, c := range classes {
		classByName[c.Name] = c
		if c.SuperName != "" {
			children[c.SuperName] = append(children[c.SuperName], c.Name)
		}
		for _, iface := range c.Interfaces {
			children[iface] = append(children[iface], c.Name)
		}
	}
	for k := range children {
		sort.Strings(children[k])
	}
	hierarchyTime := time.Since(hierarchyStart)

	indexStart := time.Now()
	entries := make(map[string]*classEntry, len(classes))
	methodByKey := make(map[string]map[callKey]*ir.Method, len(classes))
	for _, c := range classes {
		declared := make(map[callKey]struct{}, len(c.Methods))
		byKey := make(map[callKey]*ir.Method, len(c.Methods))
		for _, m := range c.Methods {
			k := callKey{name: m.Name, descriptor: m.Descriptor}
			declared[k] = struct{}{}
			byKey[k] = m
		}
		entries[c.Name] = &classEntry{methods: declared}
		methodByKey[c.Name] = byKey
	}
	methodIndexTime := time.Since(indexStart)

	edgeStart := time.Now()
	cache := make(map[uint64][]string) // resolution cache key -> resolved owner class names
	var edges []ir.CallEdge
	for _, c := range classes {
		for _, m := range c.Methods {
			callerID := m.Id(c.Name)
			for _, cs := range m.Calls {
				callees := resolveCallees(cs, children, entries, cache)
				for _, owner := range callees {
					edges = append(edges, ir.CallEdge{
						Caller: callerID,
						Callee: ir.MethodId{ClassName: owner, Name: cs.Name, Descriptor: cs.Descriptor},
						Kind:   cs.Kind,
						Offset: cs.Offset,
					})
				}
			}
		}
	}
	edgeMaterializationTime := time.Since(edgeStart)

	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Caller.ClassName != b.Caller.ClassName {
			return a.Caller.ClassName < b.Caller.ClassName
		}
		if a.Caller.Name != b.Caller.Name {
			return a.Caller.Name < b.Caller.Name
		}
		if a.Caller.Descriptor != b.Caller.Descriptor {
			return a.Caller.Descriptor < b.Caller.Descriptor
		}
		if a.Callee.ClassName != b.Callee.ClassName {
			return a.Callee.ClassName < b.Callee.ClassName
		}
		if a.Callee.Name != b.Callee.Name {
			return a.Callee.Name < b.Callee.Name
		}
		if a.Callee.Descriptor != b.Callee.Descriptor {
			return a.Callee.Descriptor < b.Callee.Descriptor
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Offset < b.Offset
	})
	edges = dedupe(edges)

	return &Graph{
		Edges:                   edges,
		HierarchyBuildTime:      hierarchyTime,
		MethodIndexTime:         methodIndexTime,
		EdgeMaterializationTime: edgeMaterializationTime,
	}, nil
}

func dedupe(sorted []ir.CallEdge) []ir.CallEdge {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, e := range sorted[1:] {
		last := out[len(out)-1]
		if e == last {
			continue
		}
		out = append(out, e)
	}
	return out
}

// resolveCallees returns the binary names of every class that is a valid
// runtime target of cs, given cs.Kind's dispatch rule.
func resolveCallees(cs *ir.CallSite, children map[string][]string, entries map[string]*classEntry, cache map[uint64][]string) []string {
	switch cs.Kind {
	case ir.Static, ir.Special:
		if hasMethod(entries, cs.Owner, cs.Name, cs.Descriptor) {
			return []string{cs.Owner}
		}
		return nil
	default: // Virtual, Interface
		key := resolutionCacheKey(cs.Owner, cs.Name, cs.Descriptor)
		if cached, ok := cache[key]; ok {
			return cached
		}
		resolved := resolveVirtual(cs.Owner, cs.Name, cs.Descriptor, children, entries)
		cache[key] = resolved
		return resolved
	}
}

func hasMethod(entries map[string]*classEntry, owner, name, descriptor string) bool {
	entry, ok := entries[owner]
	if !ok {
		return false
	}
	_, ok = entry.methods[callKey{name: name, descriptor: descriptor}]
	return ok
}

// resolveVirtual breadth-first walks the hierarchy rooted at owner,
// collecting every class (owner included) that declares (name,
// descriptor); classes the scanner never supplied are silently absent
// from children and simply contribute no further descendants.
func resolveVirtual(owner, name, descriptor string, children map[string][]string, entries map[string]*classEntry) []string {
	var out []string
	visited := map[string]struct{}{owner: {}}
	queue := []string{owner}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if hasMethod(entries, current, name, descriptor) {
			out = append(out, current)
		}
		for _, child := range children[current] {
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	sort.Strings(out)
	return out
}

func resolutionCacheKey(owner, name, descriptor string) uint64 {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		// highwayhash.New64 only fails on a key of the wrong length, which
		// hashKey's length makes unreachable; fall back defensively anyway.
		return fnvFallback(owner + "#" + name + "#" + descriptor)
	}
	h.Write([]byte(owner))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(descriptor))
	return h.Sum64()
}

func fnvFallback(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
