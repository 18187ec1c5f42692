package rules

import (
	"github.com/exoego/inspequte-sub000/ir"
)

// DeadCodeRule flags analysis-target methods with bytecode that the call
// graph never reaches from any entry point.
type DeadCodeRule struct{}

func (DeadCodeRule) Metadata() Metadata {
	return Metadata{
		ID:          "DEAD_CODE",
		Name:        "Dead code",
		Description: "Unreachable methods detected by call graph",
	}
}

func (DeadCodeRule) Run(ctx *Context) ([]Result, error) {
	type methodEntry struct {
		class  *ir.Class
		method *ir.Method
	}

	methods := make(map[ir.MethodId]methodEntry)
	var entryPoints []ir.MethodId

	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			id := method.Id(class.Name)
			methods[id] = methodEntry{class: class, method: method}
			if isEntryMethod(method) {
				entryPoints = append(entryPoints, id)
			}
		}
	}

	if len(entryPoints) == 0 {
		return nil, nil
	}

	adjacency := make(map[ir.MethodId][]ir.MethodId)
	for _, edge := range ctx.CallGraph.Edges {
		adjacency[edge.Caller] = append(adjacency[edge.Caller], edge.Callee)
	}

	reachable := make(map[ir.MethodId]struct{})
	queue := append([]ir.MethodId(nil), entryPoints...)
	for _, id := range entryPoints {
		reachable[id] = struct{}{}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[id] {
			if _, ok := reachable[next]; ok {
				continue
			}
			reachable[next] = struct{}{}
			queue = append(queue, next)
		}
	}

	var results []Result
	for id, entry := range methods {
		if _, ok := reachable[id]; ok {
			continue
		}
		if !entry.method.HasBody() {
			continue
		}
		message := "Unreachable method: " + entry.class.Name + "." + entry.method.Name + entry.method.Descriptor
		results = append(results, methodResult("DEAD_CODE", message, ctx, entry.class, entry.method, 0))
	}
	return results, nil
}

func isEntryMethod(method *ir.Method) bool {
	return method.IsPublic() && !method.IsAbstract() && method.HasBody()
}
