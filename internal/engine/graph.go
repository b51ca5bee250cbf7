package engine

import (
	"sort"

	"github.com/stackr-io/stackr/internal/ir"
)

// Graph is the directed acyclic dependency graph of a stack. Edges point from
// a resource to the resources it depends on.
type Graph struct {
	nodes map[string]*graphNode
	order []string // topological order (creation order)
}

type graphNode struct {
	name     string
	res      *ir.Resource
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildGraph constructs the dependency graph from resources. It turns both
// explicit DependsOn entries and reference expressions in property bags into
// edges. !ImportValue references cross the stack boundary and add no edge.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}

	for _, res := range resources {
		g.nodes[res.Name] = &graphNode{name: res.Name, res: res}
	}

	for _, res := range resources {
		node := g.nodes[res.Name]

		for _, dep := range res.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &UnresolvedReferenceError{From: res.Name, Ref: dep}
			}
			node.edges = append(node.edges, dep)
		}

		for _, ref := range ir.CollectRefs(res.Properties) {
			target := ref.Referent()
			if target == "" {
				continue // literal or external import
			}
			if _, ok := g.nodes[target]; !ok {
				return nil, &UnresolvedReferenceError{From: res.Name, Ref: ref.String()}
			}
			node.edges = append(node.edges, target)
		}

		node.edges = dedupe(node.edges)
	}

	for name, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, name)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// BuildGraphFromState constructs a graph from recorded dependencies, used to
// order deletions when the template no longer declares the resources.
func BuildGraphFromState(records map[string]*ir.StateRecord) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}

	for name := range records {
		g.nodes[name] = &graphNode{name: name}
	}
	for name, rec := range records {
		node := g.nodes[name]
		for _, dep := range rec.Dependencies {
			if _, ok := g.nodes[dep]; !ok {
				// Dependency already deleted; no ordering constraint left.
				continue
			}
			node.edges = append(node.edges, dep)
		}
		node.edges = dedupe(node.edges)
	}

	for name, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, name)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// CreationOrder returns node names in dependency-respecting creation order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DeletionOrder returns node names in reverse dependency order.
func (g *Graph) DeletionOrder() []string {
	rev := make([]string, len(g.order))
	for i, name := range g.order {
		rev[len(g.order)-1-i] = name
	}
	return rev
}

// Dependencies returns the nodes name directly depends on, sorted.
func (g *Graph) Dependencies(name string) []string {
	if node, ok := g.nodes[name]; ok {
		deps := append([]string(nil), node.edges...)
		sort.Strings(deps)
		return deps
	}
	return nil
}

// Dependents returns the nodes that directly depend on name, sorted.
func (g *Graph) Dependents(name string) []string {
	if node, ok := g.nodes[name]; ok {
		deps := append([]string(nil), node.revEdges...)
		sort.Strings(deps)
		return deps
	}
	return nil
}

// TransitiveDependents returns every node that depends on name, directly or
// through intermediates.
func (g *Graph) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, d := range g.Dependents(n) {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(name)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// topoSort orders nodes dependencies-first via depth-first traversal. A node
// revisited while still on the recursion stack is a cycle; the error carries
// the cycle path. Visiting names in sorted order keeps the result stable so
// plans diff cleanly between runs.
func (g *Graph) topoSort() ([]string, error) {
	const (
		unvisited = iota
		onStack
		done
	)

	state := make(map[string]int, len(g.nodes))
	var order []string
	var stack []string

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case onStack:
			// Trim the stack down to where the cycle starts.
			i := 0
			for ; i < len(stack); i++ {
				if stack[i] == name {
					break
				}
			}
			path := append(append([]string(nil), stack[i:]...), name)
			return &CycleError{Path: path}
		}

		state[name] = onStack
		stack = append(stack, name)
		for _, dep := range g.Dependencies(name) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
