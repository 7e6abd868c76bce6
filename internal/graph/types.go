// Package graph provides the table dependency graph and the ordering and
// planning algorithms gofkdump builds on top of it.
package graph

import (
	"github.com/elliotchance/orderedmap/v2"
)

// Graph maps every table to the set of tables it directly depends on
// (its foreign-key targets). Node order is insertion order and drives every
// deterministic traversal in this package.
//
// The same type is used for the transpose (see Reverse), in which case the
// adjacency of a node lists the tables that reference it.
type Graph struct {
	adj *orderedmap.OrderedMap[string, []string]
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{adj: orderedmap.NewOrderedMap[string, []string]()}
}

// AddNode adds a table to the graph. Adding an existing table is a no-op.
func (g *Graph) AddNode(name string) {
	if _, exists := g.adj.Get(name); exists {
		return
	}
	g.adj.Set(name, []string{})
}

// AddDependency records that table depends on dependency. Both become nodes.
// Duplicate edges collapse into one.
func (g *Graph) AddDependency(table, dependency string) {
	g.AddNode(table)
	g.AddNode(dependency)

	deps, _ := g.adj.Get(table)
	for _, d := range deps {
		if d == dependency {
			return
		}
	}
	g.adj.Set(table, append(deps, dependency))
}

// Dependencies returns the direct adjacency of a table in insertion order.
// For a reversed graph these are the tables that reference it.
// The returned slice must not be modified.
func (g *Graph) Dependencies(name string) []string {
	deps, _ := g.adj.Get(name)
	return deps
}

// HasNode returns true if the graph contains a node with the given name.
func (g *Graph) HasNode(name string) bool {
	_, exists := g.adj.Get(name)
	return exists
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return g.adj.Len()
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for el := g.adj.Front(); el != nil; el = el.Next() {
		count += len(el.Value)
	}
	return count
}

// Nodes returns all table names in insertion order.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, g.adj.Len())
	for el := g.adj.Front(); el != nil; el = el.Next() {
		nodes = append(nodes, el.Key)
	}
	return nodes
}

// Reverse returns the transpose of the graph: for every edge "u depends on v"
// the result holds "v is referenced by u". Every node of g is a key of the
// result, in the same order.
func (g *Graph) Reverse() *Graph {
	r := NewGraph()
	for el := g.adj.Front(); el != nil; el = el.Next() {
		r.AddNode(el.Key)
	}
	for el := g.adj.Front(); el != nil; el = el.Next() {
		for _, dep := range el.Value {
			r.AddDependency(dep, el.Key)
		}
	}
	return r
}

// IndependentNodes returns the tables with no dependencies, in node order.
func (g *Graph) IndependentNodes() []string {
	var nodes []string
	for el := g.adj.Front(); el != nil; el = el.Next() {
		if len(el.Value) == 0 {
			nodes = append(nodes, el.Key)
		}
	}
	return nodes
}

// InDegree returns the number of tables that depend on name.
func (g *Graph) InDegree(name string) int {
	count := 0
	for el := g.adj.Front(); el != nil; el = el.Next() {
		for _, dep := range el.Value {
			if dep == name {
				count++
			}
		}
	}
	return count
}

// OutDegree returns the number of direct dependencies of name.
func (g *Graph) OutDegree(name string) int {
	return len(g.Dependencies(name))
}
