package graph

import (
	"sort"
)

// Table is one unit of raw metadata: a table and the tables its foreign keys
// point at.
type Table struct {
	Name        string
	ForeignKeys []string
}

// Build constructs the dependency graph from raw metadata.
//
// Tables appear in input order, and a referenced table that has no entry of
// its own is added with an empty dependency set the first time it is seen.
// Repeated entries for the same table merge, duplicate targets collapse and
// self-references are dropped so a table never waits on itself.
func Build(tables []Table) *Graph {
	g := NewGraph()
	for _, t := range tables {
		if t.Name == "" {
			continue
		}
		g.AddNode(t.Name)
		for _, fk := range t.ForeignKeys {
			if fk == "" || fk == t.Name {
				continue
			}
			g.AddDependency(t.Name, fk)
		}
	}
	return g
}

// FromMap builds a graph from a plain table -> dependencies map. Keys are
// sorted first so the resulting node order is deterministic.
func FromMap(m map[string][]string) *Graph {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		tables = append(tables, Table{Name: name, ForeignKeys: m[name]})
	}
	return Build(tables)
}
