package graph

import (
	"errors"
)

// ErrNoIndependentNodes is returned when a non-empty graph has no table free
// of dependencies, so there is no anchor to start planning from.
var ErrNoIndependentNodes = errors.New("cyclic dependency list: no independent tables to start from")

// RestorePath is one chain of tables leading from an independent table toward
// a target, excluding the target itself.
type RestorePath []string

// AllPaths enumerates every path from start to end over the reversed graph,
// i.e. from a table toward the tables that reference it. Each recorded path
// begins with start and stops just before end.
//
// Visited marks are local to the current branch: a node is marked while it is
// on the path and cleared on backtrack, so it can show up on several distinct
// paths. start == end records nothing.
func AllPaths(start, end string, reverse *Graph) []RestorePath {
	if start == end || !reverse.HasNode(start) {
		return nil
	}

	var (
		paths   []RestorePath
		path    []string
		visited = make(map[string]bool)
	)

	var walk func(node string)
	walk = func(node string) {
		if node == end {
			recorded := make(RestorePath, len(path))
			copy(recorded, path)
			paths = append(paths, recorded)
			return
		}

		visited[node] = true
		path = append(path, node)

		for _, next := range reverse.Dependencies(node) {
			if !visited[next] {
				walk(next)
			}
		}

		path = path[:len(path)-1]
		visited[node] = false
	}

	walk(start)
	return paths
}

// BuildExecutionPlan computes, for every table, all chains from every
// independent table that lead to it. Every node of g is a target of the
// resulting plan, in node order, even when it has no chains.
//
// reverse is the transpose of g; nil means g.Reverse(). A non-empty graph with
// no independent table fails with ErrNoIndependentNodes.
func BuildExecutionPlan(g, reverse *Graph) (*ExecutionPlan, error) {
	if reverse == nil {
		reverse = g.Reverse()
	}

	independent := g.IndependentNodes()
	if g.NodeCount() > 0 && len(independent) == 0 {
		return nil, ErrNoIndependentNodes
	}

	plan := NewExecutionPlan()
	targets := g.Nodes()
	for _, t := range targets {
		plan.AddTarget(t)
	}

	for _, s := range independent {
		for _, t := range targets {
			if t == s {
				continue
			}
			for _, p := range AllPaths(s, t, reverse) {
				plan.AddPath(t, p)
			}
		}
	}

	return plan, nil
}
