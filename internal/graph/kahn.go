package graph

import (
	"container/list"
	"errors"
	"fmt"
	"strings"
)

// ProcessingQueue wraps a list-based queue for Kahn's algorithm processing.
// It holds nodes that are ready to be processed (all dependencies emitted).
type ProcessingQueue struct {
	queue *list.List
}

// NewProcessingQueue creates a new empty processing queue.
func NewProcessingQueue() *ProcessingQueue {
	return &ProcessingQueue{
		queue: list.New(),
	}
}

// Enqueue adds a node to the back of the queue.
func (pq *ProcessingQueue) Enqueue(node string) {
	pq.queue.PushBack(node)
}

// Dequeue removes and returns the node at the front of the queue.
// Returns empty string and false if queue is empty.
func (pq *ProcessingQueue) Dequeue() (string, bool) {
	if pq.queue.Len() == 0 {
		return "", false
	}
	elem := pq.queue.Front()
	pq.queue.Remove(elem)
	return elem.Value.(string), true
}

// Len returns the number of nodes in the queue.
func (pq *ProcessingQueue) Len() int {
	return pq.queue.Len()
}

// IsEmpty returns true if the queue has no nodes.
func (pq *ProcessingQueue) IsEmpty() bool {
	return pq.queue.Len() == 0
}

// RemainingDependencies returns table name -> number of dependencies not yet
// emitted. This is the in-degree Kahn's algorithm counts down.
func (g *Graph) RemainingDependencies() map[string]int {
	remaining := make(map[string]int, g.NodeCount())
	for el := g.adj.Front(); el != nil; el = el.Next() {
		remaining[el.Key] = len(el.Value)
	}
	return remaining
}

// initializeQueue enqueues every node with no remaining dependencies, in
// node order, so ties break by insertion order.
func (g *Graph) initializeQueue(remaining map[string]int) *ProcessingQueue {
	pq := NewProcessingQueue()
	for el := g.adj.Front(); el != nil; el = el.Next() {
		if remaining[el.Key] == 0 {
			pq.Enqueue(el.Key)
		}
	}
	return pq
}

// kahn runs the algorithm and returns the emitted nodes in order.
func (g *Graph) kahn() []string {
	remaining := g.RemainingDependencies()
	queue := g.initializeQueue(remaining)
	reverse := g.Reverse()

	result := make([]string, 0, g.NodeCount())
	for !queue.IsEmpty() {
		node, _ := queue.Dequeue()
		result = append(result, node)

		for _, dependent := range reverse.Dependencies(node) {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue.Enqueue(dependent)
			}
		}
	}
	return result
}

// ErrCycleDetected is returned when the dependency graph contains a cycle,
// making topological sorting impossible.
var ErrCycleDetected = errors.New("cycle detected in dependency graph")

// CycleInfo contains information about incomplete processing due to cycles.
type CycleInfo struct {
	TotalNodes        int      // Total number of nodes in the graph
	ProcessedNodes    int      // Number of nodes successfully processed
	UnprocessedNodes  []string // Nodes that couldn't be processed (part of or blocked by cycle)
	CycleParticipants []string // Nodes that are actually part of a cycle (subset of UnprocessedNodes)
	CyclePath         []string // Ordered path showing the cycle (e.g., [A, B, C, A])
}

// CycleError represents a cycle detection error with detailed information about
// which tables are involved and which are blocked by the cycle.
type CycleError struct {
	Info *CycleInfo
}

// Error implements the error interface with a descriptive message that includes
// the tables in the cycle and any tables blocked by the cycle.
func (e *CycleError) Error() string {
	msg := fmt.Sprintf("cycle detected in dependency graph: %d of %d tables could not be ordered",
		len(e.Info.UnprocessedNodes), e.Info.TotalNodes)

	if len(e.Info.CyclePath) > 0 {
		msg += fmt.Sprintf("\nCycle path: %s", strings.Join(e.Info.CyclePath, " -> "))
	}

	if len(e.Info.CycleParticipants) > 0 {
		msg += fmt.Sprintf("\nTables in cycle: %s", strings.Join(e.Info.CycleParticipants, ", "))
	}

	if blocked := e.Info.Blocked(); len(blocked) > 0 {
		msg += fmt.Sprintf("\nTables blocked by cycle: %s", strings.Join(blocked, ", "))
	}

	return msg
}

// Unwrap lets callers match the error with errors.Is(err, ErrCycleDetected).
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// Blocked returns the unprocessed tables that are not themselves on a cycle.
func (c *CycleInfo) Blocked() []string {
	participants := make(map[string]bool, len(c.CycleParticipants))
	for _, p := range c.CycleParticipants {
		participants[p] = true
	}

	var blocked []string
	for _, u := range c.UnprocessedNodes {
		if !participants[u] {
			blocked = append(blocked, u)
		}
	}
	return blocked
}

// DetectIncompleteProcessing runs Kahn's algorithm and returns information
// about any nodes that couldn't be processed. If all nodes are processed,
// returns nil (no cycle).
func (g *Graph) DetectIncompleteProcessing() *CycleInfo {
	order := g.kahn()
	if len(order) == g.NodeCount() {
		return nil
	}

	processed := make(map[string]bool, len(order))
	for _, n := range order {
		processed[n] = true
	}

	var unprocessed []string
	unprocessedSet := make(map[string]bool)
	for _, name := range g.Nodes() {
		if !processed[name] {
			unprocessed = append(unprocessed, name)
			unprocessedSet[name] = true
		}
	}

	var cycleParticipants []string
	for _, node := range unprocessed {
		if g.canReachSelf(node, unprocessedSet) {
			cycleParticipants = append(cycleParticipants, node)
		}
	}

	var cyclePath []string
	if len(cycleParticipants) > 0 {
		cyclePath = g.FindCyclePath(cycleParticipants[0], unprocessedSet)
	}

	return &CycleInfo{
		TotalNodes:        g.NodeCount(),
		ProcessedNodes:    len(order),
		UnprocessedNodes:  unprocessed,
		CycleParticipants: cycleParticipants,
		CyclePath:         cyclePath,
	}
}

// FindCyclePath finds a path that forms a cycle starting from the given node,
// following dependency edges inside allowedNodes. The start node appears at
// both ends of the result.
func (g *Graph) FindCyclePath(start string, allowedNodes map[string]bool) []string {
	visited := make(map[string]bool)
	path := []string{start}

	if g.dfsFindPath(start, start, visited, allowedNodes, &path) {
		return path
	}

	return nil
}

func (g *Graph) dfsFindPath(current, target string, visited, allowedNodes map[string]bool, path *[]string) bool {
	for _, next := range g.Dependencies(current) {
		if !allowedNodes[next] {
			continue
		}

		if next == target {
			*path = append(*path, target)
			return true
		}

		if visited[next] {
			continue
		}

		visited[next] = true
		*path = append(*path, next)

		if g.dfsFindPath(next, target, visited, allowedNodes, path) {
			return true
		}

		// Backtrack
		*path = (*path)[:len(*path)-1]
	}

	return false
}

// canReachSelf checks if a node can reach itself through the subgraph
// defined by the allowedNodes set.
func (g *Graph) canReachSelf(start string, allowedNodes map[string]bool) bool {
	visited := make(map[string]bool)
	return g.dfsCanReach(start, start, visited, allowedNodes, true)
}

// dfsCanReach performs DFS to check if we can reach the target node.
// isStart is true only for the initial call to avoid immediate self-match.
func (g *Graph) dfsCanReach(current, target string, visited, allowedNodes map[string]bool, isStart bool) bool {
	if current == target && !isStart {
		return true
	}

	if visited[current] || !allowedNodes[current] {
		return false
	}

	visited[current] = true

	for _, next := range g.Dependencies(current) {
		if g.dfsCanReach(next, target, visited, allowedNodes, false) {
			return true
		}
	}

	return false
}

// TopologicalSort returns tables in dependency order using Kahn's algorithm:
// every table comes after all of the tables it depends on. Ties are broken by
// node insertion order.
// Returns a *CycleError (matching ErrCycleDetected) if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	order := g.kahn()

	if len(order) != g.NodeCount() {
		return nil, &CycleError{Info: g.DetectIncompleteProcessing()}
	}

	return order, nil
}

// Validate checks the graph for cycles.
// Returns a CycleError if the graph contains cycles, nil otherwise.
func (g *Graph) Validate() error {
	if info := g.DetectIncompleteProcessing(); info != nil {
		return &CycleError{Info: info}
	}
	return nil
}
