package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestProcessingQueue_FIFO(t *testing.T) {
	pq := NewProcessingQueue()
	if !pq.IsEmpty() {
		t.Fatal("New queue should be empty")
	}

	pq.Enqueue("a")
	pq.Enqueue("b")
	if pq.Len() != 2 {
		t.Errorf("Expected length 2, got %d", pq.Len())
	}

	first, _ := pq.Dequeue()
	second, _ := pq.Dequeue()
	if first != "a" || second != "b" {
		t.Errorf("Expected FIFO order, got %s, %s", first, second)
	}

	if _, ok := pq.Dequeue(); ok {
		t.Error("Dequeue on empty queue should report false")
	}
}

func TestRemainingDependencies(t *testing.T) {
	g := FromMap(map[string][]string{"A": {}, "B": {"A"}, "C": {"A", "B"}})
	remaining := g.RemainingDependencies()

	expected := map[string]int{"A": 0, "B": 1, "C": 2}
	if !reflect.DeepEqual(remaining, expected) {
		t.Errorf("Expected %v, got %v", expected, remaining)
	}
}

func TestTopologicalSort_FanOut(t *testing.T) {
	g := FromMap(map[string][]string{"A": {}, "B": {"A"}, "C": {"A"}})

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	valid := reflect.DeepEqual(order, []string{"A", "B", "C"}) ||
		reflect.DeepEqual(order, []string{"A", "C", "B"})
	if !valid {
		t.Errorf("Expected A before B and C, got %v", order)
	}
}

func TestTopologicalSort_InsertionOrderTieBreak(t *testing.T) {
	g := Build([]Table{
		{Name: "zeta"},
		{Name: "alpha"},
		{Name: "orders", ForeignKeys: []string{"alpha"}},
		{Name: "mid"},
	})

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []string{"zeta", "alpha", "mid", "orders"}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("Expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_Empty(t *testing.T) {
	order, err := NewGraph().TopologicalSort()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("Expected empty order, got %v", order)
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	g := FromMap(map[string][]string{
		"A": {"B"},
		"B": {"A"},
		"C": {},
		"D": {"A"},
	})

	order, err := g.TopologicalSort()
	if err == nil {
		t.Fatalf("Expected cycle error, got order %v", order)
	}
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("Expected errors.Is(err, ErrCycleDetected)")
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Expected *CycleError, got %T", err)
	}

	info := cycleErr.Info
	if info.TotalNodes != 4 || info.ProcessedNodes != 1 {
		t.Errorf("Unexpected counts: total=%d processed=%d", info.TotalNodes, info.ProcessedNodes)
	}
	if !reflect.DeepEqual(info.UnprocessedNodes, []string{"A", "B", "D"}) {
		t.Errorf("Unexpected unprocessed nodes %v", info.UnprocessedNodes)
	}
	if !reflect.DeepEqual(info.CycleParticipants, []string{"A", "B"}) {
		t.Errorf("Unexpected participants %v", info.CycleParticipants)
	}
	if !reflect.DeepEqual(info.CyclePath, []string{"A", "B", "A"}) {
		t.Errorf("Unexpected cycle path %v", info.CyclePath)
	}
	if !reflect.DeepEqual(info.Blocked(), []string{"D"}) {
		t.Errorf("Unexpected blocked nodes %v", info.Blocked())
	}

	msg := err.Error()
	for _, want := range []string{"3 of 4", "Cycle path: A -> B -> A", "Tables in cycle: A, B", "Tables blocked by cycle: D"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message should contain %q, got:\n%s", want, msg)
		}
	}
}

func TestValidate(t *testing.T) {
	acyclic := FromMap(map[string][]string{"A": {}, "B": {"A"}})
	if acyclic.Validate() != nil {
		t.Error("Acyclic graph reported a cycle")
	}

	cyclic := FromMap(map[string][]string{"A": {"C"}, "B": {"A"}, "C": {"B"}})
	if err := cyclic.Validate(); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("Expected cycle error from Validate, got %v", err)
	}
}

// Every acyclic graph sorts completely with dependencies first.
func TestTopologicalSort_RandomAcyclicProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(15)
		tables := make([]Table, n)
		for i := 0; i < n; i++ {
			tables[i].Name = fmt.Sprintf("t%d", i)
			// Only point at lower indices so the graph stays acyclic
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					tables[i].ForeignKeys = append(tables[i].ForeignKeys, fmt.Sprintf("t%d", j))
				}
			}
		}
		rng.Shuffle(len(tables), func(a, b int) { tables[a], tables[b] = tables[b], tables[a] })

		g := Build(tables)
		order, err := g.TopologicalSort()
		if err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", iter, err)
		}
		if len(order) != g.NodeCount() {
			t.Fatalf("iteration %d: expected %d nodes, got %d", iter, g.NodeCount(), len(order))
		}

		position := make(map[string]int, len(order))
		for i, name := range order {
			position[name] = i
		}
		for _, u := range g.Nodes() {
			for _, v := range g.Dependencies(u) {
				if position[v] >= position[u] {
					t.Fatalf("iteration %d: %s depends on %s but comes first in %v", iter, u, v, order)
				}
			}
		}
	}
}
