package graph

import (
	"github.com/elliotchance/orderedmap/v2"
)

// ExecutionPlan maps each target table to the ordered chains that must be
// worked through before it. The i-th element of every chain of a target forms
// wave i for that target.
type ExecutionPlan struct {
	targets *orderedmap.OrderedMap[string, []RestorePath]
}

// NewExecutionPlan creates an empty plan.
func NewExecutionPlan() *ExecutionPlan {
	return &ExecutionPlan{targets: orderedmap.NewOrderedMap[string, []RestorePath]()}
}

// SequentialPlan returns a plan whose targets follow order and carry no
// chains. Used when the order itself already satisfies every dependency.
func SequentialPlan(order []string) *ExecutionPlan {
	p := NewExecutionPlan()
	for _, t := range order {
		p.AddTarget(t)
	}
	return p
}

// AddTarget registers a target with no chains. Existing targets are kept.
func (p *ExecutionPlan) AddTarget(target string) {
	if _, exists := p.targets.Get(target); exists {
		return
	}
	p.targets.Set(target, []RestorePath{})
}

// AddPath appends a chain to target, registering the target if needed.
func (p *ExecutionPlan) AddPath(target string, path RestorePath) {
	paths, _ := p.targets.Get(target)
	if paths == nil {
		paths = []RestorePath{}
	}
	p.targets.Set(target, append(paths, path))
}

// Targets returns every target in plan order.
func (p *ExecutionPlan) Targets() []string {
	targets := make([]string, 0, p.targets.Len())
	for el := p.targets.Front(); el != nil; el = el.Next() {
		targets = append(targets, el.Key)
	}
	return targets
}

// Paths returns the chains of target. The returned slice must not be modified.
func (p *ExecutionPlan) Paths(target string) []RestorePath {
	paths, _ := p.targets.Get(target)
	return paths
}

// MaxDepth returns the length of the longest chain of target.
func (p *ExecutionPlan) MaxDepth(target string) int {
	depth := 0
	for _, path := range p.Paths(target) {
		if len(path) > depth {
			depth = len(path)
		}
	}
	return depth
}

// Wave returns element i of every chain of target that is long enough, in
// chain order. Duplicates are kept.
func (p *ExecutionPlan) Wave(target string, i int) []string {
	var wave []string
	for _, path := range p.Paths(target) {
		if len(path) > i {
			wave = append(wave, path[i])
		}
	}
	return wave
}

// Len returns the number of targets.
func (p *ExecutionPlan) Len() int {
	return p.targets.Len()
}

// PathCount returns the total number of chains across all targets.
func (p *ExecutionPlan) PathCount() int {
	count := 0
	for el := p.targets.Front(); el != nil; el = el.Next() {
		count += len(el.Value)
	}
	return count
}

// Equal reports whether two plans have the same targets in the same order with
// identical chains.
func (p *ExecutionPlan) Equal(other *ExecutionPlan) bool {
	if p.Len() != other.Len() {
		return false
	}
	a, b := p.targets.Front(), other.targets.Front()
	for ; a != nil && b != nil; a, b = a.Next(), b.Next() {
		if a.Key != b.Key || len(a.Value) != len(b.Value) {
			return false
		}
		for i := range a.Value {
			if !equalStrings(a.Value[i], b.Value[i]) {
				return false
			}
		}
	}
	return a == nil && b == nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
