package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders the graph as an object of table -> dependencies, keys in
// node order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for el := g.adj.Front(); el != nil; el = el.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeEntry(&buf, el.Key, el.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a table -> dependencies object keeping document order.
func (g *Graph) UnmarshalJSON(data []byte) error {
	type entry struct {
		name string
		deps []string
	}
	var entries []entry
	err := decodeOrderedObject(data, func(key string, dec *json.Decoder) error {
		var deps []string
		if err := dec.Decode(&deps); err != nil {
			return fmt.Errorf("failed to decode dependencies of %q: %w", key, err)
		}
		entries = append(entries, entry{name: key, deps: deps})
		return nil
	})
	if err != nil {
		return err
	}

	*g = *NewGraph()
	for _, e := range entries {
		g.AddNode(e.name)
	}
	for _, e := range entries {
		for _, dep := range e.deps {
			if dep == "" || dep == e.name {
				continue
			}
			g.AddDependency(e.name, dep)
		}
	}
	return nil
}

// MarshalJSON renders the plan as an object of table -> list of chains. A
// target without chains is written as [].
func (p *ExecutionPlan) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for el := p.targets.Front(); el != nil; el = el.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		paths := make([][]string, 0, len(el.Value))
		for _, path := range el.Value {
			if path == nil {
				path = RestorePath{}
			}
			paths = append(paths, path)
		}
		if err := writeEntry(&buf, el.Key, paths); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a plan artifact keeping target order.
func (p *ExecutionPlan) UnmarshalJSON(data []byte) error {
	plan := NewExecutionPlan()
	err := decodeOrderedObject(data, func(key string, dec *json.Decoder) error {
		var paths [][]string
		if err := dec.Decode(&paths); err != nil {
			return fmt.Errorf("failed to decode paths of %q: %w", key, err)
		}
		plan.AddTarget(key)
		for _, path := range paths {
			plan.AddPath(key, RestorePath(append([]string{}, path...)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	*p = *plan
	return nil
}

func writeEntry(buf *bytes.Buffer, key string, value interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// decodeOrderedObject walks the top-level keys of a JSON object in document
// order, handing the decoder to fn positioned at each value. A JSON null is
// treated as an empty object.
func decodeOrderedObject(data []byte, fn func(key string, dec *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read JSON object: %w", err)
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read JSON key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", tok)
		}
		if err := fn(key, dec); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read end of JSON object: %w", err)
	}
	return nil
}
