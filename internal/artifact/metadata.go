package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dbsmedya/gofkdump/internal/graph"
)

// Metadata is the content of metadata.json: the dependency map read from the
// source database and its transpose, plus where it came from.
type Metadata struct {
	TableDependencies *graph.Graph `json:"tableDependencies"`
	InDegreeMap       *graph.Graph `json:"inDegreeMap"`
	Order             []string     `json:"order,omitempty"`
	Dialect           string       `json:"dialect,omitempty"`
	Database          string       `json:"database,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// NewMetadata builds the metadata of g. The in-degree map is derived from it.
func NewMetadata(g *graph.Graph, order []string, dialect, database string) *Metadata {
	return &Metadata{
		TableDependencies: g,
		InDegreeMap:       g.Reverse(),
		Order:             order,
		Dialect:           dialect,
		Database:          database,
		CreatedAt:         time.Now().UTC(),
	}
}

// SaveMetadata writes meta to path.
func SaveMetadata(path string, meta *Metadata) error {
	if meta == nil || meta.TableDependencies == nil {
		return fmt.Errorf("metadata has no dependency map")
	}
	if meta.InDegreeMap == nil {
		meta.InDegreeMap = meta.TableDependencies.Reverse()
	}
	return writeJSON(path, meta)
}

// LoadMetadata reads metadata.json. A missing in-degree map is derived from
// the dependency map.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	if meta.TableDependencies == nil {
		return nil, fmt.Errorf("metadata %s has no tableDependencies", path)
	}
	if meta.InDegreeMap == nil {
		meta.InDegreeMap = meta.TableDependencies.Reverse()
	}
	return &meta, nil
}

// SavePlan writes plan to path.
func SavePlan(path string, plan *graph.ExecutionPlan) error {
	if plan == nil {
		return fmt.Errorf("execution plan is nil")
	}
	return writeJSON(path, plan)
}

// LoadPlan reads a plan written by SavePlan.
func LoadPlan(path string) (*graph.ExecutionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	plan := graph.NewExecutionPlan()
	if err := json.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return plan, nil
}

// writeJSON writes v tab-indented through a temporary file and a rename, so a
// reader never sees a partial document.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
