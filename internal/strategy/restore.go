package strategy

import (
	"context"
	"fmt"

	"github.com/dbsmedya/gofkdump/internal/artifact"
	"github.com/dbsmedya/gofkdump/internal/dialect"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
	"github.com/dbsmedya/gofkdump/internal/scheduler"
)

// Restore replays a backup directory into the configured database. Tables
// start together on the worker pool and each waits for its dependencies
// through the state store.
type Restore struct {
	opts Options
}

// NewRestore creates a restore run.
func NewRestore(opts Options) (*Restore, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	return &Restore{opts: opts}, nil
}

// Plan builds the execution plan of a backup from its metadata.
func Plan(meta *artifact.Metadata) (*graph.ExecutionPlan, error) {
	if meta == nil || meta.TableDependencies == nil {
		return nil, fmt.Errorf("metadata has no dependency map")
	}
	plan, err := graph.BuildExecutionPlan(meta.TableDependencies, meta.InDegreeMap)
	if err != nil {
		return nil, fmt.Errorf("cannot plan restore: %w", err)
	}
	return plan, nil
}

// LoadPlan reads metadata.json from dir and builds its execution plan.
func LoadPlan(dir string) (*artifact.Metadata, *graph.ExecutionPlan, error) {
	layout := artifact.NewLayout(dir, "")
	meta, err := artifact.LoadMetadata(layout.MetadataPath())
	if err != nil {
		return nil, nil, err
	}
	plan, err := Plan(meta)
	if err != nil {
		return meta, nil, err
	}
	return meta, plan, nil
}

// Run loads metadata.json, builds and persists plan.json, then restores
// every table once all of its dependencies are done.
func (r *Restore) Run(ctx context.Context) (*Outcome, error) {
	cfg := r.opts.Config
	log := r.opts.Logger.Named(ModeRestore)
	layout := r.opts.layout()
	outcome := &Outcome{Mode: ModeRestore}

	meta, plan, err := LoadPlan(layout.Root)
	outcome.Metadata = meta
	if err != nil {
		return outcome, err
	}
	outcome.Plan = plan

	if meta.Dialect != "" && meta.Dialect != cfg.Database.Dialect {
		return outcome, fmt.Errorf("backup in %s was taken from %s and cannot be restored into %s",
			layout.Root, meta.Dialect, cfg.Database.Dialect)
	}

	master, err := r.opts.Open(ctx, &cfg.Database, log)
	if err != nil {
		return outcome, err
	}
	defer func() { _ = master.Close() }()

	release, err := r.opts.acquireLock(ctx, master)
	if err != nil {
		return outcome, err
	}
	defer release()

	log.Infow("Starting restore",
		"database", cfg.Database.Database,
		"tables", plan.Len(),
		"paths", plan.PathCount(),
		"independent", len(meta.TableDependencies.IndependentNodes()),
		"dir", layout.Root)

	factory := func(ctx context.Context, workerID int) (scheduler.Executor, error) {
		wlog := log.WithWorker(workerID)
		d, err := r.opts.Open(ctx, &cfg.Database, wlog)
		if err != nil {
			return nil, err
		}
		return &restoreExecutor{dialect: d, layout: layout, logger: wlog}, nil
	}

	result, err := r.opts.schedule(ctx, factory, layout.PlanPath(), plan, meta.TableDependencies)
	outcome.Result = result
	if err != nil {
		return outcome, err
	}

	if !result.OK() {
		log.Warnw("Tables failed", "tables", result.FailedTables())
	}
	log.Infow("Restore finished", "summary", result.Summary("Restored"), "duration", result.Duration.String())
	return outcome, nil
}

type restoreExecutor struct {
	dialect dialect.Dialect
	layout  *artifact.Layout
	logger  *logger.Logger
}

// Process replays files/<table>.sql.
func (e *restoreExecutor) Process(ctx context.Context, job scheduler.Job) error {
	script, err := e.layout.ReadTableFile(job.Table)
	if err != nil {
		return err
	}
	if err := e.dialect.Restore(ctx, job.Table, script); err != nil {
		return err
	}
	e.logger.WithTable(job.Table).Debugw("Table restored", "bytes", len(script), "wave", job.Wave)
	return nil
}

func (e *restoreExecutor) Close() error {
	return e.dialect.Close()
}
