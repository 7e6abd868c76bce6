package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dbsmedya/gofkdump/internal/artifact"
	"github.com/dbsmedya/gofkdump/internal/dialect"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
	"github.com/dbsmedya/gofkdump/internal/scheduler"
)

// Backup dumps every table of the configured database into the backup
// directory, dependencies first.
type Backup struct {
	opts Options
}

// NewBackup creates a backup run.
func NewBackup(opts Options) (*Backup, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	return &Backup{opts: opts}, nil
}

// Run reads the dependency graph, sorts it, writes metadata.json and then
// dumps the tables in topological order. A cyclic graph aborts the backup.
func (b *Backup) Run(ctx context.Context) (*Outcome, error) {
	cfg := b.opts.Config
	log := b.opts.Logger.Named(ModeBackup)
	layout := b.opts.layout()
	outcome := &Outcome{Mode: ModeBackup}

	if err := layout.Ensure(); err != nil {
		return outcome, err
	}

	master, err := b.opts.Open(ctx, &cfg.Database, log)
	if err != nil {
		return outcome, err
	}
	defer func() { _ = master.Close() }()

	release, err := b.opts.acquireLock(ctx, master)
	if err != nil {
		return outcome, err
	}
	defer release()

	tables, err := master.Tables(ctx)
	if err != nil {
		return outcome, err
	}

	g := graph.Build(tables)
	order, err := g.TopologicalSort()
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			log.Errorw("Cycle detected in dependency graph",
				"unprocessed", cycleErr.Info.UnprocessedNodes,
				"cycle", cycleErr.Info.CyclePath)
		}
		return outcome, fmt.Errorf("cannot order tables for backup: %w", err)
	}

	meta := artifact.NewMetadata(g, order, master.Name(), cfg.Database.Database)
	if err := artifact.SaveMetadata(layout.MetadataPath(), meta); err != nil {
		return outcome, err
	}
	outcome.Metadata = meta
	outcome.Plan = graph.SequentialPlan(order)

	log.Infow("Starting backup",
		"database", cfg.Database.Database,
		"tables", len(order),
		"dependencies", g.EdgeCount(),
		"dir", layout.Root,
		"compression", layout.Compression)

	rows := newCounter()
	factory := func(ctx context.Context, workerID int) (scheduler.Executor, error) {
		wlog := log.WithWorker(workerID)
		d, err := b.opts.Open(ctx, &cfg.Database, wlog)
		if err != nil {
			return nil, err
		}
		return &backupExecutor{dialect: d, layout: layout, opts: &b.opts, rows: rows, logger: wlog}, nil
	}

	// Plan order is a topological order, so no gating is needed.
	result, err := b.opts.schedule(ctx, factory, "", outcome.Plan, nil)
	outcome.Result = result
	outcome.Rows = rows.snapshot()
	outcome.Bytes = fileSizes(layout, outcome.Rows)
	if err != nil {
		return outcome, err
	}

	if !result.OK() {
		log.Warnw("Tables failed", "tables", result.FailedTables())
	}
	log.Infow("Backup finished", "summary", result.Summary("Backed up"), "duration", result.Duration.String())
	return outcome, nil
}

type backupExecutor struct {
	dialect dialect.Dialect
	layout  *artifact.Layout
	opts    *Options
	rows    *counter
	logger  *logger.Logger
}

// Process writes files/<table>.sql: the definition followed by the rows.
func (e *backupExecutor) Process(ctx context.Context, job scheduler.Job) error {
	w, err := e.layout.CreateTableFile(job.Table)
	if err != nil {
		return err
	}

	if err := e.dialect.WriteSchema(ctx, job.Table, w); err != nil {
		_ = w.Close()
		return err
	}

	filter := e.opts.Config.Backup.TableFilter(job.Table)
	n, err := e.dialect.WriteRowInserts(ctx, job.Table, filter, w)
	if err != nil {
		_ = w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish table file of %s: %w", job.Table, err)
	}

	e.rows.set(job.Table, n)
	e.logger.WithTable(job.Table).Debugw("Table dumped", "rows", n, "filter", filter)
	return nil
}

func (e *backupExecutor) Close() error {
	return e.dialect.Close()
}

// fileSizes stats the script of every dumped table.
func fileSizes(layout *artifact.Layout, tables map[string]int64) map[string]int64 {
	sizes := make(map[string]int64, len(tables))
	for table := range tables {
		if fi, err := os.Stat(layout.TablePath(table)); err == nil {
			sizes[table] = fi.Size()
		}
	}
	return sizes
}
