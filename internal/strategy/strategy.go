// Package strategy wires the dependency graph, the scheduler and a database
// dialect into the two runs gofkdump offers: backup and restore.
package strategy

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dbsmedya/gofkdump/internal/artifact"
	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/dialect"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/lock"
	"github.com/dbsmedya/gofkdump/internal/logger"
	"github.com/dbsmedya/gofkdump/internal/scheduler"
	"github.com/dbsmedya/gofkdump/internal/state"
)

// Run modes.
const (
	ModeBackup  = "backup"
	ModeRestore = "restore"
)

// Outcome describes a finished run. Result is nil when the run failed before
// the scheduler started.
type Outcome struct {
	Mode     string
	Metadata *artifact.Metadata
	Plan     *graph.ExecutionPlan
	Result   *scheduler.RunResult
	// Rows and Bytes are per-table row counts and script sizes of a backup.
	Rows  map[string]int64
	Bytes map[string]int64
}

// Options are shared by both strategies.
type Options struct {
	Config *config.Config
	Logger *logger.Logger
	// Open opens a dialect; nil means dialect.Open.
	Open dialect.Opener
	// Force skips the advisory lock guarding the target database.
	Force bool
}

func (o *Options) normalize() error {
	if o.Config == nil {
		return fmt.Errorf("configuration is nil")
	}
	if o.Logger == nil {
		o.Logger = logger.NewDefault()
	}
	if o.Open == nil {
		o.Open = dialect.Open
	}
	return nil
}

func (o *Options) layout() *artifact.Layout {
	return artifact.NewLayout(o.Config.Backup.Dir, o.Config.Backup.Compression)
}

func (o *Options) schedulerConfig(planPath string) scheduler.Config {
	s := o.Config.Scheduler
	return scheduler.Config{
		Workers:           s.EffectiveWorkers(),
		PollMinInterval:   s.PollMinInterval,
		PollMaxInterval:   s.PollMaxInterval,
		HandshakeTimeout:  s.HandshakeTimeout,
		DependencyTimeout: s.DependencyTimeout,
		JobTimeout:        s.JobTimeout,
		PlanPath:          planPath,
	}
}

// schedule runs plan on a fresh state store.
func (o *Options) schedule(ctx context.Context, factory scheduler.ExecutorFactory, planPath string,
	plan *graph.ExecutionPlan, deps *graph.Graph) (*scheduler.RunResult, error) {
	store, err := state.Open(ctx, o.Config.StatePath(), o.Logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	sched, err := scheduler.New(o.schedulerConfig(planPath), store, factory, o.Logger)
	if err != nil {
		return nil, err
	}
	return sched.Run(ctx, plan, deps)
}

// pooled is implemented by dialects backed by a database/sql pool.
type pooled interface {
	DB() *sql.DB
}

// acquireLock takes the run lock of the configured database through d. The
// returned release function is never nil.
func (o *Options) acquireLock(ctx context.Context, d dialect.Dialect) (func(), error) {
	noop := func() {}
	if o.Force {
		o.Logger.Warn("Skipping run lock (--force)")
		return noop, nil
	}
	p, ok := d.(pooled)
	if !ok {
		return noop, nil
	}

	l := lock.NewRunLock(p.DB(), d.Name(), o.Config.Database.Database)
	if err := l.AcquireOrFail(ctx); err != nil {
		return noop, fmt.Errorf("another gofkdump run holds %s: %w", l.LockName(), err)
	}
	o.Logger.Debugw("Run lock acquired", "lock", l.LockName())

	return func() {
		if _, err := l.ReleaseLock(context.Background()); err != nil {
			o.Logger.Warnw("Failed to release run lock", "lock", l.LockName(), "error", err)
		}
	}, nil
}

// counter is a table -> int64 map shared by the executors of a run.
type counter struct {
	mu sync.Mutex
	m  map[string]int64
}

func newCounter() *counter {
	return &counter{m: make(map[string]int64)}
}

func (c *counter) set(table string, n int64) {
	c.mu.Lock()
	c.m[table] = n
	c.mu.Unlock()
}

func (c *counter) snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}
