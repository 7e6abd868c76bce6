package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrNoWorkers is returned when no worker is left to run jobs.
	ErrNoWorkers = errors.New("no live workers")

	// ErrWorkerExited is the cause recorded for a job whose worker died while
	// running it. Such jobs are not retried.
	ErrWorkerExited = errors.New("worker exited while processing table")

	// ErrDependencyTimeout is the cause recorded for a table whose
	// dependencies were not all done within the configured timeout.
	ErrDependencyTimeout = errors.New("timed out waiting for dependencies")

	// ErrStore marks processed-state store failures. They abort the run.
	ErrStore = errors.New("state store failure")
)

// TableFailure is one failed table and why.
type TableFailure struct {
	Table string
	Cause error
}

func (f TableFailure) Error() string {
	return fmt.Sprintf("table %s: %v", f.Table, f.Cause)
}

func (f TableFailure) Unwrap() error {
	return f.Cause
}

// RunResult is the outcome of a run. Succeeded is in completion order.
type RunResult struct {
	Succeeded   []string
	Failed      []TableFailure
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

func (r *RunResult) succeed(table string) {
	r.Succeeded = append(r.Succeeded, table)
}

func (r *RunResult) fail(table string, cause error) {
	r.Failed = append(r.Failed, TableFailure{Table: table, Cause: cause})
}

func (r *RunResult) finish() {
	r.CompletedAt = time.Now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
}

// OK reports whether no table failed.
func (r *RunResult) OK() bool {
	return len(r.Failed) == 0
}

// Total returns the number of tables with an outcome.
func (r *RunResult) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// FailedTables returns the names of failed tables in failure order.
func (r *RunResult) FailedTables() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Table)
	}
	return names
}

// Err aggregates every table failure, or returns nil.
func (r *RunResult) Err() error {
	if r.OK() {
		return nil
	}
	var result *multierror.Error
	for _, f := range r.Failed {
		result = multierror.Append(result, f)
	}
	result.ErrorFormat = func(errs []error) string {
		msg := fmt.Sprintf("%d table(s) failed:", len(errs))
		for _, err := range errs {
			msg += "\n\t* " + err.Error()
		}
		return msg
	}
	return result
}

// Summary renders a one-line account of the run.
func (r *RunResult) Summary(verb string) string {
	return fmt.Sprintf("%s %d tables and failed for %d table(s)", verb, len(r.Succeeded), len(r.Failed))
}
