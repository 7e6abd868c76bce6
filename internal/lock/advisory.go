// Package lock provides database advisory locking so that only one gofkdump
// run touches a given database at a time.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dbsmedya/gofkdump/internal/config"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another instance is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if lock cannot be acquired (no wait).
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate run detection.
	TimeoutShort = 1

	// TimeoutMedium provides a reasonable wait for transient conflicts.
	TimeoutMedium = 10
)

// pgPollInterval is how often PostgreSQL acquisition retries
// pg_try_advisory_lock while waiting.
const pgPollInterval = 100 * time.Millisecond

// AdvisoryLock is a named session-level lock. MySQL uses GET_LOCK and
// PostgreSQL pg_try_advisory_lock keyed by hashtext(name). Both are bound to
// the session that took them, so the lock pins one connection from the pool
// for as long as it is held.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	dialect  string
	lockName string
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(db *sql.DB, dialect, lockName string) *AdvisoryLock {
	if dialect == "" {
		dialect = config.DialectMySQL
	}
	return &AdvisoryLock{
		db:       db,
		dialect:  dialect,
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the advisory lock, waiting up to
// timeoutSeconds. Returns true if the lock was acquired, false if another
// session holds it. Returns an error if the database query fails.
//
// MySQL GET_LOCK() return values:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}
	if a.db == nil {
		return false, fmt.Errorf("advisory lock %q has no database connection", a.lockName)
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to pin connection for lock %q: %w", a.lockName, err)
	}

	var acquired bool
	if a.dialect == config.DialectPostgres {
		acquired, err = a.acquirePostgres(ctx, conn, timeoutSeconds)
	} else {
		acquired, err = a.acquireMySQL(ctx, conn, timeoutSeconds)
	}
	if err != nil || !acquired {
		_ = conn.Close()
		return false, err
	}

	a.conn = conn
	a.held = true
	return true, nil
}

func (a *AdvisoryLock) acquireMySQL(ctx context.Context, conn *sql.Conn, timeoutSeconds int) (bool, error) {
	var result sql.NullInt64
	err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// acquirePostgres polls pg_try_advisory_lock until it succeeds or the
// timeout passes, since pg_advisory_lock itself has no timeout argument.
func (a *AdvisoryLock) acquirePostgres(ctx context.Context, conn *sql.Conn, timeoutSeconds int) (bool, error) {
	try := func() (bool, error) {
		var ok sql.NullBool
		err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", a.lockName).Scan(&ok)
		if err != nil {
			return false, fmt.Errorf("failed to execute pg_try_advisory_lock: %w", err)
		}
		return ok.Valid && ok.Bool, nil
	}

	if timeoutSeconds <= 0 {
		return try()
	}

	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	b := backoff.WithContext(backoff.NewConstantBackOff(pgPollInterval), ctx)
	acquired := false
	err := backoff.Retry(func() error {
		ok, err := try()
		if err != nil {
			return backoff.Permanent(err)
		}
		if ok {
			acquired = true
			return nil
		}
		if time.Now().After(deadline) {
			return backoff.Permanent(errLockBusy)
		}
		return errLockBusy
	}, b)

	if errors.Is(err, errLockBusy) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acquired, nil
}

var errLockBusy = errors.New("lock busy")

// ReleaseLock releases the advisory lock and returns its pinned connection
// to the pool. Returns true if the server reported the lock as released.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}

	query := "SELECT RELEASE_LOCK(?)"
	if a.dialect == config.DialectPostgres {
		query = "SELECT pg_advisory_unlock(hashtext($1))"
	}

	var released bool
	var err error
	if a.dialect == config.DialectPostgres {
		var result sql.NullBool
		err = a.conn.QueryRowContext(ctx, query, a.lockName).Scan(&result)
		released = result.Valid && result.Bool
	} else {
		var result sql.NullInt64
		err = a.conn.QueryRowContext(ctx, query, a.lockName).Scan(&result)
		released = result.Valid && result.Int64 == 1
	}

	// The session ends with the connection, which drops the lock either way.
	closeErr := a.conn.Close()
	a.conn = nil
	a.held = false

	if err != nil {
		return false, fmt.Errorf("failed to release lock %q: %w", a.lockName, err)
	}
	if closeErr != nil {
		return released, fmt.Errorf("failed to close lock connection: %w", closeErr)
	}
	return released, nil
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// TryAcquire attempts to acquire the lock immediately without waiting.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail attempts to acquire the lock with a short timeout.
// Returns ErrLockTimeout if another instance is holding the lock.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// GenerateRunLockName creates the lock name guarding runs against a database.
// Lock names follow the format: "gofkdump:run:{database}"
//
// Example: GenerateRunLockName("shop") -> "gofkdump:run:shop"
func GenerateRunLockName(database string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, database)

	name := "gofkdump:run:" + sanitized
	// MySQL rejects lock names longer than 64 characters
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// NewRunLock creates the advisory lock for runs against database.
//
// Example:
//
//	l := lock.NewRunLock(db, cfg.Database.Dialect, cfg.Database.Database)
//	if err := l.AcquireOrFail(ctx); err != nil {
//	    return err
//	}
//	defer l.ReleaseLock(context.Background())
func NewRunLock(db *sql.DB, dialect, database string) *AdvisoryLock {
	return NewAdvisoryLock(db, dialect, GenerateRunLockName(database))
}

// WithLock executes fn while holding the lock and releases it afterwards,
// even if fn panics. The release uses its own short-lived context so a
// cancelled run still unlocks.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}
