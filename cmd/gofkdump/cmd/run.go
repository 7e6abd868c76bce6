package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/database"
	"github.com/dbsmedya/gofkdump/internal/dialect"
	"github.com/dbsmedya/gofkdump/internal/lock"
	"github.com/dbsmedya/gofkdump/internal/logger"
	"github.com/dbsmedya/gofkdump/internal/report"
	"github.com/dbsmedya/gofkdump/internal/strategy"
)

// openDialect opens database connections for backup and restore; tests
// replace it.
var openDialect dialect.Opener = dialect.Open

// runner is implemented by strategy.Backup and strategy.Restore.
type runner interface {
	Run(ctx context.Context) (*strategy.Outcome, error)
}

func strategyOptions(cfg *config.Config, log *logger.Logger, force bool) strategy.Options {
	return strategy.Options{
		Config: cfg,
		Logger: log,
		Open:   openDialect,
		Force:  force,
	}
}

// execute runs r until it finishes or the process is interrupted, prints the
// summary, and fails when any table failed.
func execute(r runner, mode string, log *logger.Logger) error {
	defer func() { _ = log.Sync() }()

	ctx := database.SetupSignalHandlerWithCallback(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - stopping workers...", "signal", sig.String())
	})

	outcome, err := r.Run(ctx)
	if outcome != nil {
		report.New(outputWriter).Summary(outcome)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("%s cancelled by user", mode)
			return fmt.Errorf("%s cancelled", mode)
		}
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("%w (use --force to override)", err)
		}
		return fmt.Errorf("%s failed: %w", mode, err)
	}

	if outcome == nil || outcome.Result == nil {
		return nil
	}
	if err := outcome.Result.Err(); err != nil {
		return fmt.Errorf("%s completed with errors: %w", mode, err)
	}
	return nil
}
