package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gofkdump/internal/strategy"
)

var restoreForce bool

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a backup directory into the configured database",
	Long: `Restore reads metadata.json from the backup directory, builds the
execution plan, and replays every table script on a pool of workers. A table
is restored only after every table it references is done.

The plan is written to plan.json next to the metadata. Tables that fail are
listed in the summary and make the command exit non-zero.

Example:
  gofkdump restore --config gofkdump.yaml --backup-dir ./backup --workers 8`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreForce, "force", false,
		"Run even if another run holds the database lock (use with caution)")

	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	log = log.WithFields(map[string]interface{}{
		"database": cfg.Database.Database,
		"dialect":  cfg.Database.Dialect,
	})
	log.Infow("Starting restore operation", "config", GetConfigFile(), "dir", cfg.Backup.Dir)

	r, err := strategy.NewRestore(strategyOptions(cfg, log, restoreForce))
	if err != nil {
		return fmt.Errorf("failed to create restore: %w", err)
	}
	return execute(r, strategy.ModeRestore, log)
}
