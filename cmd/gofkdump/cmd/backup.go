package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gofkdump/internal/strategy"
)

var backupForce bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up every table of the configured database",
	Long: `Backup reads the foreign keys of the configured database, orders its
tables so that referenced tables come first, and writes one SQL script per
table into the backup directory.

The backup directory contains:
  - metadata.json (dependency map and its transpose)
  - files/<table>.sql (or .sql.zst with zstd compression)

A dependency cycle aborts the backup before any table is dumped.

Example:
  gofkdump backup --config gofkdump.yaml --backup-dir ./backup`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&backupForce, "force", false,
		"Run even if another run holds the database lock (use with caution)")

	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	log = log.WithFields(map[string]interface{}{
		"database": cfg.Database.Database,
		"dialect":  cfg.Database.Dialect,
	})
	log.Infow("Starting backup operation", "config", GetConfigFile(), "dir", cfg.Backup.Dir)

	b, err := strategy.NewBackup(strategyOptions(cfg, log, backupForce))
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return execute(b, strategy.ModeBackup, log)
}
