package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/report"
	"github.com/dbsmedya/gofkdump/internal/strategy"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the restore plan of a backup",
	Long: `Plan reads metadata.json from a backup directory and displays how a
restore would proceed. No database connection is made.

The plan shows:
  - Every table with the dependency chains that lead to it
  - Independent tables (no foreign keys)
  - Topological order, or the cycle that prevents one

The backup directory comes from --backup-dir, or from the configuration file
when the flag is not given.

Example:
  gofkdump plan --backup-dir ./backup`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	dir, err := planDir()
	if err != nil {
		return err
	}

	meta, plan, err := strategy.LoadPlan(dir)
	if err != nil {
		return fmt.Errorf("failed to load plan from %s: %w", dir, err)
	}

	report.New(outputWriter).Plan(meta, plan)
	return nil
}

// planDir returns the backup directory to read the plan from.
func planDir() (string, error) {
	if o := GetCLIOverrides(); o.BackupDir != "" {
		return o.BackupDir, nil
	}
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Backup.Dir, nil
}
