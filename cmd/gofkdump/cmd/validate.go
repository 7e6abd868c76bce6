package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gofkdump/internal/database"
	"github.com/dbsmedya/gofkdump/internal/dialect"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/report"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and check the database can be backed up",
	Long: `Validate checks the configuration file and the configured database
before a backup or restore.

Checks performed:
  - Configuration syntax and required fields
  - Database connectivity
  - Foreign key metadata can be read
  - Dependency graph has no cycle

Example:
  gofkdump validate --config gofkdump.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := report.New(outputWriter)

	out.Header("Configuration Validation")
	fmt.Fprintf(outputWriter, "Config file: %s\n\n", GetConfigFile())

	cfg, log, err := setup()
	if err != nil {
		out.Check(false, "%v", err)
		return err
	}
	out.Check(true, "Configuration is valid (%s, database %s)", cfg.Database.Dialect, cfg.Database.Database)

	log.Info("Starting validation checks...")

	ctx := context.Background()
	dbManager := database.NewManager(&cfg.Database, log)
	if err := dbManager.Connect(ctx); err != nil {
		out.Check(false, "Connection failed: %v", err)
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.Ping(ctx); err != nil {
		out.Check(false, "Ping failed: %v", err)
		return fmt.Errorf("database connection failed: %w", err)
	}
	out.Check(true, "Connected to %s:%d", cfg.Database.Host, cfg.Database.Port)

	tables, err := dialect.New(dbManager.DB, &cfg.Database, log).Tables(ctx)
	if err != nil {
		out.Check(false, "Reading foreign keys failed: %v", err)
		return err
	}
	g := graph.Build(tables)
	out.Check(true, "Found %d tables with %d dependencies", g.NodeCount(), g.EdgeCount())

	if err := g.Validate(); err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			out.Check(false, "Cycle detected: %d tables cannot be ordered", len(cycleErr.Info.UnprocessedNodes))
		} else {
			out.Check(false, "Ordering failed: %v", err)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	out.Check(true, "Dependency graph is acyclic")

	fmt.Fprintln(outputWriter)
	fmt.Fprintln(outputWriter, "=== Validation Complete ===")
	return nil
}
