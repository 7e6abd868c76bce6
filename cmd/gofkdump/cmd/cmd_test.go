package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/dialect"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
)

// fakeDB is an in-memory database shared by every session the opener hands out.
type fakeDB struct {
	mu       sync.Mutex
	tables   []graph.Table
	failOn   string
	restored []string
}

func (f *fakeDB) opener() dialect.Opener {
	return func(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (dialect.Dialect, error) {
		return &fakeSession{db: f}, nil
	}
}

type fakeSession struct {
	db *fakeDB
}

func (s *fakeSession) Name() string { return config.DialectMySQL }

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) Tables(ctx context.Context) ([]graph.Table, error) {
	return s.db.tables, nil
}

func (s *fakeSession) WriteSchema(ctx context.Context, table string, w io.Writer) error {
	_, err := fmt.Fprintf(w, "CREATE TABLE %s (id INT);\n", table)
	return err
}

func (s *fakeSession) WriteRowInserts(ctx context.Context, table, filter string, w io.Writer) (int64, error) {
	if table == s.db.failOn {
		return 0, fmt.Errorf("read %s: connection reset", table)
	}
	_, err := fmt.Fprintf(w, "INSERT INTO %s VALUES (1);\n", table)
	return 1, err
}

func (s *fakeSession) Restore(ctx context.Context, table string, script []byte) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.restored = append(s.db.restored, table)
	return nil
}

const testConfigYAML = `
database:
  dialect: mysql
  host: localhost
  port: 3306
  user: backup
  password: secret
  database: shop
backup:
  dir: %s
  compression: %s
scheduler:
  workers: 2
  poll_min_interval: 1ms
  poll_max_interval: 5ms
  handshake_timeout: 2s
logging:
  level: error
  format: text
  output: stderr
`

// useFakeCLI points the command globals at a config in a temp dir and a fake
// database, restoring everything when the test ends.
func useFakeCLI(t *testing.T, db *fakeDB, compression string) (string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	path := filepath.Join(dir, "gofkdump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfigYAML, backup, compression)), 0o644))

	origCfg, origDir, origWorkers, origOpen := cfgFile, backupDir, workers, openDialect
	t.Cleanup(func() {
		cfgFile, backupDir, workers, openDialect = origCfg, origDir, origWorkers, origOpen
		resetOutputWriter()
	})

	cfgFile = path
	backupDir = ""
	workers = 0
	openDialect = db.opener()

	var buf bytes.Buffer
	setOutputWriter(&buf)
	return backup, &buf
}

func shopTables() []graph.Table {
	return []graph.Table{
		{Name: "customers"},
		{Name: "orders", ForeignKeys: []string{"customers"}},
		{Name: "items", ForeignKeys: []string{"orders", "products"}},
		{Name: "products"},
	}
}

func TestBackupPlanRestore(t *testing.T) {
	for _, compression := range []string{config.CompressionNone, config.CompressionZstd} {
		t.Run(compression, func(t *testing.T) {
			db := &fakeDB{tables: shopTables()}
			backup, out := useFakeCLI(t, db, compression)

			require.NoError(t, runBackup(backupCmd, nil))
			summary := color.ClearCode(out.String())
			assert.Contains(t, summary, "Backup Summary: shop")
			assert.Contains(t, summary, "Backed up:  4")
			assert.FileExists(t, filepath.Join(backup, "metadata.json"))

			out.Reset()
			require.NoError(t, runPlan(planCmd, nil))
			plan := color.ClearCode(out.String())
			assert.Contains(t, plan, "Restore Plan: shop")
			assert.Contains(t, plan, "customers -> orders -> items")

			out.Reset()
			require.NoError(t, runRestore(restoreCmd, nil))
			assert.Contains(t, color.ClearCode(out.String()), "Restored:  4")
			assert.FileExists(t, filepath.Join(backup, "plan.json"))

			require.Len(t, db.restored, 4)
			pos := make(map[string]int)
			for i, table := range db.restored {
				pos[table] = i
			}
			assert.Less(t, pos["customers"], pos["orders"])
			assert.Less(t, pos["orders"], pos["items"])
			assert.Less(t, pos["products"], pos["items"])
		})
	}
}

func TestBackupReportsFailedTables(t *testing.T) {
	db := &fakeDB{tables: shopTables(), failOn: "orders"}
	_, out := useFakeCLI(t, db, config.CompressionNone)

	err := runBackup(backupCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup completed with errors")
	assert.Contains(t, err.Error(), "orders")
	assert.Contains(t, color.ClearCode(out.String()), "✗ orders: read orders: connection reset")
}

func TestBackupRejectsCycle(t *testing.T) {
	db := &fakeDB{tables: []graph.Table{
		{Name: "a", ForeignKeys: []string{"b"}},
		{Name: "b", ForeignKeys: []string{"a"}},
	}}
	_, out := useFakeCLI(t, db, config.CompressionNone)

	err := runBackup(backupCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrCycleDetected)
	assert.Contains(t, color.ClearCode(out.String()), "run aborted")
}

func TestRestoreWithoutBackup(t *testing.T) {
	db := &fakeDB{tables: shopTables()}
	useFakeCLI(t, db, config.CompressionNone)

	err := runRestore(restoreCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore failed")
	assert.Empty(t, db.restored)
}

func TestPlanUsesBackupDirFlag(t *testing.T) {
	db := &fakeDB{tables: shopTables()}
	backup, out := useFakeCLI(t, db, config.CompressionNone)
	require.NoError(t, runBackup(backupCmd, nil))

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	backupDir = backup
	out.Reset()

	require.NoError(t, runPlan(planCmd, nil))
	assert.Contains(t, color.ClearCode(out.String()), "[Topological Order]")
}

func TestPlanWithoutMetadata(t *testing.T) {
	useFakeCLI(t, &fakeDB{}, config.CompressionNone)
	backupDir = t.TempDir()

	err := runPlan(planCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load plan")
}

func TestCommandsRejectMissingConfig(t *testing.T) {
	useFakeCLI(t, &fakeDB{}, config.CompressionNone)
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")

	for name, run := range map[string]func() error{
		"backup":   func() error { return runBackup(backupCmd, nil) },
		"restore":  func() error { return runRestore(restoreCmd, nil) },
		"plan":     func() error { return runPlan(planCmd, nil) },
		"validate": func() error { return runValidate(validateCmd, nil) },
	} {
		t.Run(name, func(t *testing.T) {
			err := run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to load config")
		})
	}
}

func TestCommandsRejectInvalidConfig(t *testing.T) {
	useFakeCLI(t, &fakeDB{}, "lz4")

	err := runBackup(backupCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "backup.compression")
}
