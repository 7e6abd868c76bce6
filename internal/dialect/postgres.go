package dialect

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
	"github.com/dbsmedya/gofkdump/internal/sqlutil"
)

const postgresTablesQuery = `
SELECT t.table_name, ccu.table_name
FROM information_schema.tables t
LEFT JOIN information_schema.table_constraints tc
	ON tc.table_schema = t.table_schema
	AND tc.table_name = t.table_name
	AND tc.constraint_type = 'FOREIGN KEY'
LEFT JOIN information_schema.constraint_column_usage ccu
	ON ccu.constraint_schema = tc.constraint_schema
	AND ccu.constraint_name = tc.constraint_name
WHERE t.table_schema = $1 AND t.table_type = 'BASE TABLE'
ORDER BY t.table_name, ccu.table_name`

// DefaultSchema is used when the configuration names none.
const DefaultSchema = "public"

// CommandRunner runs an external program with extra environment entries,
// streaming its standard output to stdout.
type CommandRunner func(ctx context.Context, env []string, name string, args []string, stdout io.Writer) error

// Postgres implements Dialect for PostgreSQL through the pgx stdlib driver.
// Table definitions come from pg_dump, which must be on PATH.
type Postgres struct {
	db     *sql.DB
	cfg    *config.DatabaseConfig
	schema string
	logger *logger.Logger
	run    CommandRunner
}

// NewPostgres wraps an open connection pool described by cfg.
func NewPostgres(db *sql.DB, cfg *config.DatabaseConfig, log *logger.Logger) *Postgres {
	if log == nil {
		log = logger.NewDefault()
	}
	schema := cfg.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	return &Postgres{db: db, cfg: cfg, schema: schema, logger: log, run: execCommand}
}

// WithRunner replaces the command runner used for pg_dump.
func (p *Postgres) WithRunner(run CommandRunner) *Postgres {
	p.run = run
	return p
}

// Name returns "postgres".
func (p *Postgres) Name() string {
	return config.DialectPostgres
}

// Tables reads foreign keys of the configured schema from
// information_schema.table_constraints and constraint_column_usage.
func (p *Postgres) Tables(ctx context.Context) ([]graph.Table, error) {
	rows, err := p.db.QueryContext(ctx, postgresTablesQuery, p.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query table metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables, err := collectTables(rows)
	if err != nil {
		return nil, err
	}
	p.logger.Debugw("Read table metadata", "database", p.cfg.Database, "schema", p.schema, "tables", len(tables))
	return tables, nil
}

// qualified returns the quoted schema-qualified name of table.
func (p *Postgres) qualified(table string) string {
	return sqlutil.QuoteIdentifier(config.DialectPostgres, p.schema) + "." +
		sqlutil.QuoteIdentifier(config.DialectPostgres, table)
}

// SchemaDumpArgs returns the pg_dump arguments printing the definition of table.
func (p *Postgres) SchemaDumpArgs(table string) []string {
	args := []string{}
	if p.cfg.Host != "" {
		args = append(args, "-h", p.cfg.Host)
	}
	if p.cfg.Port > 0 {
		args = append(args, "-p", strconv.Itoa(p.cfg.Port))
	}
	if p.cfg.User != "" {
		args = append(args, "-U", p.cfg.User)
	}
	return append(args,
		"-d", p.cfg.Database,
		"--no-password",
		"--schema-only",
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		"--no-tablespaces",
		"--quote-all-identifiers",
		"-t", p.qualified(table),
	)
}

// WriteSchema writes the pg_dump definition of table. psql meta-commands are
// dropped since the script is replayed through the driver.
func (p *Postgres) WriteSchema(ctx context.Context, table string, w io.Writer) error {
	var out bytes.Buffer
	var env []string
	if p.cfg.Password != "" {
		env = append(env, "PGPASSWORD="+p.cfg.Password)
	}

	if err := p.run(ctx, env, "pg_dump", p.SchemaDumpArgs(table), &out); err != nil {
		return fmt.Errorf("failed to dump definition of %s: %w", table, err)
	}

	bw := bufio.NewWriter(w)
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "\\") {
			continue
		}
		_, _ = bw.WriteString(line)
		_ = bw.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read definition of %s: %w", table, err)
	}
	_, _ = bw.WriteString("\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write definition of %s: %w", table, err)
	}
	return nil
}

// WriteRowInserts writes one INSERT per row of table matching filter.
func (p *Postgres) WriteRowInserts(ctx context.Context, table, filter string, w io.Writer) (int64, error) {
	target := p.schema + "." + table
	return writeInserts(ctx, p.db, config.DialectPostgres, target, rowQuery(p.qualified(table), filter), w)
}

// Restore drops table with CASCADE and replays script in one transaction.
func (p *Postgres) Restore(ctx context.Context, table string, script []byte) error {
	return replay(ctx, p.db, table,
		"DROP TABLE IF EXISTS "+p.qualified(table)+" CASCADE",
		string(script),
	)
}

// DB returns the underlying connection pool.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func execCommand(ctx context.Context, env []string, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
