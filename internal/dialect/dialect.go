// Package dialect implements the per-engine operations gofkdump needs from a
// database: reading the foreign-key metadata, rendering a table as a SQL
// script, and replaying such a script.
package dialect

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/database"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
	"github.com/dbsmedya/gofkdump/internal/sqlutil"
)

// MetadataProvider lists the tables of a database with the tables each one
// references through foreign keys.
type MetadataProvider interface {
	Tables(ctx context.Context) ([]graph.Table, error)
}

// SchemaWriter renders a table as SQL: its definition, then one INSERT per
// row. filter is appended to the row query verbatim (e.g. "WHERE id > 10").
type SchemaWriter interface {
	WriteSchema(ctx context.Context, table string, w io.Writer) error
	WriteRowInserts(ctx context.Context, table, filter string, w io.Writer) (int64, error)
}

// RowReplayer recreates a table from a script written by a SchemaWriter.
type RowReplayer interface {
	Restore(ctx context.Context, table string, script []byte) error
}

// Dialect bundles the operations of one engine over one connection pool.
type Dialect interface {
	MetadataProvider
	SchemaWriter
	RowReplayer
	Name() string
	Close() error
}

// Opener opens a Dialect for a database configuration. Backup and restore
// take one so tests can substitute a fake engine.
type Opener func(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (Dialect, error)

// Open connects to the configured database and returns its dialect.
func Open(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (Dialect, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	if _, err := database.DriverName(cfg.Dialect); err != nil {
		return nil, err
	}

	mgr := database.NewManager(cfg, log)
	if err := mgr.Connect(ctx); err != nil {
		return nil, err
	}

	return New(mgr.DB, cfg, log), nil
}

// New wraps an already open pool in the dialect named by cfg.
func New(db *sql.DB, cfg *config.DatabaseConfig, log *logger.Logger) Dialect {
	if cfg.Dialect == config.DialectPostgres {
		return NewPostgres(db, cfg, log)
	}
	return NewMySQL(db, cfg.Database, log)
}

// collectTables folds (table, referenced table) rows into graph tables,
// keeping the row order. A NULL reference is a table without foreign keys.
func collectTables(rows *sql.Rows) ([]graph.Table, error) {
	var tables []graph.Table
	index := make(map[string]int)

	for rows.Next() {
		var name string
		var ref sql.NullString
		if err := rows.Scan(&name, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan table metadata: %w", err)
		}

		i, ok := index[name]
		if !ok {
			i = len(tables)
			index[name] = i
			tables = append(tables, graph.Table{Name: name})
		}
		if ref.Valid && ref.String != "" {
			tables[i].ForeignKeys = append(tables[i].ForeignKeys, ref.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table metadata: %w", err)
	}
	return tables, nil
}

// writeInserts runs query and writes every row as an INSERT into target.
func writeInserts(ctx context.Context, db *sql.DB, dialect, target, query string, w io.Writer) (int64, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to select rows of %s: %w", target, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("failed to read columns of %s: %w", target, err)
	}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	bw := bufio.NewWriter(w)
	var count int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, fmt.Errorf("failed to scan row of %s: %w", target, err)
		}
		if _, err := bw.WriteString(sqlutil.InsertStatement(dialect, target, columns, values)); err != nil {
			return count, fmt.Errorf("failed to write row of %s: %w", target, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("failed to read rows of %s: %w", target, err)
	}
	if err := bw.Flush(); err != nil {
		return count, fmt.Errorf("failed to write rows of %s: %w", target, err)
	}
	return count, nil
}

// rowQuery builds the SELECT used for a table dump.
func rowQuery(quotedTable, filter string) string {
	q := "SELECT * FROM " + quotedTable
	if filter != "" {
		q += " " + filter
	}
	return q
}

// replay runs stmts in order inside one transaction.
func replay(ctx context.Context, db *sql.DB, table string, stmts ...string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin restore of %s: %w", table, err)
	}

	for _, stmt := range stmts {
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to restore %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore of %s: %w", table, err)
	}
	return nil
}
