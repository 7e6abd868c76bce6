package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
	"github.com/dbsmedya/gofkdump/internal/sqlutil"
)

const mysqlTablesQuery = `
SELECT t.TABLE_NAME, k.REFERENCED_TABLE_NAME
FROM information_schema.TABLES t
LEFT JOIN information_schema.KEY_COLUMN_USAGE k
	ON k.TABLE_SCHEMA = t.TABLE_SCHEMA
	AND k.TABLE_NAME = t.TABLE_NAME
	AND k.REFERENCED_TABLE_SCHEMA = t.TABLE_SCHEMA
	AND k.REFERENCED_TABLE_NAME IS NOT NULL
WHERE t.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
ORDER BY t.TABLE_NAME, k.REFERENCED_TABLE_NAME`

// MySQL implements Dialect for MySQL and MariaDB. Scripts are replayed with a
// single Exec, which needs multiStatements=true in the DSN.
type MySQL struct {
	db       *sql.DB
	database string
	logger   *logger.Logger
}

// NewMySQL wraps an open connection pool to database.
func NewMySQL(db *sql.DB, database string, log *logger.Logger) *MySQL {
	if log == nil {
		log = logger.NewDefault()
	}
	return &MySQL{db: db, database: database, logger: log}
}

// Name returns "mysql".
func (m *MySQL) Name() string {
	return config.DialectMySQL
}

// Tables reads foreign keys from information_schema.KEY_COLUMN_USAGE.
// References to tables in other schemas are ignored.
func (m *MySQL) Tables(ctx context.Context) ([]graph.Table, error) {
	rows, err := m.db.QueryContext(ctx, mysqlTablesQuery, m.database)
	if err != nil {
		return nil, fmt.Errorf("failed to query table metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables, err := collectTables(rows)
	if err != nil {
		return nil, err
	}
	m.logger.Debugw("Read table metadata", "database", m.database, "tables", len(tables))
	return tables, nil
}

// WriteSchema writes the SHOW CREATE TABLE output of table.
func (m *MySQL) WriteSchema(ctx context.Context, table string, w io.Writer) error {
	var name, ddl string
	query := "SHOW CREATE TABLE " + sqlutil.QuoteIdentifier(config.DialectMySQL, table)
	if err := m.db.QueryRowContext(ctx, query).Scan(&name, &ddl); err != nil {
		return fmt.Errorf("failed to read definition of %s: %w", table, err)
	}

	if _, err := fmt.Fprintf(w, "%s;\n\n", ddl); err != nil {
		return fmt.Errorf("failed to write definition of %s: %w", table, err)
	}
	return nil
}

// WriteRowInserts writes one INSERT per row of table matching filter.
func (m *MySQL) WriteRowInserts(ctx context.Context, table, filter string, w io.Writer) (int64, error) {
	quoted := sqlutil.QuoteIdentifier(config.DialectMySQL, table)
	return writeInserts(ctx, m.db, config.DialectMySQL, table, rowQuery(quoted, filter), w)
}

// Restore drops table and replays script with foreign key checks disabled
// for the session.
func (m *MySQL) Restore(ctx context.Context, table string, script []byte) error {
	quoted := sqlutil.QuoteIdentifier(config.DialectMySQL, table)
	return replay(ctx, m.db, table,
		"SET FOREIGN_KEY_CHECKS = 0",
		"DROP TABLE IF EXISTS "+quoted,
		string(script),
		"SET FOREIGN_KEY_CHECKS = 1",
	)
}

// DB returns the underlying connection pool.
func (m *MySQL) DB() *sql.DB {
	return m.db
}

// Close closes the connection pool.
func (m *MySQL) Close() error {
	return m.db.Close()
}
