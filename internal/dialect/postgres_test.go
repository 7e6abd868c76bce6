package dialect

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
)

func pgConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Dialect:  config.DialectPostgres,
		Host:     "db.internal",
		Port:     5432,
		User:     "backup",
		Password: "secret",
		Database: "shop",
	}
}

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db, pgConfig(), logger.NewNop()), mock
}

func TestPostgresTables(t *testing.T) {
	p, mock := newMockPostgres(t)

	rows := sqlmock.NewRows([]string{"table_name", "table_name"}).
		AddRow("categories", "categories").
		AddRow("orders", "users").
		AddRow("orders", "users").
		AddRow("users", nil)
	mock.ExpectQuery(regexp.QuoteMeta("information_schema.constraint_column_usage")).
		WithArgs(DefaultSchema).WillReturnRows(rows)

	tables, err := p.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []graph.Table{
		{Name: "categories", ForeignKeys: []string{"categories"}},
		{Name: "orders", ForeignKeys: []string{"users", "users"}},
		{Name: "users"},
	}, tables)

	// Self references and duplicate references collapse in the graph
	g := graph.Build(tables)
	assert.Empty(t, g.Dependencies("categories"))
	assert.Equal(t, []string{"users"}, g.Dependencies("orders"))
	assert.Equal(t, config.DialectPostgres, p.Name())
}

func TestPostgresSchemaDumpArgs(t *testing.T) {
	p, _ := newMockPostgres(t)
	assert.Equal(t, []string{
		"-h", "db.internal", "-p", "5432", "-U", "backup",
		"-d", "shop", "--no-password", "--schema-only", "--format=plain",
		"--no-owner", "--no-privileges", "--no-tablespaces", "--quote-all-identifiers",
		"-t", `"public"."orders"`,
	}, p.SchemaDumpArgs("orders"))
}

func TestPostgresWriteSchema(t *testing.T) {
	p, _ := newMockPostgres(t)

	var gotEnv []string
	var gotName string
	p.WithRunner(func(ctx context.Context, env []string, name string, args []string, stdout io.Writer) error {
		gotEnv = env
		gotName = name
		_, err := io.WriteString(stdout, "\\restrict abc\nSET statement_timeout = 0;\nCREATE TABLE \"public\".\"users\" (\"id\" integer);\n\\unrestrict abc\n")
		return err
	})

	var buf bytes.Buffer
	require.NoError(t, p.WriteSchema(context.Background(), "users", &buf))
	assert.Equal(t, "pg_dump", gotName)
	assert.Equal(t, []string{"PGPASSWORD=secret"}, gotEnv)
	assert.Equal(t, "SET statement_timeout = 0;\nCREATE TABLE \"public\".\"users\" (\"id\" integer);\n\n", buf.String())
}

func TestPostgresWriteSchemaCommandFails(t *testing.T) {
	p, _ := newMockPostgres(t)
	p.WithRunner(func(ctx context.Context, env []string, name string, args []string, stdout io.Writer) error {
		return errors.New("pg_dump: error: no matching tables were found")
	})

	err := p.WriteSchema(context.Background(), "ghost", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching tables")
}

func TestPostgresWriteRowInserts(t *testing.T) {
	p, mock := newMockPostgres(t)
	rows := sqlmock.NewRows([]string{"id", "paid", "memo"}).
		AddRow(int64(7), true, "it's").
		AddRow(int64(8), false, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."orders" LIMIT 10`)).WillReturnRows(rows)

	var buf bytes.Buffer
	n, err := p.WriteRowInserts(context.Background(), "orders", "LIMIT 10", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t,
		`INSERT INTO "public"."orders" ("id", "paid", "memo") VALUES (7, true, 'it''s');`+"\n"+
			`INSERT INTO "public"."orders" ("id", "paid", "memo") VALUES (8, false, NULL);`+"\n",
		buf.String())
}

func TestPostgresWriteRowInsertsScanError(t *testing.T) {
	p, mock := newMockPostgres(t)
	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).RowError(0, errors.New("connection lost"))
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err := p.WriteRowInserts(context.Background(), "orders", "", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
}

func TestPostgresRestore(t *testing.T) {
	p, mock := newMockPostgres(t)
	script := `INSERT INTO "public"."users" ("id") VALUES (1);`

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "public"."users" CASCADE`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(script)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.Restore(context.Background(), "users", []byte(script)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCustomSchema(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := pgConfig()
	cfg.Schema = "sales"
	p := NewPostgres(db, cfg, nil)
	assert.Equal(t, `"sales"."orders"`, p.qualified("orders"))
}
