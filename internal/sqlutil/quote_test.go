package sqlutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dbsmedya/gofkdump/internal/config"
)

const (
	my = config.DialectMySQL
	pg = config.DialectPostgres
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		input    string
		expected string
	}{
		{name: "Simple table name", dialect: my, input: "users", expected: "`users`"},
		{name: "Table with underscore", dialect: my, input: "order_items", expected: "`order_items`"},
		{name: "Empty string", dialect: my, input: "", expected: "``"},
		{name: "Single backtick", dialect: my, input: "my`table", expected: "`my``table`"},
		{name: "Only backticks", dialect: my, input: "```", expected: "````````"},
		{name: "Postgres simple", dialect: pg, input: "users", expected: `"users"`},
		{name: "Postgres mixed case", dialect: pg, input: "MyTable", expected: `"MyTable"`},
		{name: "Postgres double quote", dialect: pg, input: `my"table`, expected: `"my""table"`},
		{name: "Postgres keeps backtick", dialect: pg, input: "my`table", expected: "\"my`table\""},
		{name: "Unknown dialect uses backticks", dialect: "", input: "users", expected: "`users`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteIdentifier(tt.dialect, tt.input))
		})
	}
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, `"public"."users"`, QuoteQualified(pg, "public.users"))
	assert.Equal(t, "`shop`.`users`", QuoteQualified(my, "shop.users"))
	assert.Equal(t, "`users`", QuoteQualified(my, "users"))
}

func TestQuoteIdentifiers(t *testing.T) {
	assert.Equal(t, "`id`, `name`", QuoteIdentifiers(my, []string{"id", "name"}))
	assert.Equal(t, "", QuoteIdentifiers(pg, nil))
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		input    string
		expected string
	}{
		{name: "plain", dialect: my, input: "alice", expected: "'alice'"},
		{name: "mysql quote", dialect: my, input: "o'brien", expected: `'o\'brien'`},
		{name: "mysql backslash", dialect: my, input: `C:\tmp`, expected: `'C:\\tmp'`},
		{name: "mysql control chars", dialect: my, input: "a\nb\r\x00\x1a", expected: `'a\nb\r\0\Z'`},
		{name: "postgres quote", dialect: pg, input: "o'brien", expected: "'o''brien'"},
		{name: "postgres backslash untouched", dialect: pg, input: `C:\tmp`, expected: `'C:\tmp'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteString(tt.dialect, tt.input))
		})
	}
}

type label string

func (l label) String() string { return "label:" + string(l) }

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 250000000, time.UTC)

	tests := []struct {
		name     string
		dialect  string
		value    interface{}
		expected string
	}{
		{name: "nil", dialect: my, value: nil, expected: "NULL"},
		{name: "utf8 bytes", dialect: my, value: []byte("héllo"), expected: "'héllo'"},
		{name: "binary mysql", dialect: my, value: []byte{0xff, 0x00, 0x10}, expected: "X'ff0010'"},
		{name: "binary postgres", dialect: pg, value: []byte{0xff, 0x00}, expected: `'\xff00'::bytea`},
		{name: "int64", dialect: my, value: int64(-42), expected: "-42"},
		{name: "int32", dialect: pg, value: int32(7), expected: "7"},
		{name: "uint64", dialect: my, value: uint64(18446744073709551615), expected: "18446744073709551615"},
		{name: "float64", dialect: my, value: 3.25, expected: "3.25"},
		{name: "bool mysql", dialect: my, value: true, expected: "1"},
		{name: "bool postgres", dialect: pg, value: false, expected: "false"},
		{name: "time", dialect: pg, value: ts, expected: "'2024-03-01 12:30:00.25'"},
		{name: "stringer", dialect: my, value: label("x"), expected: "'label:x'"},
		{name: "fallback", dialect: my, value: struct{ A int }{1}, expected: "'{1}'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatValue(tt.dialect, tt.value))
		})
	}
}

func TestInsertStatement(t *testing.T) {
	got := InsertStatement(my, "users", []string{"id", "name", "email"},
		[]interface{}{int64(1), []byte("alice"), nil})
	assert.Equal(t, "INSERT INTO `users` (`id`, `name`, `email`) VALUES (1, 'alice', NULL);\n", got)

	got = InsertStatement(pg, "public.orders", []string{"id", "paid"}, []interface{}{int64(9), true})
	assert.Equal(t, `INSERT INTO "public"."orders" ("id", "paid") VALUES (9, true);`+"\n", got)
}
