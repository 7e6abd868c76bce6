// Package sqlutil renders identifiers and values as SQL text for the dump
// scripts written by gofkdump.
package sqlutil

import (
	"strings"

	"github.com/dbsmedya/gofkdump/internal/config"
)

// QuoteIdentifier quotes an identifier (table name, column name) for dialect.
// MySQL uses backticks and PostgreSQL double quotes; an embedded quote
// character is escaped by doubling it.
// Example: ("mysql", "my`table") -> "`my``table`"
// Example: ("postgres", `my"table`) -> `"my""table"`
func QuoteIdentifier(dialect, name string) string {
	q := quoteChar(dialect)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// QuoteQualified quotes a possibly schema-qualified name part by part, so
// "public.users" becomes "public"."users" under PostgreSQL.
func QuoteQualified(dialect, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = QuoteIdentifier(dialect, p)
	}
	return strings.Join(parts, ".")
}

// QuoteIdentifiers quotes every name and joins them with ", ".
func QuoteIdentifiers(dialect string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdentifier(dialect, n)
	}
	return strings.Join(quoted, ", ")
}

func quoteChar(dialect string) string {
	if dialect == config.DialectPostgres {
		return `"`
	}
	return "`"
}
