package sqlutil

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dbsmedya/gofkdump/internal/config"
)

const timestampLayout = "2006-01-02 15:04:05.999999"

var mysqlEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"'", "\\'",
	"\"", "\\\"",
	"\x00", "\\0",
	"\n", "\\n",
	"\r", "\\r",
	"\x1a", "\\Z",
)

// QuoteString renders s as a string literal for dialect. PostgreSQL literals
// assume standard_conforming_strings, so only the quote is doubled.
func QuoteString(dialect, s string) string {
	if dialect == config.DialectPostgres {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return "'" + mysqlEscaper.Replace(s) + "'"
}

// FormatValue renders one scanned column value as a SQL literal. Byte slices
// holding valid UTF-8 are written as strings, anything else as a hex blob.
func FormatValue(dialect string, v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		if utf8.Valid(val) {
			return QuoteString(dialect, string(val))
		}
		return formatBlob(dialect, val)
	case string:
		return QuoteString(dialect, val)
	case bool:
		if dialect == config.DialectPostgres {
			return strconv.FormatBool(val)
		}
		if val {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case time.Time:
		return "'" + val.Format(timestampLayout) + "'"
	case fmt.Stringer:
		return QuoteString(dialect, val.String())
	default:
		return QuoteString(dialect, fmt.Sprintf("%v", val))
	}
}

func formatBlob(dialect string, b []byte) string {
	if dialect == config.DialectPostgres {
		return "'\\x" + hex.EncodeToString(b) + "'::bytea"
	}
	return "X'" + hex.EncodeToString(b) + "'"
}

// InsertStatement renders a single-row INSERT terminated by ";\n".
func InsertStatement(dialect, table string, columns []string, values []interface{}) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(QuoteQualified(dialect, table))
	sb.WriteString(" (")
	sb.WriteString(QuoteIdentifiers(dialect, columns))
	sb.WriteString(") VALUES (")
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(FormatValue(dialect, v))
	}
	sb.WriteString(");\n")
	return sb.String()
}
