package export

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// Dialect identifies a SQL flavor by its database/sql driver name.
type Dialect string

// Supported dialects.
const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// Dialects lists the supported dialects.
var Dialects = []Dialect{SQLite, Postgres, MySQL}

// NormalizeDriver maps common aliases to canonical driver names.
func NormalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "postgresql", "pg", "postgres":
		return string(Postgres)
	case "mysql", "mariadb":
		return string(MySQL)
	case "sqlite", "sqlite3":
		return string(SQLite)
	default:
		return strings.ToLower(strings.TrimSpace(d))
	}
}

// ParseDialect normalizes d and rejects unsupported drivers.
func ParseDialect(d string) (Dialect, error) {
	n := Dialect(NormalizeDriver(d))
	for _, known := range Dialects {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q (available: %v)", ErrUnsupportedDriver, d, Dialects)
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Placeholder returns the bind marker for the n-th (1-based) parameter.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ColumnType maps a column type to the dialect's SQL type. keyed reports
// whether the column is part of a key or unique constraint, which MySQL
// cannot index as TEXT.
func (d Dialect) ColumnType(colType string, keyed bool) string {
	switch d {
	case Postgres:
		switch colType {
		case types.TypeInteger:
			return "BIGINT"
		case types.TypeReal:
			return "DOUBLE PRECISION"
		case types.TypeBoolean:
			return "BOOLEAN"
		case types.TypeTimestamp:
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	case MySQL:
		switch colType {
		case types.TypeInteger:
			return "BIGINT"
		case types.TypeReal:
			return "DOUBLE"
		case types.TypeBoolean:
			return "BOOLEAN"
		case types.TypeTimestamp:
			return "DATETIME(6)"
		}
		if keyed {
			return "VARCHAR(255)"
		}
		return "TEXT"
	default:
		switch colType {
		case types.TypeInteger, types.TypeBoolean:
			return "INTEGER"
		case types.TypeReal:
			return "REAL"
		}
		return "TEXT"
	}
}
