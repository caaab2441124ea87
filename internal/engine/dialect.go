package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect abstracts the differences between supported SQL backends. Queries
// are composed with `?` placeholders and rebound for drivers using numbered
// parameters.
type Dialect interface {
	// Name is the driver keyword, e.g. "sqlite" or "postgres".
	Name() string

	// Embedded reports whether the backend is a local embedded store.
	// Log retention pruning runs opportunistically only on embedded
	// backends.
	Embedded() bool

	// Rebind rewrites `?` placeholders into the driver's notation.
	Rebind(query string) string

	// TypeDecimal is the DDL type used for decimal columns.
	TypeDecimal() string

	// TypeBlob is the DDL type used for unbounded binary columns.
	TypeBlob() string

	// TypeTinyInt is the DDL type used for int-backed bool columns.
	TypeTinyInt() string

	// TableExistsQuery returns a one-parameter query yielding at least
	// one row when the named table exists.
	TableExistsQuery() string

	// ListTablesQuery returns a query yielding the names of all tables,
	// one per row.
	ListTablesQuery() string
}

// DialectFor returns the dialect matching a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "pgx", "postgresql":
		return postgresDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string          { return "sqlite" }
func (sqliteDialect) Embedded() bool        { return true }
func (sqliteDialect) Rebind(q string) string { return q }
func (sqliteDialect) TypeDecimal() string   { return "REAL" }
func (sqliteDialect) TypeBlob() string      { return "BLOB" }
func (sqliteDialect) TypeTinyInt() string   { return "TINYINT" }
func (sqliteDialect) TableExistsQuery() string {
	return "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
}
func (sqliteDialect) ListTablesQuery() string {
	return "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name"
}

type postgresDialect struct{}

func (postgresDialect) Name() string   { return "postgres" }
func (postgresDialect) Embedded() bool { return false }

func (postgresDialect) Rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteByte(q[i])
		}
	}
	return b.String()
}

func (postgresDialect) TypeDecimal() string { return "DECIMAL" }
func (postgresDialect) TypeBlob() string    { return "BYTEA" }
func (postgresDialect) TypeTinyInt() string { return "SMALLINT" }
func (postgresDialect) TableExistsQuery() string {
	return "SELECT tablename FROM pg_tables WHERE schemaname='public' AND tablename=?"
}
func (postgresDialect) ListTablesQuery() string {
	return "SELECT tablename FROM pg_tables WHERE schemaname='public' ORDER BY tablename"
}
