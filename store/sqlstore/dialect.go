package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects placeholder syntax and driver name.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLite    Dialect = "sqlite"
	SQLServer Dialect = "sqlserver"
)

// ParseDialect validates a dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case Postgres, MySQL, SQLite, SQLServer:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported store dialect %q (supported: postgres, mysql, sqlite, sqlserver)", name)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
// The driver itself must be imported by the binary.
func (d Dialect) DriverName() string {
	switch d {
	case SQLite:
		return "sqlite3"
	default:
		return string(d)
	}
}

// savepointStatements returns the statements that set, roll back to and
// release a savepoint. SQL Server releases savepoints only at commit, so
// release is empty there.
func (d Dialect) savepointStatements(name string) (set, rollback, release string) {
	if d == SQLServer {
		return "SAVE TRANSACTION " + name, "ROLLBACK TRANSACTION " + name, ""
	}
	return "SAVEPOINT " + name, "ROLLBACK TO SAVEPOINT " + name, "RELEASE SAVEPOINT " + name
}

// rebind rewrites '?' placeholders into the dialect's syntax.
func (d Dialect) rebind(query string) string {
	var prefix string
	switch d {
	case Postgres:
		prefix = "$"
	case SQLServer:
		prefix = "@p"
	default:
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteString(prefix)
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
