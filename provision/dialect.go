package provision

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/getpup/tenant-provisioner/connstr"
)

// Dialect describes how to reach and create databases on one server flavour.
type Dialect interface {
	// Name is the configuration name of the dialect.
	Name() string

	// DriverName is the database/sql driver to open connections with.
	DriverName() string

	// Normalize canonicalizes a server connection string.
	Normalize(serverConnection string) string

	// AdminDSN scopes serverConnection to the administrative catalog.
	AdminDSN(serverConnection string) (string, error)

	// TargetDSN scopes serverConnection to database.
	TargetDSN(serverConnection, database string) (string, error)

	// ExistsQuery looks a database up by name. It takes the name as its only
	// parameter and returns no rows or a NULL column when the database is absent.
	ExistsQuery() string

	// CreateStatement returns CREATE DATABASE for an already validated name.
	CreateStatement(database string) string
}

var dialects = map[string]Dialect{
	"sqlserver": SQLServer{},
	"postgres":  Postgres{},
	"mysql":     MySQL{},
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q (supported: %s)", name, strings.Join(DialectNames(), ", "))
	}
	return d, nil
}

// DialectNames returns the registered dialect names in sorted order.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SQLServer targets Microsoft SQL Server through go-mssqldb using ADO-style
// connection strings.
type SQLServer struct{}

// Name implements Dialect.
func (SQLServer) Name() string { return "sqlserver" }

// DriverName implements Dialect.
func (SQLServer) DriverName() string { return "sqlserver" }

// Normalize implements Dialect.
func (SQLServer) Normalize(serverConnection string) string {
	return connstr.Normalize(serverConnection)
}

// AdminDSN implements Dialect.
func (SQLServer) AdminDSN(serverConnection string) (string, error) {
	return connstr.WithDatabase(serverConnection, "master"), nil
}

// TargetDSN implements Dialect.
func (SQLServer) TargetDSN(serverConnection, database string) (string, error) {
	return connstr.WithDatabase(serverConnection, database), nil
}

// ExistsQuery implements Dialect. DB_ID returns NULL for unknown names.
func (SQLServer) ExistsQuery() string {
	return "SELECT DB_ID(@p1)"
}

// CreateStatement implements Dialect.
func (SQLServer) CreateStatement(database string) string {
	return "CREATE DATABASE [" + strings.ReplaceAll(database, "]", "]]") + "]"
}

// Postgres targets PostgreSQL through lib/pq. Both URL and key/value
// connection strings are accepted.
type Postgres struct{}

var pgDBName = regexp.MustCompile(`(^|\s)dbname=('(?:[^'\\]|\\.)*'|\S*)`)

// Name implements Dialect.
func (Postgres) Name() string { return "postgres" }

// DriverName implements Dialect.
func (Postgres) DriverName() string { return "postgres" }

// Normalize implements Dialect.
func (Postgres) Normalize(serverConnection string) string {
	return strings.TrimSpace(serverConnection)
}

// AdminDSN implements Dialect.
func (p Postgres) AdminDSN(serverConnection string) (string, error) {
	return p.TargetDSN(serverConnection, "postgres")
}

// TargetDSN implements Dialect.
func (Postgres) TargetDSN(serverConnection, database string) (string, error) {
	conn := strings.TrimSpace(serverConnection)
	if strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://") {
		u, err := url.Parse(conn)
		if err != nil {
			return "", fmt.Errorf("failed to parse postgres url: %w", err)
		}
		u.Path = "/" + database
		u.RawPath = ""
		return u.String(), nil
	}

	if pgDBName.MatchString(conn) {
		return pgDBName.ReplaceAllString(conn, "${1}dbname="+database), nil
	}
	if conn == "" {
		return "dbname=" + database, nil
	}
	return conn + " dbname=" + database, nil
}

// ExistsQuery implements Dialect.
func (Postgres) ExistsQuery() string {
	return "SELECT datname FROM pg_database WHERE datname = $1"
}

// CreateStatement implements Dialect.
func (Postgres) CreateStatement(database string) string {
	return "CREATE DATABASE " + pq.QuoteIdentifier(database)
}

// MySQL targets MySQL/MariaDB through go-sql-driver/mysql DSNs.
type MySQL struct{}

// Name implements Dialect.
func (MySQL) Name() string { return "mysql" }

// DriverName implements Dialect.
func (MySQL) DriverName() string { return "mysql" }

// Normalize implements Dialect.
func (MySQL) Normalize(serverConnection string) string {
	return strings.TrimSpace(serverConnection)
}

// AdminDSN implements Dialect. MySQL has no administrative catalog to
// connect to, so the database is cleared.
func (m MySQL) AdminDSN(serverConnection string) (string, error) {
	return m.TargetDSN(serverConnection, "")
}

// TargetDSN implements Dialect.
func (MySQL) TargetDSN(serverConnection, database string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimSpace(serverConnection))
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.DBName = database
	// Deployment scripts routinely carry several statements per batch.
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

// ExistsQuery implements Dialect.
func (MySQL) ExistsQuery() string {
	return "SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?"
}

// CreateStatement implements Dialect.
func (MySQL) CreateStatement(database string) string {
	return "CREATE DATABASE `" + strings.ReplaceAll(database, "`", "``") + "`"
}
