// Package provision creates tenant databases on a shared server.
package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/identifier"
	"github.com/getpup/tenant-provisioner/metrics"
)

// DefaultSettleDelay is how long EnsureExists waits after creating a database
// before it is handed to deployment.
const DefaultSettleDelay = 5 * time.Second

// OpenFunc opens a database handle. It has the signature of sql.Open.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Config configures a Provisioner.
type Config struct {
	// Dialect selects the server flavour. Defaults to SQLServer.
	Dialect Dialect

	// Open opens database handles. Defaults to sql.Open.
	Open OpenFunc

	// SettleDelay is waited after a database is created.
	// Defaults to DefaultSettleDelay. A negative value disables the wait.
	SettleDelay time.Duration

	// Logger is an optional logger. Nil disables logging.
	Logger provisioner.Logger

	// Collector records metrics. Nil disables metrics.
	Collector *metrics.Collector
}

// Provisioner creates databases that do not exist yet.
type Provisioner struct {
	dialect     Dialect
	open        OpenFunc
	settleDelay time.Duration
	logger      provisioner.Logger
	collector   *metrics.Collector
}

// New creates a Provisioner.
func New(cfg Config) *Provisioner {
	if cfg.Dialect == nil {
		cfg.Dialect = SQLServer{}
	}
	if cfg.Open == nil {
		cfg.Open = sql.Open
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	return &Provisioner{
		dialect:     cfg.Dialect,
		open:        cfg.Open,
		settleDelay: cfg.SettleDelay,
		logger:      cfg.Logger,
		collector:   cfg.Collector,
	}
}

// Dialect returns the dialect the provisioner was configured with.
func (p *Provisioner) Dialect() Dialect {
	return p.dialect
}

// EnsureExists creates databaseName on the server reached by serverConnection
// unless it already exists. It reports whether the database was created.
// Calling it repeatedly with the same name creates the database at most once.
//
// databaseName must already be sanitized; names that are not valid
// identifiers are rejected with provisioner.ErrInvalidDatabaseName.
func (p *Provisioner) EnsureExists(ctx context.Context, serverConnection, databaseName string) (bool, error) {
	if !identifier.Valid(databaseName) {
		return false, fmt.Errorf("%w: %q", provisioner.ErrInvalidDatabaseName, databaseName)
	}

	db, err := p.openAdmin(serverConnection)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = db.Close()
	}()

	exists, err := p.exists(ctx, db, databaseName)
	if err != nil {
		return false, err
	}
	if exists {
		if p.logger != nil {
			p.logger.Debug(ctx, "database already exists", "database", databaseName)
		}
		return false, nil
	}

	if _, err := db.ExecContext(ctx, p.dialect.CreateStatement(databaseName)); err != nil {
		// Another writer may have created it between the lookup and the create.
		if again, lookupErr := p.exists(ctx, db, databaseName); lookupErr == nil && again {
			if p.logger != nil {
				p.logger.Warn(ctx, "database appeared concurrently", "database", databaseName, "error", err)
			}
			return false, nil
		}
		return false, fmt.Errorf("failed to create database %s: %w", databaseName, err)
	}

	p.collector.IncDatabasesCreated(p.dialect.Name())
	if p.logger != nil {
		p.logger.Info(ctx, "database created", "database", databaseName, "dialect", p.dialect.Name())
	}

	if err := sleep(ctx, p.settleDelay); err != nil {
		return true, err
	}
	return true, nil
}

// Exists reports whether databaseName exists on the server.
func (p *Provisioner) Exists(ctx context.Context, serverConnection, databaseName string) (bool, error) {
	db, err := p.openAdmin(serverConnection)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = db.Close()
	}()

	return p.exists(ctx, db, databaseName)
}

// TargetConnection returns serverConnection scoped to databaseName.
func (p *Provisioner) TargetConnection(serverConnection, databaseName string) (string, error) {
	return p.dialect.TargetDSN(p.dialect.Normalize(serverConnection), databaseName)
}

// AdminConnection returns serverConnection normalized and scoped to the
// server's administrative catalog.
func (p *Provisioner) AdminConnection(serverConnection string) (string, error) {
	dsn, err := p.dialect.AdminDSN(p.dialect.Normalize(serverConnection))
	if err != nil {
		return "", fmt.Errorf("failed to build admin connection: %w", err)
	}
	return dsn, nil
}

func (p *Provisioner) openAdmin(serverConnection string) (*sql.DB, error) {
	dsn, err := p.AdminConnection(serverConnection)
	if err != nil {
		return nil, err
	}

	db, err := p.open(p.dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}
	return db, nil
}

func (p *Provisioner) exists(ctx context.Context, db *sql.DB, databaseName string) (bool, error) {
	var found sql.NullString
	err := db.QueryRowContext(ctx, p.dialect.ExistsQuery(), databaseName).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up database %s: %w", databaseName, err)
	}
	return found.Valid, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
