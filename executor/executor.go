package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/batch"
	"github.com/getpup/tenant-provisioner/metrics"
)

const (
	// DefaultMaxAttempts is the default number of attempts per script.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the default fixed delay between attempts.
	DefaultRetryDelay = 2 * time.Second

	// DefaultDriverName is the database/sql driver used when none is configured.
	DefaultDriverName = "sqlserver"
)

// OpenFunc opens a database handle. It has the signature of sql.Open.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Config configures the batch executor.
type Config struct {
	// DriverName is the database/sql driver name (default: sqlserver).
	DriverName string

	// Open opens database handles (default: sql.Open).
	Open OpenFunc

	// MaxAttempts is the total number of attempts per script (default: 3).
	MaxAttempts int

	// RetryDelay is the fixed delay between attempts (default: 2s).
	// A negative value retries immediately.
	RetryDelay time.Duration

	// Logger is an optional logger for observability.
	Logger provisioner.Logger

	// Collector records metrics. Nil disables metrics.
	Collector *metrics.Collector
}

// Executor runs SQL batches with whole-script retries. A failure in any
// batch retries the entire script on a fresh connection, so scripts must be
// idempotent.
type Executor struct {
	config Config
}

// Compile-time check that Executor implements Runner.
var _ Runner = (*Executor)(nil)

// New creates a new Executor with the given configuration.
// It applies default values for zero fields.
func New(cfg Config) *Executor {
	if cfg.DriverName == "" {
		cfg.DriverName = DefaultDriverName
	}
	if cfg.Open == nil {
		cfg.Open = sql.Open
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Executor{
		config: cfg,
	}
}

// Execute splits script on GO separators and runs the batches.
// A script with no batches executes nothing and opens no connection.
func (e *Executor) Execute(ctx context.Context, connectionString, script string) (int, error) {
	return e.ExecuteBatches(ctx, connectionString, batch.Split(script))
}

// ExecuteBatches opens one pool for connectionString and makes up to
// MaxAttempts attempts. Each attempt takes one connection and runs every
// batch in order. When all attempts fail the returned error wraps both
// provisioner.ErrRetriesExhausted and the last failure.
func (e *Executor) ExecuteBatches(ctx context.Context, connectionString string, batches []string) (int, error) {
	if len(batches) == 0 {
		return 0, nil
	}

	db, err := e.config.Open(e.config.DriverName, connectionString)
	if err != nil {
		return 0, fmt.Errorf("failed to open connection: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	attempt := 0
	err = retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		attempt++
		runErr := runAll(ctx, db, batches)
		if runErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return runErr
		}

		if e.config.Logger != nil {
			e.config.Logger.Warn(ctx, "batch execution attempt failed",
				"attempt", attempt,
				"max_attempts", e.config.MaxAttempts,
				"error", runErr)
		}
		if attempt < e.config.MaxAttempts {
			e.config.Collector.IncBatchRetries()
		}
		return retry.RetryableError(runErr)
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("batch execution cancelled after %d attempts: %w", attempt, errors.Join(ctxErr, err))
		}
		return 0, fmt.Errorf("%w after %d attempts: %w", provisioner.ErrRetriesExhausted, attempt, err)
	}

	e.config.Collector.AddBatchesExecuted(len(batches))
	if e.config.Logger != nil {
		e.config.Logger.Debug(ctx, "batches executed", "batches", len(batches), "attempts", attempt)
	}
	return len(batches), nil
}

func (e *Executor) backoff() retry.Backoff {
	delay := e.config.RetryDelay
	if delay < 0 {
		delay = time.Nanosecond
	}
	return retry.WithMaxRetries(uint64(e.config.MaxAttempts-1), retry.NewConstant(delay))
}

func runAll(ctx context.Context, db *sql.DB, batches []string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	for i, b := range batches {
		if _, err := conn.ExecContext(ctx, b); err != nil {
			return fmt.Errorf("batch %d of %d failed: %w", i+1, len(batches), err)
		}
	}
	return nil
}
