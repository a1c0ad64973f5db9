package executor

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/internal/sqlfake"
	"github.com/getpup/tenant-provisioner/metrics"
)

// mockLogger captures log calls for testing
type mockLogger struct {
	mu    sync.Mutex
	calls []logCall
}

type logCall struct {
	level   string
	message string
	args    []any
}

func newMockLogger() *mockLogger {
	return &mockLogger{
		calls: make([]logCall, 0),
	}
}

func (m *mockLogger) record(level, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, logCall{level: level, message: msg, args: args})
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any) { m.record("debug", msg, args) }
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)  { m.record("info", msg, args) }
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)  { m.record("warn", msg, args) }
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any) { m.record("error", msg, args) }

func (m *mockLogger) count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.level == level {
			n++
		}
	}
	return n
}

func newFakeExecutor(server *sqlfake.Server, attempts int) *Executor {
	return New(Config{
		Open:        server.Open,
		MaxAttempts: attempts,
		RetryDelay:  time.Millisecond,
	})
}

func TestNew_AppliesDefaults(t *testing.T) {
	executor := New(Config{})

	assert.Equal(t, DefaultMaxAttempts, executor.config.MaxAttempts)
	assert.Equal(t, DefaultRetryDelay, executor.config.RetryDelay)
	assert.Equal(t, DefaultDriverName, executor.config.DriverName)
	assert.NotNil(t, executor.config.Open)
}

func TestNew_PreservesConfig(t *testing.T) {
	logger := newMockLogger()

	executor := New(Config{DriverName: "postgres", MaxAttempts: 5, RetryDelay: time.Second, Logger: logger})

	assert.Equal(t, "postgres", executor.config.DriverName)
	assert.Equal(t, 5, executor.config.MaxAttempts)
	assert.Equal(t, time.Second, executor.config.RetryDelay)
	assert.Equal(t, logger, executor.config.Logger)
}

func TestExecute_RunsBatchesInOrder(t *testing.T) {
	server := sqlfake.NewServer()
	executor := newFakeExecutor(server, 3)

	n, err := executor.Execute(context.Background(), "Server=db;Database=t", "A\nGO\nB\nGO\n")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"A", "B"}, server.Executed())
}

func TestExecute_EmptyScriptOpensNothing(t *testing.T) {
	server := sqlfake.NewServer()
	executor := newFakeExecutor(server, 3)

	n, err := executor.Execute(context.Background(), "Server=db", " \nGO\n ")

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, server.Opens())
}

func TestExecute_RetriesWholeScript(t *testing.T) {
	server := sqlfake.NewServer()
	server.FailWhenContains("B", 1, errors.New("deadlock victim"))
	logger := newMockLogger()
	executor := New(Config{Open: server.Open, RetryDelay: time.Millisecond, Logger: logger})

	n, err := executor.Execute(context.Background(), "Server=db", "A\nGO\nB\nGO\nC")

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"A", "B", "A", "B", "C"}, server.Executed())
	assert.Equal(t, 1, logger.count("warn"))
	assert.Equal(t, 1, server.Opens())
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	server := sqlfake.NewServer()
	boom := errors.New("syntax error")
	server.FailWhenContains("B", -1, boom)
	executor := newFakeExecutor(server, 3)

	n, err := executor.Execute(context.Background(), "Server=db", "A\nGO\nB")

	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, provisioner.ErrRetriesExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "batch 2 of 2")
	assert.Equal(t, []string{"A", "B", "A", "B", "A", "B"}, server.Executed())
}

func TestExecute_SingleAttempt(t *testing.T) {
	server := sqlfake.NewServer()
	server.FailWhenContains("A", -1, errors.New("nope"))
	executor := newFakeExecutor(server, 1)

	_, err := executor.Execute(context.Background(), "Server=db", "A")

	assert.ErrorIs(t, err, provisioner.ErrRetriesExhausted)
	assert.Len(t, server.Executed(), 1)
}

func TestExecute_StopsOnContextCancellation(t *testing.T) {
	server := sqlfake.NewServer()
	server.FailWhenContains("A", -1, errors.New("transient"))
	executor := New(Config{Open: server.Open, MaxAttempts: 3, RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := executor.Execute(ctx, "Server=db", "A")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, provisioner.ErrRetriesExhausted)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Len(t, server.Executed(), 1)
}

func TestExecute_UsesDriverNameAndConnectionString(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	var gotDriver, gotDSN string
	executor := New(Config{
		DriverName: "postgres",
		Open: func(driverName, dsn string) (*sql.DB, error) {
			gotDriver, gotDSN = driverName, dsn
			return db, nil
		},
	})

	mock.ExpectExec("CREATE TABLE t (id int)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	n, err := executor.Execute(context.Background(), "host=db dbname=tenant", "CREATE TABLE t (id int)")

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "postgres", gotDriver)
	assert.Equal(t, "host=db dbname=tenant", gotDSN)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_OpenFailure(t *testing.T) {
	boom := errors.New("bad dsn")
	executor := New(Config{Open: func(string, string) (*sql.DB, error) { return nil, boom }})

	_, err := executor.Execute(context.Background(), "x", "A")

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, provisioner.ErrRetriesExhausted)
}

func TestExecuteBatches_RecordsMetrics(t *testing.T) {
	server := sqlfake.NewServer()
	server.FailWhenContains("B", 1, errors.New("transient"))
	executor := New(Config{
		Open:       server.Open,
		RetryDelay: time.Millisecond,
		Collector:  metrics.NewCollector("test-executor"),
	})

	retriesBefore := testutil.ToFloat64(metrics.BatchRetriesTotal.WithLabelValues("test-executor"))
	batchesBefore := testutil.ToFloat64(metrics.BatchesExecutedTotal.WithLabelValues("test-executor"))

	_, err := executor.ExecuteBatches(context.Background(), "Server=db", []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, retriesBefore+1, testutil.ToFloat64(metrics.BatchRetriesTotal.WithLabelValues("test-executor")))
	assert.Equal(t, batchesBefore+2, testutil.ToFloat64(metrics.BatchesExecutedTotal.WithLabelValues("test-executor")))
}
