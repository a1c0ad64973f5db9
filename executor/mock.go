package executor

import (
	"context"
	"sync"

	"github.com/getpup/tenant-provisioner/batch"
)

// MockRunner is a mock implementation of Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	// ExecuteBatchesFunc is called by Execute and ExecuteBatches if set.
	ExecuteBatchesFunc func(ctx context.Context, connectionString string, batches []string) (int, error)

	Calls []ExecuteCall
}

// ExecuteCall records the parameters of a single call.
type ExecuteCall struct {
	ConnectionString string
	Batches          []string
}

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Calls: make([]ExecuteCall, 0),
	}
}

// Execute implements the Runner interface by splitting script and
// delegating to ExecuteBatches.
func (m *MockRunner) Execute(ctx context.Context, connectionString, script string) (int, error) {
	return m.ExecuteBatches(ctx, connectionString, batch.Split(script))
}

// ExecuteBatches implements the Runner interface.
// It records the call parameters, then:
// - If ExecuteBatchesFunc is set, calls and returns it
// - Otherwise, reports every batch as executed
func (m *MockRunner) ExecuteBatches(ctx context.Context, connectionString string, batches []string) (int, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ExecuteCall{
		ConnectionString: connectionString,
		Batches:          batches,
	})
	m.mu.Unlock()

	if m.ExecuteBatchesFunc != nil {
		return m.ExecuteBatchesFunc(ctx, connectionString, batches)
	}
	return len(batches), nil
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]ExecuteCall, 0)
}
