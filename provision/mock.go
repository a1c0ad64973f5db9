package provision

import (
	"context"
	"sync"

	"github.com/getpup/tenant-provisioner/connstr"
)

// MockEnsurer is a mock implementation of DatabaseEnsurer for testing.
type MockEnsurer struct {
	mu sync.Mutex

	// EnsureExistsFunc is called by EnsureExists if set.
	EnsureExistsFunc func(ctx context.Context, serverConnection, databaseName string) (bool, error)

	// TargetConnectionFunc is called by TargetConnection if set.
	TargetConnectionFunc func(serverConnection, databaseName string) (string, error)

	// AdminConnectionFunc is called by AdminConnection if set.
	AdminConnectionFunc func(serverConnection string) (string, error)

	EnsureExistsCalls     []EnsureExistsCall
	TargetConnectionCalls []EnsureExistsCall
	AdminConnectionCalls  []string
}

// EnsureExistsCall records the parameters of a single call.
type EnsureExistsCall struct {
	ServerConnection string
	DatabaseName     string
}

// NewMockEnsurer creates a new MockEnsurer with an empty call history.
func NewMockEnsurer() *MockEnsurer {
	return &MockEnsurer{
		EnsureExistsCalls:     make([]EnsureExistsCall, 0),
		TargetConnectionCalls: make([]EnsureExistsCall, 0),
		AdminConnectionCalls:  make([]string, 0),
	}
}

// EnsureExists implements DatabaseEnsurer.
// Without EnsureExistsFunc it reports the database as already present.
func (m *MockEnsurer) EnsureExists(ctx context.Context, serverConnection, databaseName string) (bool, error) {
	m.mu.Lock()
	m.EnsureExistsCalls = append(m.EnsureExistsCalls, EnsureExistsCall{
		ServerConnection: serverConnection,
		DatabaseName:     databaseName,
	})
	m.mu.Unlock()

	if m.EnsureExistsFunc != nil {
		return m.EnsureExistsFunc(ctx, serverConnection, databaseName)
	}
	return false, nil
}

// TargetConnection implements DatabaseEnsurer.
// Without TargetConnectionFunc it sets the Database key of an ADO string.
func (m *MockEnsurer) TargetConnection(serverConnection, databaseName string) (string, error) {
	m.mu.Lock()
	m.TargetConnectionCalls = append(m.TargetConnectionCalls, EnsureExistsCall{
		ServerConnection: serverConnection,
		DatabaseName:     databaseName,
	})
	m.mu.Unlock()

	if m.TargetConnectionFunc != nil {
		return m.TargetConnectionFunc(serverConnection, databaseName)
	}
	return connstr.WithDatabase(serverConnection, databaseName), nil
}

// AdminConnection implements DatabaseEnsurer.
// Without AdminConnectionFunc it normalizes an ADO string and scopes it to master.
func (m *MockEnsurer) AdminConnection(serverConnection string) (string, error) {
	m.mu.Lock()
	m.AdminConnectionCalls = append(m.AdminConnectionCalls, serverConnection)
	m.mu.Unlock()

	if m.AdminConnectionFunc != nil {
		return m.AdminConnectionFunc(serverConnection)
	}
	return connstr.WithDatabase(connstr.Normalize(serverConnection), "master"), nil
}

// Reset clears the call history.
func (m *MockEnsurer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsureExistsCalls = make([]EnsureExistsCall, 0)
	m.TargetConnectionCalls = make([]EnsureExistsCall, 0)
	m.AdminConnectionCalls = make([]string, 0)
}
