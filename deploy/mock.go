package deploy

import (
	"context"
	"sync"

	provisioner "github.com/getpup/tenant-provisioner"
)

// DeployCall records the parameters of a single Deploy call.
type DeployCall struct {
	Artifact         Artifact
	TargetDatabase   string
	ServerConnection string
}

// MockDeployer is a mock implementation of ArtifactDeployer for testing.
// Without DeployFunc every artifact succeeds.
type MockDeployer struct {
	mu sync.Mutex

	// DeployFunc is called by Deploy if set.
	DeployFunc func(ctx context.Context, artifact Artifact, targetDatabase, serverConnection string) provisioner.Outcome

	// Calls records every Deploy call.
	Calls []DeployCall
}

// NewMockDeployer creates a new MockDeployer.
func NewMockDeployer() *MockDeployer {
	return &MockDeployer{Calls: make([]DeployCall, 0)}
}

// Deploy implements ArtifactDeployer.
func (m *MockDeployer) Deploy(ctx context.Context, artifact Artifact, targetDatabase, serverConnection string) provisioner.Outcome {
	m.mu.Lock()
	m.Calls = append(m.Calls, DeployCall{
		Artifact:         artifact,
		TargetDatabase:   targetDatabase,
		ServerConnection: serverConnection,
	})
	m.mu.Unlock()

	if m.DeployFunc != nil {
		return m.DeployFunc(ctx, artifact, targetDatabase, serverConnection)
	}
	return provisioner.Succeeded(0)
}

// Roles returns the role of every deployed artifact in call order.
func (m *MockDeployer) Roles() []Role {
	m.mu.Lock()
	defer m.mu.Unlock()

	roles := make([]Role, len(m.Calls))
	for i, c := range m.Calls {
		roles[i] = c.Artifact.Role
	}
	return roles
}

// Reset clears all recorded calls.
func (m *MockDeployer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]DeployCall, 0)
}
