package provision

import "context"

// DatabaseEnsurer creates databases on demand and scopes connection strings
// to them. This interface allows for mock implementations in tests.
type DatabaseEnsurer interface {
	EnsureExists(ctx context.Context, serverConnection, databaseName string) (bool, error)
	TargetConnection(serverConnection, databaseName string) (string, error)
	AdminConnection(serverConnection string) (string, error)
}

var _ DatabaseEnsurer = (*Provisioner)(nil)
