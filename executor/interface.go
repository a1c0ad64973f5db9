package executor

import "context"

// Runner executes SQL scripts against a database.
// This interface allows for mock implementations in tests.
type Runner interface {
	// Execute splits script into batches and runs them in order.
	// It returns the number of batches executed.
	Execute(ctx context.Context, connectionString, script string) (int, error)

	// ExecuteBatches runs already split batches in order.
	ExecuteBatches(ctx context.Context, connectionString string, batches []string) (int, error)
}
