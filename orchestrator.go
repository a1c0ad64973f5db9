package provisioner

import (
	"context"
	"time"
)

// Orchestrator provisions tenant databases for queued work items.
type Orchestrator interface {
	// RunOnce processes every eligible work item once, sequentially.
	//
	// For each item it will:
	// 1. Derive a sanitized database name
	// 2. Ensure the database exists on the target server
	// 3. Deploy the configured artifacts in a fixed order
	// 4. Record exactly one terminal status on the item and its project
	//
	// A failing item never stops the remaining items. RunOnce returns an error
	// only when the work item source itself cannot be read. When no admin
	// connection is configured the run is skipped and RunOnce returns nil.
	RunOnce(ctx context.Context) (Summary, error)

	// Run calls RunOnce on every poll interval until ctx is cancelled.
	Run(ctx context.Context) error
}

// Summary describes one pass over the eligible work items.
type Summary struct {
	// RunID correlates the log records of one pass.
	RunID string

	// Skipped is set when the run did nothing because configuration was absent.
	Skipped bool

	// Eligible is the number of work items picked up.
	Eligible int

	// Completed and Failed count terminal writes by outcome.
	Completed int
	Failed    int

	// Duration is the wall time of the pass.
	Duration time.Duration
}
