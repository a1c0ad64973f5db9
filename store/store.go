package store

import (
	"context"

	provisioner "github.com/getpup/tenant-provisioner"
)

// WorkItemStore persists work items and the project status mirror.
//
// Writes are staged as a unit of work: UpdateWorkItem and
// UpdateProjectStatus take effect when SaveChanges succeeds, and are dropped
// by DiscardChanges. Implementations are used from a single goroutine per
// run but must be safe for concurrent access.
type WorkItemStore interface {
	// ListWorkItems returns the items matching filter ordered by ID.
	// Returns an empty slice if nothing matches.
	ListWorkItems(ctx context.Context, filter provisioner.WorkItemFilter) ([]provisioner.WorkItem, error)

	// UpdateWorkItem stages the status, error message and timestamp of item.
	// Returns ErrWorkItemNotFound if the item does not exist.
	UpdateWorkItem(ctx context.Context, item provisioner.WorkItem) error

	// UpdateProjectStatus stages a status write on a project record and
	// touches its modification timestamp.
	// Returns ErrProjectNotFound if the project does not exist.
	UpdateProjectStatus(ctx context.Context, projectID int64, status provisioner.Status, errorMessage *string) error

	// SaveChanges commits every staged write.
	SaveChanges(ctx context.Context) error

	// DiscardChanges drops every staged write.
	DiscardChanges(ctx context.Context) error
}
