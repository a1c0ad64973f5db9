// Package lifecycle records the terminal status of processed work items.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/store"
)

// Config holds configuration for the Tracker.
type Config struct {
	// Store persists the status writes (required).
	Store store.WorkItemStore

	// WorkItemCodes are written on work items (default: provisioner.DefaultStatusCodes()).
	WorkItemCodes *provisioner.StatusCodes

	// ProjectCodes are written on project records (default: WorkItemCodes).
	ProjectCodes *provisioner.StatusCodes

	// Logger is for observability (optional).
	Logger provisioner.Logger
}

// Tracker writes exactly one terminal status per processed work item and
// mirrors it onto the item's project.
type Tracker struct {
	store         store.WorkItemStore
	workItemCodes provisioner.StatusCodes
	projectCodes  provisioner.StatusCodes
	logger        provisioner.Logger
	now           func() time.Time
}

// New creates a Tracker with the given configuration.
func New(cfg Config) *Tracker {
	workItemCodes := provisioner.DefaultStatusCodes()
	if cfg.WorkItemCodes != nil {
		workItemCodes = *cfg.WorkItemCodes
	}
	projectCodes := workItemCodes
	if cfg.ProjectCodes != nil {
		projectCodes = *cfg.ProjectCodes
	}

	return &Tracker{
		store:         cfg.Store,
		workItemCodes: workItemCodes,
		projectCodes:  projectCodes,
		logger:        cfg.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RecordOutcome writes the Completed or Failed code on item, clears or sets
// its error message and touches its timestamp. When the item references a
// project, the terminal status is mirrored there too; a failed project write
// is logged and does not change the result. All writes are saved together.
//
// Returns an error if the work item write or the save fails. The staged
// writes are discarded in that case.
func (t *Tracker) RecordOutcome(ctx context.Context, item provisioner.WorkItem, success bool, errorMessage *string) error {
	if success {
		errorMessage = nil
	}

	item.Status = t.workItemCodes.Terminal(success)
	item.ErrorMessage = errorMessage
	item.UpdatedAt = t.now()

	if err := t.store.UpdateWorkItem(ctx, item); err != nil {
		t.discard(ctx, item.ID)
		return fmt.Errorf("failed to update work item %d: %w", item.ID, err)
	}

	if item.ProjectID != nil {
		t.mirrorProject(ctx, item, success, errorMessage)
	}

	if err := t.store.SaveChanges(ctx); err != nil {
		t.discard(ctx, item.ID)
		return fmt.Errorf("failed to save status of work item %d: %w", item.ID, err)
	}

	if t.logger != nil {
		t.logger.Debug(ctx, "work item status recorded", "workItemID", item.ID, "status", item.Status, "success", success)
	}

	return nil
}

func (t *Tracker) mirrorProject(ctx context.Context, item provisioner.WorkItem, success bool, errorMessage *string) {
	projectID := *item.ProjectID
	err := t.store.UpdateProjectStatus(ctx, projectID, t.projectCodes.Terminal(success), errorMessage)
	if err == nil || t.logger == nil {
		return
	}

	if errors.Is(err, store.ErrProjectNotFound) {
		t.logger.Warn(ctx, "project not found, status not mirrored", "workItemID", item.ID, "projectID", projectID)
		return
	}
	t.logger.Error(ctx, "failed to mirror status onto project", "workItemID", item.ID, "projectID", projectID, "error", err)
}

func (t *Tracker) discard(ctx context.Context, workItemID int64) {
	if err := t.store.DiscardChanges(ctx); err != nil && t.logger != nil {
		t.logger.Error(ctx, "failed to discard staged changes", "workItemID", workItemID, "error", err)
	}
}

// Recorder records the terminal outcome of a work item.
// This interface allows for mock implementations in tests.
type Recorder interface {
	RecordOutcome(ctx context.Context, item provisioner.WorkItem, success bool, errorMessage *string) error
}

var _ Recorder = (*Tracker)(nil)
