// Package pipeline runs the provisioning pass over eligible work items.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/connstr"
	"github.com/getpup/tenant-provisioner/deploy"
	"github.com/getpup/tenant-provisioner/identifier"
	"github.com/getpup/tenant-provisioner/lifecycle"
	"github.com/getpup/tenant-provisioner/metrics"
	"github.com/getpup/tenant-provisioner/provision"
	"github.com/getpup/tenant-provisioner/store"
)

// ErrItemPanicked wraps a panic recovered while processing a work item.
var ErrItemPanicked = errors.New("work item processing panicked")

// Templates are the connection string templates a work item can select.
// Placeholders {database}, {username}, {password} and {project} are
// substituted per item. An empty template falls back to the admin connection.
type Templates struct {
	// Integrated is used for provisioner.TemplateIntegrated items.
	Integrated string

	// SQLAuth is used for provisioner.TemplateSQLAuth items.
	SQLAuth string
}

// Artifacts are the configured artifact paths by role. An empty path means
// the role is not deployed.
type Artifacts struct {
	Schema  string
	Package string
	Script  string
}

func (a Artifacts) path(role deploy.Role) string {
	switch role {
	case deploy.RoleSchema:
		return a.Schema
	case deploy.RolePackage:
		return a.Package
	case deploy.RoleScript:
		return a.Script
	default:
		return ""
	}
}

// Config holds configuration for the provisioning Orchestrator.
type Config struct {
	// Store lists eligible work items (required).
	Store store.WorkItemStore

	// Ensurer creates tenant databases (required).
	Ensurer provision.DatabaseEnsurer

	// Deployer applies artifacts (required).
	Deployer deploy.ArtifactDeployer

	// Tracker records terminal outcomes (required).
	Tracker lifecycle.Recorder

	// AdminConnection reaches the server's administrative catalog.
	// When empty every run is skipped.
	AdminConnection string

	// Templates build the per-item connection.
	Templates Templates

	// Artifacts are deployed in deploy.DeployOrder.
	Artifacts Artifacts

	// Codes select eligible items (default: provisioner.DefaultStatusCodes()).
	Codes *provisioner.StatusCodes

	// ItemTimeout bounds the work on a single item (default: 10m).
	ItemTimeout time.Duration

	// PollInterval is the time between passes in Run (default: 1m).
	PollInterval time.Duration

	// ContinueOnError keeps Run polling after a failed pass.
	// By default Run returns the first pass error.
	ContinueOnError bool

	// Logger is for observability (optional).
	Logger provisioner.Logger

	// Collector records metrics. Nil disables metrics.
	Collector *metrics.Collector
}

// Orchestrator provisions a database for every eligible work item.
type Orchestrator struct {
	config Config
	codes  provisioner.StatusCodes
}

var _ provisioner.Orchestrator = (*Orchestrator)(nil)

// New creates a new Orchestrator with the given configuration.
// Applies default values for durations and status codes if not set.
func New(cfg Config) *Orchestrator {
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = 10 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Minute
	}

	codes := provisioner.DefaultStatusCodes()
	if cfg.Codes != nil {
		codes = *cfg.Codes
	}

	return &Orchestrator{
		config: cfg,
		codes:  codes,
	}
}

// resolvedArtifact is a configured artifact or the reason it cannot be deployed.
type resolvedArtifact struct {
	artifact deploy.Artifact
	err      error
}

// RunOnce implements provisioner.Orchestrator.
func (o *Orchestrator) RunOnce(ctx context.Context) (summary provisioner.Summary, err error) {
	start := time.Now()
	summary.RunID = uuid.NewString()
	defer func() {
		summary.Duration = time.Since(start)
		o.config.Collector.ObserveRunDuration(summary.Duration.Seconds())
	}()

	if o.config.AdminConnection == "" {
		if o.config.Logger != nil {
			o.config.Logger.Warn(ctx, "run skipped", "runID", summary.RunID, "reason", provisioner.ErrNoAdminConnection.Error())
		}
		summary.Skipped = true
		return summary, nil
	}

	artifacts := o.resolveArtifacts(ctx, summary.RunID)

	items, listErr := o.config.Store.ListWorkItems(ctx, provisioner.EligibleFilter(o.codes))
	if listErr != nil {
		if o.config.Logger != nil {
			o.config.Logger.Error(ctx, "failed to list work items", "runID", summary.RunID, "error", listErr)
		}
		return summary, fmt.Errorf("failed to list work items: %w", listErr)
	}

	eligible := make([]provisioner.WorkItem, 0, len(items))
	for _, item := range items {
		if !item.IsEligible(o.codes) {
			if o.config.Logger != nil {
				o.config.Logger.Warn(ctx, "work item not eligible, skipping", "runID", summary.RunID, "workItemID", item.ID, "status", item.Status, "active", item.Active)
			}
			continue
		}
		eligible = append(eligible, item)
	}

	summary.Eligible = len(eligible)
	o.config.Collector.SetEligibleItems(len(eligible))

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "run started", "runID", summary.RunID, "eligible", len(eligible), "artifacts", len(artifacts))
	}

	for _, item := range eligible {
		if ctx.Err() != nil {
			if o.config.Logger != nil {
				o.config.Logger.Warn(ctx, "run cancelled, remaining items left eligible", "runID", summary.RunID)
			}
			break
		}

		if o.handleItem(ctx, summary.RunID, item, artifacts) {
			summary.Completed++
		} else {
			summary.Failed++
		}
	}

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "run finished",
			"runID", summary.RunID,
			"completed", summary.Completed,
			"failed", summary.Failed,
			"duration", time.Since(start))
	}

	return summary, nil
}

// Run implements provisioner.Orchestrator.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := o.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !o.config.ContinueOnError {
				return err
			}
			if o.config.Logger != nil {
				o.config.Logger.Warn(ctx, "run failed, polling continues", "error", err, "pollInterval", o.config.PollInterval)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DatabaseName returns the sanitized database name for item: the explicit
// name when set, otherwise a short catalog name derived from the project name.
func DatabaseName(item provisioner.WorkItem) string {
	if item.DatabaseName != "" {
		return identifier.Database.Sanitize(item.DatabaseName)
	}
	return identifier.Catalog.Sanitize(item.ProjectName)
}

// resolveArtifacts runs once per pass. Unset or missing files are skipped;
// unsupported extensions stay in the list and fail every item.
func (o *Orchestrator) resolveArtifacts(ctx context.Context, runID string) []resolvedArtifact {
	resolved := make([]resolvedArtifact, 0, len(deploy.DeployOrder))
	for _, role := range deploy.DeployOrder {
		path := o.config.Artifacts.path(role)
		if path == "" {
			if o.config.Logger != nil {
				o.config.Logger.Warn(ctx, "artifact not configured, skipping", "runID", runID, "role", role)
			}
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if o.config.Logger != nil {
				o.config.Logger.Warn(ctx, "artifact file not found, skipping", "runID", runID, "role", role, "path", path, "error", err)
			}
			continue
		}

		artifact, err := deploy.ResolveArtifact(role, path)
		resolved = append(resolved, resolvedArtifact{artifact: artifact, err: err})
	}
	return resolved
}

// handleItem processes one item and records exactly one terminal status.
// It reports whether the item completed.
func (o *Orchestrator) handleItem(ctx context.Context, runID string, item provisioner.WorkItem, artifacts []resolvedArtifact) (completed bool) {
	start := time.Now()
	var itemErr error

	defer func() {
		if r := recover(); r != nil {
			itemErr = fmt.Errorf("%w: %v", ErrItemPanicked, r)
		}
		completed = itemErr == nil
		o.finish(ctx, runID, item, itemErr, time.Since(start))
	}()

	itemCtx, cancel := context.WithTimeout(ctx, o.config.ItemTimeout)
	defer cancel()

	itemErr = o.provisionItem(itemCtx, runID, item, artifacts)
	return
}

func (o *Orchestrator) provisionItem(ctx context.Context, runID string, item provisioner.WorkItem, artifacts []resolvedArtifact) error {
	databaseName := DatabaseName(item)

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "provisioning work item", "runID", runID, "workItemID", item.ID, "database", databaseName)
	}

	created, err := o.config.Ensurer.EnsureExists(ctx, o.config.AdminConnection, databaseName)
	if err != nil {
		return fmt.Errorf("failed to provision database %s: %w", databaseName, err)
	}
	if created && o.config.Logger != nil {
		o.config.Logger.Info(ctx, "tenant database created", "runID", runID, "workItemID", item.ID, "database", databaseName)
	}

	itemConnection := o.itemConnection(item, databaseName)
	for _, r := range artifacts {
		if r.err != nil {
			return r.err
		}

		connection := itemConnection
		if r.artifact.UsesAdminConnection() {
			connection = o.config.AdminConnection
		}

		outcome := o.config.Deployer.Deploy(ctx, r.artifact, databaseName, connection)
		switch outcome.State {
		case provisioner.OutcomeFailed:
			return outcome.Err
		case provisioner.OutcomeSkipped:
			if o.config.Logger != nil {
				o.config.Logger.Debug(ctx, "artifact skipped", "runID", runID, "workItemID", item.ID, "role", r.artifact.Role, "reason", outcome.Reason)
			}
		}
	}

	return nil
}

// itemConnection expands the item's template. The result is scoped to the
// tenant database later, by the ensurer.
func (o *Orchestrator) itemConnection(item provisioner.WorkItem, databaseName string) string {
	template := o.config.Templates.Integrated
	if item.Template == provisioner.TemplateSQLAuth {
		template = o.config.Templates.SQLAuth
	}
	if template == "" {
		return o.config.AdminConnection
	}

	return connstr.Expand(template, map[string]string{
		"database": databaseName,
		"username": item.Username,
		"password": item.Password,
		"project":  item.ProjectName,
	})
}

// finish records the outcome. It uses a context detached from cancellation
// so a timed out or cancelled item still gets its terminal status.
func (o *Orchestrator) finish(ctx context.Context, runID string, item provisioner.WorkItem, itemErr error, elapsed time.Duration) {
	var message *string
	outcome := "completed"
	if itemErr != nil {
		msg := itemErr.Error()
		message = &msg
		outcome = "failed"
	}
	o.config.Collector.IncItemsProcessed(outcome)

	if o.config.Logger != nil {
		if itemErr != nil {
			o.config.Logger.Error(ctx, "work item failed", "runID", runID, "workItemID", item.ID, "error", itemErr, "duration", elapsed)
		} else {
			o.config.Logger.Info(ctx, "work item completed", "runID", runID, "workItemID", item.ID, "duration", elapsed)
		}
	}

	if err := o.config.Tracker.RecordOutcome(context.WithoutCancel(ctx), item, itemErr == nil, message); err != nil {
		if o.config.Logger != nil {
			o.config.Logger.Error(ctx, "failed to record work item outcome", "runID", runID, "workItemID", item.ID, "error", err)
		}
	}
}
