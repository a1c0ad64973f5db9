// Package orchestrator assembles a provisioning pipeline from options.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	rootpkg "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/batch"
	"github.com/getpup/tenant-provisioner/deploy"
	"github.com/getpup/tenant-provisioner/executor"
	"github.com/getpup/tenant-provisioner/lifecycle"
	"github.com/getpup/tenant-provisioner/metrics"
	"github.com/getpup/tenant-provisioner/pipeline"
	"github.com/getpup/tenant-provisioner/pkg/migrations"
	"github.com/getpup/tenant-provisioner/provision"
	"github.com/getpup/tenant-provisioner/store"
	"github.com/getpup/tenant-provisioner/store/sqlstore"
)

// Re-export core types from root package
type (
	// WorkItem is one queued provisioning request.
	WorkItem = rootpkg.WorkItem

	// StatusCodes names the status values the pipeline reads and writes.
	StatusCodes = rootpkg.StatusCodes

	// Summary describes one pass over the eligible work items.
	Summary = rootpkg.Summary
)

// Option configures an Orchestrator.
type Option func(*config)

// config holds the internal configuration for creating an Orchestrator.
type config struct {
	db              *sql.DB
	storeDialect    sqlstore.Dialect
	tableConfig     sqlstore.TableConfig
	workItemStore   store.WorkItemStore
	adminConnection string
	dialect         string
	templates       pipeline.Templates
	artifacts       pipeline.Artifacts
	workItemCodes   *rootpkg.StatusCodes
	projectCodes    *rootpkg.StatusCodes
	settleDelay     time.Duration
	maxAttempts     int
	retryDelay      time.Duration
	itemTimeout     time.Duration
	pollInterval    time.Duration
	continueOnError bool
	open            provision.OpenFunc
	publisher       deploy.PackagePublisher
	logger          rootpkg.Logger
	metricsEnabled  *bool
	pipelineName    string
}

// New creates a new Orchestrator with the given options.
//
// Required options:
//   - WithDatabase or WithStore: source of work items
//
// Optional configuration (with defaults):
//   - WithAdminConnection: server admin connection (default: empty, runs are skipped)
//   - WithDialect: tenant server dialect (default: sqlserver)
//   - WithArtifacts: artifact paths (default: none)
//   - WithTemplates: per-item connection templates (default: admin connection)
//   - WithStatusCodes: work item and project codes (default: rootpkg.DefaultStatusCodes())
//   - WithSettleDelay: wait after CREATE DATABASE (default: 5s)
//   - WithRetry: script attempts and delay (default: 3 attempts, 2s)
//   - WithItemTimeout: per-item deadline (default: 10m)
//   - WithPollInterval: time between passes in Run (default: 1m)
//   - WithContinueOnError: keep polling after a failed pass (default: false)
//   - WithTableNames: scheduler table names (default: work_items, projects)
//   - WithPublisher: package publisher (default: sqlpackage on PATH)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//   - WithPipelineName: metrics label (default: "default")
//
// Example:
//
//	orch, err := orchestrator.New(
//	    orchestrator.WithDatabase(db, sqlstore.SQLServer),
//	    orchestrator.WithAdminConnection("Server=sql01;User ID=sa;Password=secret;"),
//	    orchestrator.WithArtifacts(pipeline.Artifacts{Script: "seed.sql"}),
//	)
//
// Returns an error if any required option is missing or invalid.
func New(opts ...Option) (rootpkg.Orchestrator, error) {
	// Apply defaults
	cfg := &config{
		dialect:      "sqlserver",
		tableConfig:  sqlstore.DefaultTableConfig(),
		pipelineName: "default",
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	// Validate required fields
	if cfg.workItemStore == nil && cfg.db == nil {
		return nil, fmt.Errorf("work item source is required: use WithDatabase or WithStore option")
	}
	dialect, err := provision.DialectByName(cfg.dialect)
	if err != nil {
		return nil, err
	}

	// Create work item store if not provided
	if cfg.workItemStore == nil {
		cfg.workItemStore = sqlstore.NewWithConfig(cfg.db, cfg.storeDialect, cfg.tableConfig)
	}

	var collector *metrics.Collector
	if cfg.metricsEnabled == nil || *cfg.metricsEnabled {
		collector = metrics.NewCollector(cfg.pipelineName)
	}

	ensurer := provision.New(provision.Config{
		Dialect:     dialect,
		Open:        cfg.open,
		SettleDelay: cfg.settleDelay,
		Logger:      cfg.logger,
		Collector:   collector,
	})

	runner := executor.New(executor.Config{
		DriverName:  dialect.DriverName(),
		Open:        executor.OpenFunc(cfg.open),
		MaxAttempts: cfg.maxAttempts,
		RetryDelay:  cfg.retryDelay,
		Logger:      cfg.logger,
		Collector:   collector,
	})

	deployer := deploy.New(deploy.Config{
		Ensurer:   ensurer,
		Runner:    runner,
		Publisher: cfg.publisher,
		Logger:    cfg.logger,
		Collector: collector,
	})

	tracker := lifecycle.New(lifecycle.Config{
		Store:         cfg.workItemStore,
		WorkItemCodes: cfg.workItemCodes,
		ProjectCodes:  cfg.projectCodes,
		Logger:        cfg.logger,
	})

	// Create and return the pipeline orchestrator
	orch := pipeline.New(pipeline.Config{
		Store:           cfg.workItemStore,
		Ensurer:         ensurer,
		Deployer:        deployer,
		Tracker:         tracker,
		AdminConnection: cfg.adminConnection,
		Templates:       cfg.templates,
		Artifacts:       cfg.artifacts,
		Codes:           cfg.workItemCodes,
		ItemTimeout:     cfg.itemTimeout,
		PollInterval:    cfg.pollInterval,
		ContinueOnError: cfg.continueOnError,
		Logger:          cfg.logger,
		Collector:       collector,
	})

	return orch, nil
}

// WithDatabase reads work items from the scheduler tables in db.
func WithDatabase(db *sql.DB, dialect sqlstore.Dialect) Option {
	return func(c *config) {
		c.db = db
		c.storeDialect = dialect
	}
}

// WithStore sets a custom work item store.
// Use this if you want to provide your own implementation of store.WorkItemStore.
func WithStore(s store.WorkItemStore) Option {
	return func(c *config) {
		c.workItemStore = s
	}
}

// WithTableNames sets custom, optionally schema qualified, scheduler table names.
func WithTableNames(workItemsTable, projectsTable string) Option {
	return func(c *config) {
		c.tableConfig = sqlstore.TableConfig{
			WorkItemsTable: workItemsTable,
			ProjectsTable:  projectsTable,
		}
	}
}

// WithAdminConnection sets the connection string of the tenant server's admin login.
func WithAdminConnection(connection string) Option {
	return func(c *config) {
		c.adminConnection = connection
	}
}

// WithDialect selects the tenant server dialect: sqlserver, postgres or mysql.
func WithDialect(name string) Option {
	return func(c *config) {
		c.dialect = name
	}
}

// WithTemplates sets the per-item connection string templates.
func WithTemplates(templates pipeline.Templates) Option {
	return func(c *config) {
		c.templates = templates
	}
}

// WithArtifacts sets the artifact paths.
func WithArtifacts(artifacts pipeline.Artifacts) Option {
	return func(c *config) {
		c.artifacts = artifacts
	}
}

// WithStatusCodes sets the codes written on work items and on projects.
func WithStatusCodes(workItem, project rootpkg.StatusCodes) Option {
	return func(c *config) {
		c.workItemCodes = &workItem
		c.projectCodes = &project
	}
}

// WithSettleDelay sets the wait after a database is created. Negative disables it.
func WithSettleDelay(delay time.Duration) Option {
	return func(c *config) {
		c.settleDelay = delay
	}
}

// WithRetry sets the script attempts and the fixed delay between them.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(c *config) {
		c.maxAttempts = maxAttempts
		c.retryDelay = delay
	}
}

// WithItemTimeout sets the per-item deadline.
func WithItemTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.itemTimeout = timeout
	}
}

// WithPollInterval sets the time between passes in Run.
func WithPollInterval(interval time.Duration) Option {
	return func(c *config) {
		c.pollInterval = interval
	}
}

// WithContinueOnError keeps Run polling after a failed pass.
func WithContinueOnError(enabled bool) Option {
	return func(c *config) {
		c.continueOnError = enabled
	}
}

// WithOpener sets the function used to open tenant server connections.
// Defaults to sql.Open.
func WithOpener(open provision.OpenFunc) Option {
	return func(c *config) {
		c.open = open
	}
}

// WithPublisher sets the package publisher.
func WithPublisher(publisher deploy.PackagePublisher) Option {
	return func(c *config) {
		c.publisher = publisher
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger rootpkg.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// WithPipelineName sets the pipeline label on every metric.
func WithPipelineName(name string) Option {
	return func(c *config) {
		c.pipelineName = name
	}
}

// RunMigrations creates the scheduler tables in db.
// adapter is one of migrations.Adapters. SQL Server migrations are executed
// one batch at a time.
//
// This should typically be run once during application deployment or startup.
func RunMigrations(ctx context.Context, db *sql.DB, adapter string, config migrations.Config) error {
	ddl, err := migrations.Render(adapter, &config)
	if err != nil {
		return err
	}

	statements := []string{ddl}
	if adapter == "sqlserver" {
		statements = batch.Split(ddl)
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migrations (batch %d of %d): %w", i+1, len(statements), err)
		}
	}

	return nil
}
