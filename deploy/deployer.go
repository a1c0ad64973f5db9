package deploy

import (
	"context"
	"fmt"
	"os"
	"time"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/executor"
	"github.com/getpup/tenant-provisioner/metrics"
	"github.com/getpup/tenant-provisioner/provision"
)

// Config configures a Deployer.
type Config struct {
	// Ensurer confirms databases exist and scopes connections (required).
	Ensurer provision.DatabaseEnsurer

	// Runner executes scripts (required).
	Runner executor.Runner

	// Publisher applies packages (default: SqlPackage on PATH).
	Publisher PackagePublisher

	// Logger is an optional logger for observability.
	Logger provisioner.Logger

	// Collector records metrics. Nil disables metrics.
	Collector *metrics.Collector
}

// Deployer applies one artifact at a time. It does not retry; script
// retries happen inside the executor.
type Deployer struct {
	config Config
	schema *SchemaRunner
}

// New creates a Deployer.
func New(cfg Config) *Deployer {
	if cfg.Publisher == nil {
		cfg.Publisher = &SqlPackage{Logger: cfg.Logger}
	}
	return &Deployer{
		config: cfg,
		schema: &SchemaRunner{Runner: cfg.Runner, Logger: cfg.Logger},
	}
}

// Deploy applies artifact to targetDatabase. Failures are reported as a
// failed outcome wrapping an *ArtifactError.
func (d *Deployer) Deploy(ctx context.Context, artifact Artifact, targetDatabase, serverConnection string) provisioner.Outcome {
	start := time.Now()

	var outcome provisioner.Outcome
	switch artifact.Kind {
	case KindPackage:
		outcome = d.deployPackage(ctx, artifact, targetDatabase, serverConnection)
	case KindScript:
		outcome = d.deployScript(ctx, artifact, targetDatabase, serverConnection)
	case KindSchemaScript:
		outcome = d.deploySchema(ctx, artifact, targetDatabase, serverConnection)
	default:
		outcome = provisioner.Failed(fmt.Errorf("%w: kind %d", provisioner.ErrUnsupportedArtifact, artifact.Kind))
	}

	if outcome.State == provisioner.OutcomeFailed {
		outcome.Err = &ArtifactError{Role: artifact.Role, Path: artifact.Path, Err: outcome.Err}
	}

	d.config.Collector.IncArtifactDeploys(string(artifact.Role), outcome.State.String())
	d.config.Collector.ObserveArtifactDeployDuration(string(artifact.Role), time.Since(start).Seconds())

	if d.config.Logger != nil {
		d.config.Logger.Info(ctx, "artifact deployed",
			"role", artifact.Role,
			"kind", artifact.Kind.String(),
			"database", targetDatabase,
			"outcome", outcome.State.String(),
			"batches", outcome.Batches,
			"duration", time.Since(start))
	}
	return outcome
}

func (d *Deployer) deployPackage(ctx context.Context, artifact Artifact, targetDatabase, serverConnection string) provisioner.Outcome {
	pkg, err := LoadPackage(artifact.Path)
	if err != nil {
		return provisioner.Failed(err)
	}

	target, err := d.config.Ensurer.TargetConnection(serverConnection, targetDatabase)
	if err != nil {
		return provisioner.Failed(err)
	}

	if err := d.config.Publisher.Publish(ctx, pkg, target); err != nil {
		return provisioner.Failed(err)
	}
	return provisioner.Succeeded(0)
}

func (d *Deployer) deployScript(ctx context.Context, artifact Artifact, targetDatabase, serverConnection string) provisioner.Outcome {
	script, err := os.ReadFile(artifact.Path)
	if err != nil {
		return provisioner.Failed(fmt.Errorf("failed to read script: %w", err))
	}

	// Deployment order across artifacts is not guaranteed to have created it.
	if _, err := d.config.Ensurer.EnsureExists(ctx, serverConnection, targetDatabase); err != nil {
		return provisioner.Failed(err)
	}

	target, err := d.config.Ensurer.TargetConnection(serverConnection, targetDatabase)
	if err != nil {
		return provisioner.Failed(err)
	}

	n, err := d.config.Runner.Execute(ctx, target, string(script))
	if err != nil {
		return provisioner.Failed(err)
	}
	return provisioner.Succeeded(n)
}

func (d *Deployer) deploySchema(ctx context.Context, artifact Artifact, targetDatabase, serverConnection string) provisioner.Outcome {
	script, err := os.ReadFile(artifact.Path)
	if err != nil {
		return provisioner.Failed(fmt.Errorf("failed to read schema script: %w", err))
	}

	admin, err := d.config.Ensurer.AdminConnection(serverConnection)
	if err != nil {
		return provisioner.Failed(err)
	}
	return d.schema.Run(ctx, admin, string(script), targetDatabase)
}
