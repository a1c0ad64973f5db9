package deploy

import (
	"context"
	"strings"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/batch"
	"github.com/getpup/tenant-provisioner/executor"
)

const (
	// SchemaMarker is the batch the schema script starts executing from.
	SchemaMarker = "USE [master]"

	// DatabaseNameVariable is replaced with the target database name.
	DatabaseNameVariable = "$(DatabaseName)"
)

// SchemaRunner runs the server-level schema script. Batches before the
// first one containing SchemaMarker are authoring preamble and never run.
type SchemaRunner struct {
	Runner executor.Runner
	Logger provisioner.Logger
}

// PrepareSchema substitutes the database name into script and returns the
// batches from the marker onward. It reports false when no batch carries
// the marker.
func PrepareSchema(script, databaseName string) ([]string, bool) {
	script = strings.ReplaceAll(script, DatabaseNameVariable, databaseName)
	return batch.FromMarker(batch.Split(script), SchemaMarker)
}

// Run executes script for databaseName against serverConnection.
// Without a marker nothing runs and the outcome is skipped.
func (r *SchemaRunner) Run(ctx context.Context, serverConnection, script, databaseName string) provisioner.Outcome {
	batches, ok := PrepareSchema(script, databaseName)
	if !ok {
		if r.Logger != nil {
			r.Logger.Warn(ctx, "schema script has no marker batch, nothing executed",
				"marker", SchemaMarker,
				"database", databaseName)
		}
		return provisioner.Skipped(provisioner.ErrMarkerNotFound.Error())
	}

	n, err := r.Runner.ExecuteBatches(ctx, serverConnection, batches)
	if err != nil {
		return provisioner.Failed(err)
	}
	return provisioner.Succeeded(n)
}
