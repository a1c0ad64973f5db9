package deploy

import (
	"context"

	provisioner "github.com/getpup/tenant-provisioner"
)

// ArtifactDeployer applies a resolved artifact to a target database.
// This interface allows for mock implementations in tests.
type ArtifactDeployer interface {
	Deploy(ctx context.Context, artifact Artifact, targetDatabase, serverConnection string) provisioner.Outcome
}

var _ ArtifactDeployer = (*Deployer)(nil)
