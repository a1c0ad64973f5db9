// Package deploy applies schema artifacts to tenant databases.
package deploy

import (
	"fmt"
	"path/filepath"
	"strings"

	provisioner "github.com/getpup/tenant-provisioner"
)

// Kind is the resolved type of an artifact.
type Kind int

const (
	// KindPackage is a declarative .dacpac package.
	KindPackage Kind = iota + 1

	// KindScript is an imperative .sql script run against the target database.
	KindScript

	// KindSchemaScript is the server-level schema script run from its
	// USE [master] batch onward.
	KindSchemaScript
)

// String returns the log label of the kind.
func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindScript:
		return "script"
	case KindSchemaScript:
		return "schema_script"
	default:
		return "unknown"
	}
}

// Role names the configuration slot an artifact came from.
type Role string

const (
	RolePackage Role = "package"
	RoleScript  Role = "script"
	RoleSchema  Role = "schema"
)

// DeployOrder is the fixed order in which configured roles are deployed.
var DeployOrder = []Role{RoleSchema, RolePackage, RoleScript}

// Artifact is a resolved deployment artifact.
type Artifact struct {
	Kind Kind
	Path string
	Role Role
}

// ResolveArtifact decides the kind of the artifact at path from its
// extension. A .sql file in the schema role is a schema script. Any other
// extension fails with provisioner.ErrUnsupportedArtifact.
func ResolveArtifact(role Role, path string) (Artifact, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dacpac":
		return Artifact{Kind: KindPackage, Path: path, Role: role}, nil
	case ".sql":
		if role == RoleSchema {
			return Artifact{Kind: KindSchemaScript, Path: path, Role: role}, nil
		}
		return Artifact{Kind: KindScript, Path: path, Role: role}, nil
	default:
		return Artifact{}, &ArtifactError{
			Role: role,
			Path: path,
			Err:  fmt.Errorf("%w: extension %q", provisioner.ErrUnsupportedArtifact, filepath.Ext(path)),
		}
	}
}

// UsesAdminConnection reports whether the artifact runs on the
// administrative connection rather than the tenant's connection.
func (a Artifact) UsesAdminConnection() bool {
	return a.Kind == KindSchemaScript
}
