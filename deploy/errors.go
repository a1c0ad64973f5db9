package deploy

import (
	"errors"
	"fmt"
)

// ErrInvalidPackage indicates a .dacpac file that is not a valid package archive.
var ErrInvalidPackage = errors.New("invalid dacpac package")

// ArtifactError reports which configured artifact failed.
type ArtifactError struct {
	Role Role
	Path string
	Err  error
}

// Error implements error.
func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s artifact %s: %v", e.Role, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ArtifactError) Unwrap() error {
	return e.Err
}
