package store

import "errors"

var (
	// ErrWorkItemNotFound indicates the work item does not exist.
	ErrWorkItemNotFound = errors.New("work item not found")

	// ErrProjectNotFound indicates the project does not exist.
	ErrProjectNotFound = errors.New("project not found")
)
