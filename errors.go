package provisioner

import "errors"

var (
	// ErrUnsupportedArtifact indicates an artifact path whose extension is neither .dacpac nor .sql.
	ErrUnsupportedArtifact = errors.New("unsupported artifact")

	// ErrInvalidDatabaseName indicates a database name that is not a sanitized identifier.
	// Database names are interpolated into CREATE DATABASE and must never come from raw input.
	ErrInvalidDatabaseName = errors.New("invalid database name")

	// ErrRetriesExhausted indicates every batch execution attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNoAdminConnection indicates the administrative connection string is not configured.
	// A run treats this as nothing to do rather than a failure.
	ErrNoAdminConnection = errors.New("admin connection string not configured")

	// ErrMarkerNotFound indicates a schema script has no USE [master] batch.
	ErrMarkerNotFound = errors.New("schema script marker not found")
)
