package domain

import "errors"

// Sentinel errors for storage operations
var (
	// ErrNotFound indicates the requested key does not exist in the backend.
	// Record reads translate this into a default record; it is never a
	// mid-operation fault.
	ErrNotFound = errors.New("not found")

	// ErrNoBackend indicates no compatible and usable storage backend is
	// registered. Fatal for the caller; there is no retry because the
	// condition will not resolve without user action.
	ErrNoBackend = errors.New("no storage backend available")

	// ErrBlocked indicates the backend could not be opened because another
	// connection holds it. Surfaced once, never retried automatically.
	ErrBlocked = errors.New("storage backend is blocked by another connection")

	// ErrMigration indicates the schema upgrade failed. Fatal for the
	// session; the idempotent ladder is re-run on the next open.
	ErrMigration = errors.New("schema migration failed")
)
