package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrQueryUser indicates the user or credential storage failed during a read.
	ErrQueryUser = errors.New("query user failed")
	// ErrUpdate indicates a write to the user or credential storage failed.
	ErrUpdate = errors.New("update failed")
	// ErrOrphanedCredentials marks a credentials write without an owning
	// user. It always travels together with ErrUpdate.
	ErrOrphanedCredentials = errors.New("credentials must reference a user")
	// ErrDuplicate indicates a unique constraint (email) was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrUnauthenticated indicates a missing or expired authentication session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
