package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks attempts to act on another reader's resources
	// or to use admin-only operations without the admin role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks duplicate creations (session pairs, result rows).
	ErrConflict = errors.New("already exists")
	// ErrConfigLocked marks writes to structural config fields after the
	// study configuration has been locked.
	ErrConfigLocked = errors.New("config locked")
	// ErrIllegalState marks operations against a session whose status
	// does not permit them (e.g. advancing a completed session).
	ErrIllegalState = errors.New("illegal state")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
)
