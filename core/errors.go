package core

import "errors"

var (
	// ErrValidation marks input that does not satisfy the current step.
	// It never leaves the engine; the step is re-prompted.
	ErrValidation = errors.New("validation failed")

	// ErrCollaboratorUnavailable marks a failed or timed out collaborator
	// call (classifier, media store, notifier). Callers degrade to a fallback.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrPersistence marks a failed record write at finalization.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound is returned when a session or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionCorruption marks a session whose flow/step no longer exists
	// in the step graph.
	ErrSessionCorruption = errors.New("session inconsistent with step graph")

	// ErrDuplicate is returned when a unique key (ticket id, message id) is
	// already taken.
	ErrDuplicate = errors.New("duplicate")
)
