package artifact

import "errors"

var (
	// ErrNotFound is returned when no artifact exists for the identity / id pair.
	ErrNotFound = errors.New("artifact not found")

	// ErrEmptyRef is returned when an attachment carries no source reference.
	ErrEmptyRef = errors.New("attachment without reference")
)
