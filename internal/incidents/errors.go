package incidents

import "errors"

// Repository errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
)

// Validation errors.
var (
	ErrInvalidStatus   = errors.New("invalid incident status")
	ErrInvalidSeverity = errors.New("invalid incident severity")
	ErrUnknownMember   = errors.New("unknown team member")
	ErrEmptyNote       = errors.New("note must not be empty")
)
