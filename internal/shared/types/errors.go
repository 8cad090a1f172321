package types

import "errors"

// Error taxonomy shared by the domain packages. Callers match with errors.Is.
var (
	// ErrNotRegistered is returned for a widget identity unknown to the registry.
	ErrNotRegistered = errors.New("widget not registered")
	// ErrPermissionDenied is the soft failure for a missing grant; the
	// capability is disabled and the UI offers a request affordance.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConflictingPin is returned when a pin would duplicate a unique instance.
	ErrConflictingPin = errors.New("conflicting pin")
	// ErrPersistence wraps settings store read/write failures.
	ErrPersistence = errors.New("settings persistence failure")
	// ErrChannel wraps single-instance command channel failures.
	ErrChannel = errors.New("command channel failure")
	// ErrInvalidArgument is a caller contract violation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUndeclaredScope is returned when a widget uses a scope it never declared.
	ErrUndeclaredScope = errors.New("scope not declared by widget")
)
