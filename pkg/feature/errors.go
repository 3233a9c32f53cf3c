package feature

import "errors"

// Predefined errors for the feature package.
var (
	// ErrFlagNotFound indicates that the requested feature flag was not found.
	// Evaluate never returns it; administrative lookups and analytics do.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrSegmentNotFound indicates that the requested segment was not found.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrExperimentNotFound indicates that the requested experiment was not found.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrValidation indicates a malformed mutation payload. The joined detail
	// names the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateKey indicates a flag key or name collision at creation time.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidTransition indicates a disallowed experiment status change.
	ErrInvalidTransition = errors.New("invalid experiment status transition")

	// ErrStorageNotInitialized indicates the store or usage storage is not
	// properly initialized.
	ErrStorageNotInitialized = errors.New("storage not initialized")
)
