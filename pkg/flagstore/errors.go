package flagstore

import "errors"

// Predefined errors for the flagstore package.
var (
	// ErrInvalidFixture indicates a YAML fixture file that could not be
	// parsed or failed validation.
	ErrInvalidFixture = errors.New("invalid flag fixture file")

	// ErrMarshalSnapshot indicates a snapshot could not be encoded for or
	// decoded from storage.
	ErrMarshalSnapshot = errors.New("failed to marshal flag snapshot")
)
