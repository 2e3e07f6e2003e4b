package label

import "errors"

// Registry errors.
var (
	// ErrNotLoaded is returned when a query is issued before the
	// registry has completed its mandatory load step. Failing fast here
	// is deliberate: answering from an unsynchronized graph would
	// silently produce wrong label assignments downstream.
	ErrNotLoaded = errors.New("label registry not loaded")

	// ErrLabelExists is returned when creating a label whose id is
	// already taken.
	ErrLabelExists = errors.New("label already exists")

	// ErrLabelNotFound is returned when a mutation names an unknown
	// label id.
	ErrLabelNotFound = errors.New("label not found")

	// ErrSpecialLabel is returned when a mutation targets the reserved
	// namespace.
	ErrSpecialLabel = errors.New("label id is reserved")
)
