package vectorindex

import "errors"

var (
	// ErrEmptyFilter is returned by DeleteByFilter when no condition is set.
	ErrEmptyFilter = errors.New("refusing to delete with an empty filter")

	// ErrDimensionMismatch is returned when a vector does not match the
	// collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCollectionRequired is returned when an adapter is built without a collection name.
	ErrCollectionRequired = errors.New("collection name required")
)
