package embedding

import "errors"

var (
	// ErrEmbedderRequired is returned when no ai.Embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when a retry policy allows no attempts.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrCountMismatch is returned when the provider returns a different
	// number of vectors than texts were sent.
	ErrCountMismatch = errors.New("embedding count mismatch")
)
