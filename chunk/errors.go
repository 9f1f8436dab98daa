package chunk

import "errors"

var (
	// ErrTokenizerRequired is returned when a Chunker is built without a tokenizer.
	ErrTokenizerRequired = errors.New("tokenizer is required")

	// ErrUnknownStrategy is returned for an unrecognized chunking strategy.
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
)
