package config

import "errors"

var (
	// ErrInvalidConfig is wrapped by every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownBackend is returned for backend names that are not supported.
	ErrUnknownBackend = errors.New("unknown backend")
)
