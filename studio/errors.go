package studio

import "errors"

// Common errors for the studio layer.
var (
	// ErrInvalidConfig indicates a configuration value failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrContextClosed indicates the cache context has been disposed.
	ErrContextClosed = errors.New("cache context has been closed")
)
