package store

import "errors"

// Common errors for the persistence layer.
var (
	// Backend errors
	ErrKeyNotFound   = errors.New("store: key not found")
	ErrQuotaExceeded = errors.New("store: storage quota exceeded")
	ErrBackendClosed = errors.New("store: backend is closed")

	// Payload errors
	ErrCorruptPayload = errors.New("store: payload is not parseable")
	ErrCorruptShape   = errors.New("store: payload failed shape check")
)
