package pkg

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any state changed.
	ErrValidation = errors.New("validation failed")
)
