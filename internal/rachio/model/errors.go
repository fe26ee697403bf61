package model

import "errors"

// Domain errors for the model package.
var (
	// ErrUnknownEntity is returned when a device or zone id is not present
	// in the model.
	ErrUnknownEntity = errors.New("model: unknown entity")
)
