package events

import "errors"

// Domain errors for the events package.
var (
	// ErrMalformedEvent is returned when a webhook payload is not valid JSON
	// or lacks its type or device id.
	ErrMalformedEvent = errors.New("events: malformed event")
)
