package poller

import "errors"

// Domain errors for the poller package.
var (
	// ErrPollInFlight is returned when a poll is requested while another
	// one is still running. The request is counted as skipped.
	ErrPollInFlight = errors.New("poller: poll already in flight")

	// ErrStopped is returned when a poll is requested after Stop.
	ErrStopped = errors.New("poller: stopped")
)
