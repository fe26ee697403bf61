package rachio

import "errors"

// Domain errors for the Rachio bridge package.
var (
	// ErrNoConnection is returned when no connection owns a webhook event
	// or command target.
	ErrNoConnection = errors.New("rachio: no connection for target")

	// ErrDuplicateAccount is returned when two accounts share an id.
	ErrDuplicateAccount = errors.New("rachio: duplicate account id")

	// ErrUnknownCommand is returned for a command name the bridge does not
	// implement for the target kind.
	ErrUnknownCommand = errors.New("rachio: unknown command")

	// ErrInvalidParameters is returned when command parameters are missing
	// or have the wrong type.
	ErrInvalidParameters = errors.New("rachio: invalid command parameters")

	// ErrNotStarted is returned by operations that need a running bridge.
	ErrNotStarted = errors.New("rachio: bridge not started")
)
