package command

import (
	"errors"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// Domain errors for the command package.
var (
	// ErrInvalidArgument is returned when a command fails validation. No
	// network call is made.
	ErrInvalidArgument = errors.New("command: invalid argument")

	// ErrUnknownEntity is returned when the target device or zone is not in
	// the model. It is the model's sentinel so errors.Is works across both.
	ErrUnknownEntity = model.ErrUnknownEntity
)
