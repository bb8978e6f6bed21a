package pipeline

import "errors"

// Sentinel errors for the pipeline package.
var (
	// ErrNoCommands is returned by Execute when no command was set.
	ErrNoCommands = errors.New("pipeline: no commands configured")

	// ErrEmptyArgv is returned by AddCommand/SetCommand for a command
	// vector with no program name.
	ErrEmptyArgv = errors.New("pipeline: command argv must not be empty")

)
