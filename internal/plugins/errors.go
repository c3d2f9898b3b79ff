package plugins

import "errors"

var (
	// ErrUnknownPlugin indicates an activation names a plugin that is not registered
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrInvalidOptions indicates a plugin rejected its options
	ErrInvalidOptions = errors.New("invalid plugin options")
	// ErrNoReport indicates no analyzer stats exist in the output directory
	ErrNoReport = errors.New("no bundle report found")
)
