package config

import "errors"

var (
	// ErrInvalidConfig wraps every schema or validation failure
	ErrInvalidConfig = errors.New("invalid build configuration")
	// ErrEntryNotFound indicates an entry path does not resolve to a source file
	ErrEntryNotFound = errors.New("entry source file not found")
)
