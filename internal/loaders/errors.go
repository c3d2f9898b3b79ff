package loaders

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStep indicates a rule names a step that is not registered
	ErrUnknownStep = errors.New("unknown processing step")
	// ErrUnknownTarget indicates the configured language target is not recognised
	ErrUnknownTarget = errors.New("unknown language target")
	// ErrExtractionDisabled indicates the extraction step ran without the extraction plugin
	ErrExtractionDisabled = errors.New("css extraction step used without the mini-css-extract plugin")
	// ErrTransform indicates the engine rejected a file during transformation
	ErrTransform = errors.New("transform failed")
)

// StepError records which step failed on which file.
type StepError struct {
	Step string
	Path string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Path, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
