package bundler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var (
	// ErrBuildFailed is wrapped by every BuildError
	ErrBuildFailed = errors.New("build failed")
	// ErrUnsafeClean indicates the output directory would remove the project's own sources
	ErrUnsafeClean = errors.New("refusing to clean output directory")
)

// BuildError carries every error message the engine reported.
type BuildError struct {
	Messages []api.Message
}

func (e *BuildError) Error() string {
	lines := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		lines = append(lines, formatMessage(msg))
	}
	return fmt.Sprintf("%s with %d error(s):\n%s", ErrBuildFailed, len(e.Messages), strings.Join(lines, "\n"))
}

func (e *BuildError) Unwrap() error {
	return ErrBuildFailed
}

func formatMessage(msg api.Message) string {
	var b strings.Builder
	if msg.Location != nil {
		fmt.Fprintf(&b, "%s:%d:%d: ", msg.Location.File, msg.Location.Line, msg.Location.Column)
	}
	if msg.PluginName != "" {
		fmt.Fprintf(&b, "[%s] ", msg.PluginName)
	}
	b.WriteString(msg.Text)
	return b.String()
}
