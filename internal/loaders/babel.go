package loaders

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// newBabelStep lowers modern script syntax to the configured target. The
// module format is preserved so the engine can still follow imports.
func newBabelStep(target api.Target) Step {
	return StepFunc{
		StepName: "babel-loader",
		Fn: func(ctx context.Context, src Source) (Source, error) {
			loader := src.Loader
			if loader == api.LoaderJS {
				// plain .js files may carry JSX, as they would under a babel preset
				loader = api.LoaderJSX
			}

			result := api.Transform(src.Contents, api.TransformOptions{
				Loader:     loader,
				Target:     target,
				Sourcefile: src.Path,
				JSX:        api.JSXAutomatic,
				LogLevel:   api.LogLevelSilent,
			})
			if len(result.Errors) > 0 {
				return Source{}, messagesError(result.Errors)
			}

			return Source{
				Path:     src.Path,
				Contents: string(result.Code),
				Loader:   api.LoaderJS,
			}, nil
		},
	}
}

func messagesError(msgs []api.Message) error {
	text := msgs[0].Text
	if loc := msgs[0].Location; loc != nil {
		text = fmt.Sprintf("%d:%d: %s", loc.Line, loc.Column, text)
	}
	if len(msgs) > 1 {
		text = fmt.Sprintf("%s (and %d more)", text, len(msgs)-1)
	}
	return fmt.Errorf("%w: %s", ErrTransform, text)
}
