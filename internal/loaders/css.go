package loaders

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

func newCSSStep() Step {
	return StepFunc{
		StepName: "css-loader",
		Fn: func(ctx context.Context, src Source) (Source, error) {
			if src.Loader != api.LoaderCSS {
				return Source{}, fmt.Errorf("%w: expected stylesheet input, got loader %d", ErrTransform, src.Loader)
			}

			result := api.Transform(src.Contents, api.TransformOptions{
				Loader:     api.LoaderCSS,
				Sourcefile: src.Path,
				LogLevel:   api.LogLevelSilent,
			})
			if len(result.Errors) > 0 {
				return Source{}, messagesError(result.Errors)
			}

			return Source{Path: src.Path, Contents: string(result.Code), Loader: api.LoaderCSS}, nil
		},
	}
}

// newExtractStep keeps the stylesheet as CSS so the engine emits it to a
// separate .css file beside the entry's script.
func newExtractStep(r *Registry) Step {
	return StepFunc{
		StepName: "mini-css-extract-plugin/loader",
		Fn: func(ctx context.Context, src Source) (Source, error) {
			if !r.extractionEnabled() {
				return Source{}, ErrExtractionDisabled
			}
			if src.Loader != api.LoaderCSS {
				return Source{}, fmt.Errorf("%w: only stylesheets can be extracted", ErrTransform)
			}
			return src, nil
		},
	}
}

const styleModule = `(function () {
  if (typeof document === "undefined") return;
  var style = document.createElement("style");
  style.setAttribute("data-source", %s);
  style.appendChild(document.createTextNode(%s));
  document.head.appendChild(style);
})();
`

// newStyleStep turns a stylesheet into a script that injects it at runtime.
func newStyleStep() Step {
	return StepFunc{
		StepName: "style-loader",
		Fn: func(ctx context.Context, src Source) (Source, error) {
			if src.Loader != api.LoaderCSS {
				return Source{}, fmt.Errorf("%w: only stylesheets can be injected", ErrTransform)
			}

			css, err := json.Marshal(src.Contents)
			if err != nil {
				return Source{}, err
			}
			name, err := json.Marshal(filepath.Base(src.Path))
			if err != nil {
				return Source{}, err
			}

			return Source{
				Path:     src.Path,
				Contents: fmt.Sprintf(styleModule, name, css),
				Loader:   api.LoaderJS,
			}, nil
		},
	}
}
