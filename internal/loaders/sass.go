package loaders

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultSassBinary = "sass"

// sassCompiler owns a Dart Sass process, started on first use.
type sassCompiler struct {
	binary       string
	includePaths []string

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

func newSassCompiler(binary string, includePaths []string) *sassCompiler {
	if binary == "" {
		binary = defaultSassBinary
	}
	return &sassCompiler{binary: binary, includePaths: includePaths}
}

func (c *sassCompiler) start(ctx context.Context) (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transpiler != nil && !c.transpiler.IsShutDown() {
		return c.transpiler, nil
	}

	binary, err := exec.LookPath(c.binary)
	if err != nil {
		return nil, fmt.Errorf("dart sass not available: %w", err)
	}

	t, err := backoff.Retry(ctx, func() (*godartsass.Transpiler, error) {
		return godartsass.Start(godartsass.Options{
			DartSassEmbeddedFilename: binary,
			Timeout:                  30 * time.Second,
			LogEventHandler: func(e godartsass.LogEvent) {
				log.Warn().Str("sass", e.Message).Msg("Sass compiler message")
			},
		})
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return nil, fmt.Errorf("failed to start dart sass: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Str("binary", binary).Msg("Started sass compiler")
	c.transpiler = t
	return t, nil
}

func (c *sassCompiler) compile(ctx context.Context, path, source string, syntax godartsass.SourceSyntax) (string, error) {
	t, err := c.start(ctx)
	if err != nil {
		return "", err
	}

	includePaths := append([]string{filepath.Dir(path)}, c.includePaths...)
	result, err := t.Execute(godartsass.Args{
		Source:       source,
		URL:          "file://" + filepath.ToSlash(path),
		SourceSyntax: syntax,
		OutputStyle:  godartsass.OutputStyleExpanded,
		IncludePaths: includePaths,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransform, err)
	}
	return result.CSS, nil
}

func (c *sassCompiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transpiler == nil {
		return nil
	}
	err := c.transpiler.Close()
	c.transpiler = nil
	if errors.Is(err, godartsass.ErrShutdown) {
		return nil
	}
	return err
}

// newSassStep compiles .scss and .sass sources to CSS. Plain .css passes
// through untouched so the same rule can serve all three extensions.
func newSassStep(c *sassCompiler) Step {
	return StepFunc{
		StepName: "sass-loader",
		Fn: func(ctx context.Context, src Source) (Source, error) {
			var syntax godartsass.SourceSyntax
			switch strings.ToLower(filepath.Ext(src.Path)) {
			case ".scss":
				syntax = godartsass.SourceSyntaxSCSS
			case ".sass":
				syntax = godartsass.SourceSyntaxSASS
			default:
				return src, nil
			}

			css, err := c.compile(ctx, src.Path, src.Contents, syntax)
			if err != nil {
				return Source{}, err
			}
			return Source{Path: src.Path, Contents: css, Loader: api.LoaderCSS}, nil
		},
	}
}
