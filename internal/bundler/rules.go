package bundler

import (
	"context"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/webbundle/internal/loaders"
	"github.com/wolfeidau/webbundle/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const rulesPluginName = "module-rules"

// rulesPlugin registers one load callback per rule, in rule order. The engine
// stops at the first callback that returns contents, so the first matching
// rule is the only one applied to a file.
func (e *Engine) rulesPlugin(ctx context.Context) api.Plugin {
	return api.Plugin{
		Name: rulesPluginName,
		Setup: func(build api.PluginBuild) {
			for i, rule := range e.cfg.Module.Rules {
				pipeline := e.pipelines[i]
				build.OnLoad(api.OnLoadOptions{Filter: rule.Test.String(), Namespace: "file"},
					func(args api.OnLoadArgs) (api.OnLoadResult, error) {
						return e.load(ctx, pipeline, args.Path)
					})
			}
		},
	}
}

func (e *Engine) load(ctx context.Context, pipeline *loaders.Pipeline, path string) (api.OnLoadResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bundler.load")
	defer span.End()
	span.SetAttributes(attribute.String("path", path), attribute.StringSlice("steps", pipeline.Names()))

	metrics := telemetry.GetMetrics()

	data, err := os.ReadFile(path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	src, err := pipeline.Run(ctx, loaders.Source{Path: path, Contents: string(data)})
	if err != nil {
		metrics.LoaderErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("ext", filepath.Ext(path))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return api.OnLoadResult{}, err
	}
	metrics.LoaderStepsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("ext", filepath.Ext(path))))

	resolveDir := filepath.Dir(path)
	return api.OnLoadResult{
		Contents:   &src.Contents,
		ResolveDir: resolveDir,
		Loader:     src.Loader,
		WatchFiles: []string{path},
	}, nil
}
