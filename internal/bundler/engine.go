// Package bundler hands a build configuration to the esbuild engine and
// emits what it produces.
package bundler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/loaders"
	"github.com/wolfeidau/webbundle/internal/plugins"
	"github.com/wolfeidau/webbundle/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Result describes one completed build.
type Result struct {
	BuildID     string
	Outputs     []plugins.Output
	Stylesheets []string
	Metafile    string
	Warnings    []string
	// Digest identifies the emitted bytes; identical inputs give identical digests
	Digest   string
	Duration time.Duration
}

// Paths returns the output paths relative to the output directory.
func (r *Result) Paths() []string {
	paths := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		paths[i] = o.Path
	}
	return paths
}

// Engine runs builds for a single configuration.
type Engine struct {
	cfg       *config.Config
	workDir   string
	loaders   *loaders.Registry
	plugins   []plugins.Plugin
	pipelines []*loaders.Pipeline

	pluginRegistry *plugins.Registry
	customSteps    []loaders.Step

	mu sync.Mutex
}

type Option func(*Engine)

// WithPluginRegistry replaces the built-in plugin registry.
func WithPluginRegistry(r *plugins.Registry) Option {
	return func(e *Engine) { e.pluginRegistry = r }
}

// WithStep registers an extra processing step, or overrides a built-in one.
func WithStep(step loaders.Step) Option {
	return func(e *Engine) { e.customSteps = append(e.customSteps, step) }
}

// New prepares an engine: plugins are instantiated in list order and every
// rule's pipeline is resolved, so unknown names fail here rather than
// mid-build.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	workDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base dir: %w", err)
	}

	e := &Engine{cfg: cfg, workDir: workDir}
	for _, opt := range opts {
		opt(e)
	}
	if e.pluginRegistry == nil {
		e.pluginRegistry = plugins.NewRegistry()
	}

	e.loaders, err = loaders.NewRegistry(loaders.Options{
		Target:           cfg.Target,
		SassBinary:       cfg.Sass.Binary,
		SassIncludePaths: resolveAll(cfg, cfg.Sass.IncludePaths),
	})
	if err != nil {
		return nil, err
	}
	for _, step := range e.customSteps {
		e.loaders.Register(step)
	}

	e.plugins, err = e.pluginRegistry.Instantiate(cfg.Plugins)
	if err != nil {
		return nil, err
	}
	for _, p := range e.plugins {
		if lc, ok := p.(plugins.LoaderConfigurer); ok {
			lc.ConfigureLoaders(e.loaders)
		}
	}

	for i, rule := range cfg.Module.Rules {
		if rule.Test == nil || rule.Test.Regexp == nil {
			return nil, fmt.Errorf("module.rules[%d]: %w: test is required", i, config.ErrInvalidConfig)
		}
		pipeline, err := e.loaders.NewPipeline(rule.Use)
		if err != nil {
			return nil, fmt.Errorf("module.rules[%d]: %w", i, err)
		}
		e.pipelines = append(e.pipelines, pipeline)
	}

	return e, nil
}

// Close releases loader resources.
func (e *Engine) Close() error {
	return e.loaders.Close()
}

// Plugins returns the activated plugins in list order.
func (e *Engine) Plugins() []plugins.Plugin {
	return e.plugins
}

// Options returns the engine options a build would run with.
func (e *Engine) Options(ctx context.Context) (api.BuildOptions, error) {
	opts, err := baseOptions(e.cfg, e.workDir)
	if err != nil {
		return api.BuildOptions{}, err
	}
	opts.Plugins = []api.Plugin{e.rulesPlugin(ctx)}

	for _, p := range e.plugins {
		if err := p.Configure(&opts); err != nil {
			return api.BuildOptions{}, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
	}
	return opts, nil
}

// Build runs one build, writes its outputs and runs the plugins' Done hooks.
func (e *Engine) Build(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	ctx, buildID := withBuildID(ctx)

	zerolog.Ctx(ctx).Info().
		Strs("entrypoints", e.cfg.EntryNames()).
		Str("output", e.cfg.OutputDir()).
		Msg("Building bundle")

	opts, err := e.Options(ctx)
	if err != nil {
		return nil, err
	}

	result := api.Build(opts)
	return e.finish(ctx, buildID, result, started)
}

// Watch builds once and then rebuilds whenever an input changes, until ctx is
// cancelled. onResult is called after every build, successful or not.
func (e *Engine) Watch(ctx context.Context, onResult func(*Result, error)) error {
	opts, err := e.Options(ctx)
	if err != nil {
		return err
	}

	opts.Plugins = append(opts.Plugins, api.Plugin{
		Name: "watch-emit",
		Setup: func(build api.PluginBuild) {
			var started time.Time
			build.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				e.mu.Lock()
				defer e.mu.Unlock()

				buildCtx, buildID := withBuildID(ctx)
				res, err := e.finish(buildCtx, buildID, *result, started)
				onResult(res, err)
				return api.OnEndResult{}, nil
			})
		},
	})

	bctx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return &BuildError{Messages: ctxErr.Errors}
	}
	defer bctx.Dispose()

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("output", e.cfg.OutputDir()).Msg("Watching for changes")

	<-ctx.Done()
	return nil
}

func (e *Engine) finish(ctx context.Context, buildID string, result api.BuildResult, started time.Time) (res *Result, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bundler.Build")
	defer span.End()
	span.SetAttributes(attribute.String("build_id", buildID))

	metrics := telemetry.GetMetrics()
	logger := zerolog.Ctx(ctx)

	defer func() {
		metrics.BuildsTotal.Add(ctx, 1)
		metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
		if err != nil {
			metrics.BuildErrorsTotal.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	warnings := make([]string, 0, len(result.Warnings))
	for _, msg := range result.Warnings {
		warnings = append(warnings, formatMessage(msg))
		logger.Warn().Str("warning", formatMessage(msg)).Msg("Build warning")
	}

	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			logger.Error().Str("error", formatMessage(msg)).Msg("Build error")
		}
		return nil, &BuildError{Messages: result.Errors}
	}

	outDir := e.cfg.OutputDir()
	outputs, err := collectOutputs(outDir, result.OutputFiles)
	if err != nil {
		return nil, err
	}

	if e.cfg.Output.Clean {
		if err := cleanDir(outDir, e.workDir); err != nil {
			return nil, err
		}
	}
	if err := writeOutputs(outputs); err != nil {
		return nil, err
	}

	var size int64
	for _, o := range outputs {
		size += int64(len(o.Contents))
		logger.Info().Str("file", o.Path).Int("bytes", len(o.Contents)).Msg("Built file")
	}
	metrics.OutputFilesTotal.Add(ctx, int64(len(outputs)))
	metrics.OutputBytesTotal.Add(ctx, size, metric.WithAttributes(attribute.String("output", outDir)))

	build := &plugins.Build{
		WorkingDir: e.workDir,
		OutputDir:  outDir,
		Metafile:   result.Metafile,
		Outputs:    outputs,
	}
	for _, p := range e.plugins {
		if err := p.Done(ctx, build); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
	}

	res = &Result{
		BuildID:     buildID,
		Outputs:     outputs,
		Stylesheets: build.Stylesheets,
		Metafile:    result.Metafile,
		Warnings:    warnings,
		Digest:      digest(outputs),
		Duration:    time.Since(started),
	}

	logger.Info().
		Str("digest", res.Digest).
		Int("files", len(outputs)).
		Dur("duration", res.Duration).
		Msg("Build complete")

	return res, nil
}

func withBuildID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Str("build_id", id).Logger()
	return logger.WithContext(ctx), id
}

func resolveAll(cfg *config.Config, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = cfg.Resolve(p)
	}
	return out
}
