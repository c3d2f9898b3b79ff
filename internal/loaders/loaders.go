// Package loaders implements the named processing steps that loader rules
// route source files through before they reach the bundler engine.
package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
)

// Source is a file's contents as it moves through a pipeline. Loader tells
// the engine how to interpret Contents once the pipeline finishes.
type Source struct {
	Path     string
	Contents string
	Loader   api.Loader
}

// Step is a single named transformation.
type Step interface {
	Name() string
	Apply(ctx context.Context, src Source) (Source, error)
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, src Source) (Source, error)
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Apply(ctx context.Context, src Source) (Source, error) {
	return s.Fn(ctx, src)
}

// Options configures the built-in steps.
type Options struct {
	// Target is the language level for script lowering (e.g. "es2015").
	Target string
	// SassBinary is the Dart Sass executable; empty means "sass" on PATH.
	SassBinary string
	// SassIncludePaths are extra load paths for the Sass compiler.
	SassIncludePaths []string
}

// Registry resolves step identifiers to steps.
type Registry struct {
	mu      sync.RWMutex
	steps   map[string]Step
	extract bool
	sass    *sassCompiler
}

// NewRegistry returns a registry holding the built-in steps.
func NewRegistry(opts Options) (*Registry, error) {
	target, err := ParseTarget(opts.Target)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		steps: make(map[string]Step),
		sass:  newSassCompiler(opts.SassBinary, opts.SassIncludePaths),
	}

	r.Register(newBabelStep(target))
	r.Register(newCSSStep())
	r.Register(newSassStep(r.sass))
	r.Register(newStyleStep())
	r.Register(newExtractStep(r))

	return r, nil
}

// Register adds or replaces a step under its own name.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Name()] = step
}

// Lookup returns the step registered under name.
func (r *Registry) Lookup(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, name)
	}
	return step, nil
}

// EnableExtraction allows the CSS extraction step to run. It is switched on by
// the CSS extraction plugin.
func (r *Registry) EnableExtraction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extract = true
}

func (r *Registry) extractionEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extract
}

// Close releases resources held by steps, such as the Sass compiler process.
func (r *Registry) Close() error {
	return r.sass.Close()
}

// Pipeline is an ordered list of steps as written in a rule.
type Pipeline struct {
	steps []Step
}

// NewPipeline resolves each identifier in listed order.
func (r *Registry) NewPipeline(use []string) (*Pipeline, error) {
	steps := make([]Step, 0, len(use))
	for _, name := range use {
		step, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return &Pipeline{steps: steps}, nil
}

// Names returns the step identifiers in listed order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run applies the steps right to left: the last listed step sees the file
// first and each step's output feeds the step listed before it.
func (p *Pipeline) Run(ctx context.Context, src Source) (Source, error) {
	if src.Loader == api.LoaderNone {
		src.Loader = LoaderFor(src.Path)
	}

	for i := len(p.steps) - 1; i >= 0; i-- {
		step := p.steps[i]
		zerolog.Ctx(ctx).Debug().Str("step", step.Name()).Str("path", src.Path).Msg("Applying step")

		out, err := step.Apply(ctx, src)
		if err != nil {
			return Source{}, &StepError{Step: step.Name(), Path: src.Path, Err: err}
		}
		src = out
	}
	return src, nil
}

// LoaderFor returns the engine loader implied by a file's extension.
func LoaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return api.LoaderJS
	case ".jsx":
		return api.LoaderJSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".css", ".scss", ".sass":
		return api.LoaderCSS
	case ".json":
		return api.LoaderJSON
	default:
		return api.LoaderFile
	}
}

// ParseTarget maps a target name such as "es2015" or "esnext" to the engine's
// target constant. An empty name means esnext.
func ParseTarget(name string) (api.Target, error) {
	switch strings.ToLower(name) {
	case "", "esnext":
		return api.ESNext, nil
	case "es5":
		return api.ES5, nil
	case "es6", "es2015":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "es2023":
		return api.ES2023, nil
	case "es2024":
		return api.ES2024, nil
	}
	return api.DefaultTarget, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
}
