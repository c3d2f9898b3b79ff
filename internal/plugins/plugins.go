// Package plugins holds the plugins a build configuration can activate. Each
// plugin gets a hook before the engine runs and another once outputs have
// been written.
package plugins

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/loaders"
	"gopkg.in/yaml.v3"
)

// Output is one emitted artifact.
type Output struct {
	// Path is relative to the output directory, slash separated
	Path     string
	AbsPath  string
	Contents []byte
}

// Build describes a finished build as seen by plugins.
type Build struct {
	// WorkingDir is the directory metafile paths are relative to
	WorkingDir string
	OutputDir  string
	Metafile   string
	Outputs    []Output

	// Stylesheets is filled in by the extraction plugin
	Stylesheets []string
}

// Plugin is a build lifecycle participant.
type Plugin interface {
	Name() string
	// Configure adjusts engine options before the build starts.
	Configure(opts *api.BuildOptions) error
	// Done runs after outputs have been written.
	Done(ctx context.Context, b *Build) error
}

// LoaderConfigurer is implemented by plugins that change how processing steps
// behave.
type LoaderConfigurer interface {
	ConfigureLoaders(reg *loaders.Registry)
}

// Factory builds a plugin from its undecoded options.
type Factory func(options *yaml.Node) (Plugin, error)

// Registry maps plugin names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in plugins.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(config.PluginBundleAnalyzer, NewAnalyzer)
	r.Register(config.PluginExtractCSS, NewExtractCSS)
	r.Register(config.PluginHTML, NewHTML)
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate creates the activated plugins, preserving list order.
func (r *Registry) Instantiate(activations []config.PluginActivation) ([]Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(activations))
	for i := range activations {
		act := &activations[i]
		factory, ok := r.factories[act.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, act.Name)
		}
		p, err := factory(&act.Options)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", act.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// decodeOptions decodes a plugin's options strictly into out. An empty node
// leaves out untouched.
func decodeOptions(node *yaml.Node, out any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}

	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}
