package config

import (
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ChunkingMode selects which chunks are considered for shared-code splitting.
type ChunkingMode string

const (
	ChunksAll   ChunkingMode = "all"
	ChunksAsync ChunkingMode = "async"
	ChunksNone  ChunkingMode = "none"
)

// Valid reports whether m is one of the known chunking modes.
func (m ChunkingMode) Valid() bool {
	switch m {
	case ChunksAll, ChunksAsync, ChunksNone:
		return true
	}
	return false
}

// Step identifiers used by the default rules.
const (
	StepBabel      = "babel-loader"
	StepCSS        = "css-loader"
	StepSass       = "sass-loader"
	StepStyle      = "style-loader"
	StepExtractCSS = "mini-css-extract-plugin/loader"
)

// Plugin names used by the default plugin list.
const (
	PluginBundleAnalyzer = "bundle-analyzer"
	PluginExtractCSS     = "mini-css-extract"
	PluginHTML           = "html"
)

// EntryMap maps a logical entry name to its source file.
type EntryMap map[string]string

// OutputSpec describes where emitted artifacts are written.
type OutputSpec struct {
	Directory        string `yaml:"path"`
	FilenameTemplate string `yaml:"filename"`
	Clean            bool   `yaml:"clean"`
}

// TransformRule routes files whose name matches Test through the Use pipeline.
// Use is kept in listed order; the last step runs first.
type TransformRule struct {
	Test *Pattern `yaml:"test"`
	Use  []string `yaml:"use"`
}

// Module holds the loader rules, evaluated in order.
type Module struct {
	Rules []TransformRule `yaml:"rules"`
}

type SplitChunks struct {
	Chunks ChunkingMode `yaml:"chunks"`
	Name   string       `yaml:"name"`
}

// OptimizationPolicy governs tree shaking and shared chunk grouping.
type OptimizationPolicy struct {
	UsedExports bool        `yaml:"usedExports"`
	SplitChunks SplitChunks `yaml:"splitChunks"`
}

// PluginActivation is one entry in the ordered plugin list. Options are left
// undecoded; each plugin owns its own option schema.
type PluginActivation struct {
	Name    string    `yaml:"name"`
	Options yaml.Node `yaml:"options,omitempty"`
}

// SassConfig configures the Dart Sass compiler used by the sass step.
type SassConfig struct {
	// Binary is the path to the Dart Sass executable (defaults to "sass" on PATH)
	Binary string `yaml:"binary"`
	// IncludePaths are extra load paths for @use and @import
	IncludePaths []string `yaml:"includePaths"`
}

// Config is the full build configuration handed to the bundler engine.
type Config struct {
	// BaseDir anchors every relative path in the configuration.
	BaseDir string `yaml:"-"`

	Entry        EntryMap           `yaml:"entry"`
	Output       OutputSpec         `yaml:"output"`
	Module       Module             `yaml:"module"`
	Optimization OptimizationPolicy `yaml:"optimization"`
	Plugins      []PluginActivation `yaml:"plugins"`

	// Target is the language level scripts are lowered to (e.g. "es2015").
	Target string     `yaml:"target"`
	Sass   SassConfig `yaml:"sass"`
}

// Default returns the stock configuration: two entries, a single bundle
// template, a script rule and a stylesheet rule, vendor chunk splitting and
// the analyzer and CSS extraction plugins.
func Default(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		Entry: EntryMap{
			"entryA": "src/entryA.js",
			"entryB": "src/entryB.js",
		},
		Output: OutputSpec{
			Directory:        "dist",
			FilenameTemplate: "bundle.js",
			Clean:            true,
		},
		Module: Module{
			Rules: []TransformRule{
				{
					Test: MustPattern(`(?i).js$`),
					Use:  []string{StepBabel},
				},
				{
					Test: MustPattern(`(?i)\.(sa|sc|c)ss$`),
					Use:  []string{StepExtractCSS, StepCSS, StepSass},
				},
			},
		},
		Optimization: OptimizationPolicy{
			UsedExports: true,
			SplitChunks: SplitChunks{
				Chunks: ChunksAll,
				Name:   "chunk-vendors",
			},
		},
		Plugins: []PluginActivation{
			{Name: PluginBundleAnalyzer},
			{Name: PluginExtractCSS},
		},
		Target: "es2015",
	}
}

// Resolve returns p anchored at the configuration's base directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// EntryPaths returns the absolute source path for each entry.
func (c *Config) EntryPaths() map[string]string {
	paths := make(map[string]string, len(c.Entry))
	for name, p := range c.Entry {
		paths[name] = c.Resolve(p)
	}
	return paths
}

// OutputDir returns the absolute output directory.
func (c *Config) OutputDir() string {
	return c.Resolve(c.Output.Directory)
}

// MatchRule returns the first rule whose pattern matches filename, or nil.
func (c *Config) MatchRule(filename string) *TransformRule {
	for i := range c.Module.Rules {
		rule := &c.Module.Rules[i]
		if rule.Test != nil && rule.Test.MatchString(filename) {
			return rule
		}
	}
	return nil
}

// HasPlugin reports whether a plugin with the given name is activated.
func (c *Config) HasPlugin(name string) bool {
	for _, p := range c.Plugins {
		if p.Name == name {
			return true
		}
	}
	return false
}
