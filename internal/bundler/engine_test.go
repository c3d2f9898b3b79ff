package bundler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/loaders"
	"github.com/wolfeidau/webbundle/internal/plugins"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

// newProject lays out two entries that share a module and a stylesheet.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "src/shared.js"), `
export function greet(name) {
  return "hello " + name
}

export function unusedHelper() {
  return "never imported"
}
`)
	writeFile(t, filepath.Join(dir, "src/entryA.js"), `
import { greet } from "./shared.js"
import "./a.css"

console.log(greet("a"))
`)
	writeFile(t, filepath.Join(dir, "src/entryB.js"), `
import { greet } from "./shared.js"

console.log(greet("b"))
`)
	writeFile(t, filepath.Join(dir, "src/a.css"), "body{color:red}\n")

	return dir
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func readOutput(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir(), name))
	require.NoError(t, err)
	return string(data)
}

func TestOutputStem(t *testing.T) {
	tests := []struct {
		template string
		entry    string
		expected string
	}{
		{template: "bundle.js", entry: "entryA", expected: "entryA.bundle"},
		{template: "[name].js", entry: "entryA", expected: "entryA"},
		{template: "js/[name].min.js", entry: "app", expected: "js/app.min"},
		{template: "js/bundle.js", entry: "app", expected: "js/app.bundle"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.expected, OutputStem(tt.template, tt.entry))
		})
	}
}

func TestEngine_Options(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	e := newEngine(t, cfg)

	opts, err := e.Options(context.Background())
	require.NoError(t, err)

	require.Len(t, opts.EntryPointsAdvanced, 2)
	assert.Equal(t, filepath.Join(dir, "src/entryA.js"), opts.EntryPointsAdvanced[0].InputPath)
	assert.Equal(t, "entryA.bundle", opts.EntryPointsAdvanced[0].OutputPath)
	assert.Equal(t, "entryB.bundle", opts.EntryPointsAdvanced[1].OutputPath)
	assert.Equal(t, filepath.Join(dir, "dist"), opts.Outdir)
	assert.True(t, opts.Bundle)
	assert.True(t, opts.Splitting)
	assert.Equal(t, "chunk-vendors-[hash]", opts.ChunkNames)
	assert.True(t, opts.Metafile, "analyzer turns on the metafile")
	require.Len(t, opts.Plugins, 1)
	assert.Equal(t, rulesPluginName, opts.Plugins[0].Name)
}

func TestEngine_Build(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	require.NoError(t, cfg.Validate())

	res, err := newEngine(t, cfg).Build(context.Background())
	require.NoError(t, err)

	paths := res.Paths()
	assert.Contains(t, paths, "entryA.bundle.js")
	assert.Contains(t, paths, "entryB.bundle.js")
	assert.Contains(t, paths, "entryA.bundle.css")
	assert.NotEmpty(t, res.BuildID)
	assert.NotEmpty(t, res.Digest)

	// one shared chunk, not a copy of shared.js in each entry
	var chunks []string
	for _, p := range paths {
		if strings.HasPrefix(p, "chunk-vendors-") && strings.HasSuffix(p, ".js") {
			chunks = append(chunks, p)
		}
	}
	require.Len(t, chunks, 1)

	chunk := readOutput(t, cfg, chunks[0])
	assert.Contains(t, chunk, "hello ")
	assert.NotContains(t, readOutput(t, cfg, "entryA.bundle.js"), `"hello "`)
	assert.NotContains(t, readOutput(t, cfg, "entryB.bundle.js"), `"hello "`)

	// unused exports are dropped
	for _, o := range res.Outputs {
		assert.NotContains(t, string(o.Contents), "never imported")
	}

	// stylesheet extraction
	assert.Equal(t, []string{"entryA.bundle.css"}, res.Stylesheets)
	assert.Contains(t, readOutput(t, cfg, "entryA.bundle.css"), "color: red")

	// bundle analyzer
	assert.FileExists(t, filepath.Join(cfg.OutputDir(), "report.html"))
	stats, err := plugins.ReadStats(filepath.Join(cfg.OutputDir(), "stats.json"))
	require.NoError(t, err)
	assert.Len(t, stats.Outputs, len(res.Outputs))
}

func TestEngine_Build_htmlPage(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	cfg.Plugins = append(cfg.Plugins, config.PluginActivation{Name: config.PluginHTML})

	e := newEngine(t, cfg)
	res, err := e.Build(context.Background())
	require.NoError(t, err)

	var page *plugins.Page
	for _, p := range e.Plugins() {
		if h, ok := p.(*plugins.HTML); ok {
			page = h.Page()
		}
	}
	require.NotNil(t, page)
	assert.Equal(t, []string{"/entryA.bundle.js", "/entryB.bundle.js"}, page.Scripts)
	assert.Equal(t, []string{"/entryA.bundle.css"}, page.Stylesheets)
	require.Len(t, page.Preloads, 1)
	assert.Contains(t, res.Paths(), strings.TrimPrefix(page.Preloads[0], "/"))

	html := readOutput(t, cfg, "index.html")
	assert.Contains(t, html, `<script type="module" src="/entryA.bundle.js"></script>`)
}

func TestEngine_load(t *testing.T) {
	dir := newProject(t)
	e := newEngine(t, config.Default(dir))

	path := filepath.Join(dir, "src/entryB.js")
	res, err := e.load(context.Background(), e.pipelines[0], path)
	require.NoError(t, err)

	require.NotNil(t, res.Contents)
	assert.Contains(t, *res.Contents, "./shared.js")
	// relative imports resolve next to the loaded file
	assert.Equal(t, filepath.Join(dir, "src"), res.ResolveDir)
	assert.Equal(t, api.LoaderJS, res.Loader)
	assert.Equal(t, []string{path}, res.WatchFiles)

	_, err = e.load(context.Background(), e.pipelines[0], filepath.Join(dir, "src/missing.js"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEngine_Build_scss(t *testing.T) {
	if _, err := exec.LookPath("sass"); err != nil {
		t.Skip("dart sass not installed")
	}

	dir := newProject(t)
	writeFile(t, filepath.Join(dir, "src/entryA.js"), `
import { greet } from "./shared.js"
import "./a.scss"

console.log(greet("a"))
`)
	writeFile(t, filepath.Join(dir, "src/a.scss"), `
$accent: red;

.a {
  .b {
    color: $accent;
  }
}
`)

	cfg := config.Default(dir)
	res, err := newEngine(t, cfg).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"entryA.bundle.css"}, res.Stylesheets)
	css := readOutput(t, cfg, "entryA.bundle.css")
	assert.Contains(t, css, ".a .b")
	assert.Contains(t, css, "color: red")
	assert.NotContains(t, css, "$accent")
}

func TestEngine_Build_cleanRemovesStaleFiles(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)

	stale := filepath.Join(cfg.OutputDir(), "old", "stale.js")
	writeFile(t, stale, "stale")

	_, err := newEngine(t, cfg).Build(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir(), "old"))
}

func TestEngine_Build_noCleanKeepsFiles(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	cfg.Output.Clean = false

	kept := filepath.Join(cfg.OutputDir(), "kept.txt")
	writeFile(t, kept, "kept")

	_, err := newEngine(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, kept)
}

func TestEngine_Build_deterministic(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	e := newEngine(t, cfg)

	first, err := e.Build(context.Background())
	require.NoError(t, err)
	firstReport := readOutput(t, cfg, "report.html")

	second, err := e.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.Paths(), second.Paths())
	for i := range first.Outputs {
		assert.Equal(t, first.Outputs[i].Contents, second.Outputs[i].Contents)
	}
	assert.Equal(t, firstReport, readOutput(t, cfg, "report.html"))
	assert.NotEqual(t, first.BuildID, second.BuildID)
}

func TestEngine_Build_digestTracksContent(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	e := newEngine(t, cfg)

	first, err := e.Build(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "src/entryB.js"), `console.log("changed")`)
	second, err := e.Build(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Digest, second.Digest)
}

func TestEngine_Build_styleLoaderInlinesCSS(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	cfg.Module.Rules[1].Use = []string{config.StepStyle, config.StepCSS}
	cfg.Plugins = nil

	res, err := newEngine(t, cfg).Build(context.Background())
	require.NoError(t, err)

	for _, p := range res.Paths() {
		assert.False(t, strings.HasSuffix(p, ".css"), "unexpected stylesheet %s", p)
	}
	assert.Contains(t, readOutput(t, cfg, "entryA.bundle.js"), "createElement")
	assert.Empty(t, res.Stylesheets)
}

func TestEngine_Build_extractWithoutPlugin(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	cfg.Plugins = []config.PluginActivation{{Name: config.PluginBundleAnalyzer}}

	_, err := newEngine(t, cfg).Build(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, err.Error(), "mini-css-extract")
}

func TestEngine_Build_noSplitting(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	cfg.Optimization.SplitChunks = config.SplitChunks{Chunks: config.ChunksNone}

	res, err := newEngine(t, cfg).Build(context.Background())
	require.NoError(t, err)

	for _, p := range res.Paths() {
		assert.False(t, strings.HasPrefix(p, "chunk-vendors"), "unexpected chunk %s", p)
	}
	assert.Contains(t, readOutput(t, cfg, "entryA.bundle.js"), "hello ")
	assert.Contains(t, readOutput(t, cfg, "entryB.bundle.js"), "hello ")
}

func TestEngine_Build_syntaxError(t *testing.T) {
	dir := newProject(t)
	writeFile(t, filepath.Join(dir, "src/entryB.js"), "const = ;")
	cfg := config.Default(dir)

	_, err := newEngine(t, cfg).Build(context.Background())
	require.Error(t, err)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	require.NotEmpty(t, buildErr.Messages)
	assert.Contains(t, err.Error(), "babel-loader")
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir(), "entryA.bundle.js"))
}

func TestEngine_Build_customStep(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	cfg.Module.Rules[0].Use = []string{config.StepBabel, "banner"}

	banner := loaders.StepFunc{
		StepName: "banner",
		Fn: func(ctx context.Context, src loaders.Source) (loaders.Source, error) {
			src.Contents = `console.log("banner");` + "\n" + src.Contents
			return src, nil
		},
	}

	_, err := newEngine(t, cfg, WithStep(banner)).Build(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readOutput(t, cfg, "entryB.bundle.js"), `"banner"`)
}

func TestNew_unknownNames(t *testing.T) {
	dir := newProject(t)

	cfg := config.Default(dir)
	cfg.Module.Rules[0].Use = []string{"ts-loader"}
	_, err := New(cfg)
	require.ErrorIs(t, err, loaders.ErrUnknownStep)

	cfg = config.Default(dir)
	cfg.Plugins = append(cfg.Plugins, config.PluginActivation{Name: "html-webpack-plugin"})
	_, err = New(cfg)
	require.ErrorIs(t, err, plugins.ErrUnknownPlugin)
}

func TestCleanDir_refusesProjectDir(t *testing.T) {
	dir := newProject(t)

	err := cleanDir(dir, dir)
	require.ErrorIs(t, err, ErrUnsafeClean)
	assert.FileExists(t, filepath.Join(dir, "src/entryA.js"))

	err = cleanDir(filepath.Dir(dir), dir)
	require.ErrorIs(t, err, ErrUnsafeClean)
}

func TestEngine_Watch(t *testing.T) {
	dir := newProject(t)
	cfg := config.Default(dir)
	e := newEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Result, 4)
	done := make(chan error, 1)
	go func() {
		done <- e.Watch(ctx, func(res *Result, err error) {
			if err == nil {
				results <- res
			}
		})
	}()

	var first *Result
	select {
	case first = <-results:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for initial build")
	}
	assert.Contains(t, first.Paths(), "entryA.bundle.js")

	writeFile(t, filepath.Join(dir, "src/entryB.js"), `console.log("rebuilt")`)

	select {
	case res := <-results:
		assert.NotEqual(t, first.Digest, res.Digest)
		assert.Contains(t, readOutput(t, cfg, "entryB.bundle.js"), "rebuilt")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for rebuild")
	}

	cancel()
	require.NoError(t, <-done)
}
