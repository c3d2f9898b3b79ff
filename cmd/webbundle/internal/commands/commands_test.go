package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/webbundle/internal/config"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

// newProject lays out the default entries with no configuration file.
func newProject(t *testing.T) ConfigFlags {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src/entryA.js"), "import './a.scss'\nconsole.log('a')\n")
	writeFile(t, filepath.Join(dir, "src/entryB.js"), "console.log('b')\n")
	writeFile(t, filepath.Join(dir, "src/a.scss"), "body{color:red}\n")
	return ConfigFlags{Config: filepath.Join(dir, config.DefaultFilename)}
}

func TestValidateCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := &ValidateCmd{ConfigFlags: newProject(t)}

	// a.scss needs the sass compiler but validation never starts it
	require.NoError(t, cmd.Run(context.Background(), &Globals{Stdout: &out}))
	assert.Contains(t, out.String(), "entries: entryA, entryB")
	assert.Contains(t, out.String(), "plugins: bundle-analyzer, mini-css-extract")
	assert.Contains(t, out.String(), "configuration is valid")
}

func TestValidateCmd_invalid(t *testing.T) {
	flags := newProject(t)
	writeFile(t, flags.Config, `
entry:
  main: src/missing.js
`)

	cmd := &ValidateCmd{ConfigFlags: flags}
	err := cmd.Run(context.Background(), &Globals{Stdout: &bytes.Buffer{}})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestExportCmd(t *testing.T) {
	flags := newProject(t)

	var out bytes.Buffer
	cmd := &ExportCmd{ConfigFlags: flags, Format: "webpack"}
	require.NoError(t, cmd.Run(context.Background(), &Globals{Stdout: &out}))
	assert.Contains(t, out.String(), "new BundleAnalyzerPlugin(),")
	assert.Contains(t, out.String(), "name: 'chunk-vendors'")

	out.Reset()
	cmd = &ExportCmd{ConfigFlags: flags, Format: "yaml"}
	require.NoError(t, cmd.Run(context.Background(), &Globals{Stdout: &out}))

	cfg, err := config.Parse(filepath.Dir(flags.Config), out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"entryA", "entryB"}, cfg.EntryNames())
}

func TestExportCmd_toFile(t *testing.T) {
	flags := newProject(t)
	target := filepath.Join(t.TempDir(), "webpack.config.js")

	cmd := &ExportCmd{ConfigFlags: flags, Format: "webpack", Output: target}
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "module.exports = {")
}

func TestBuildCmd(t *testing.T) {
	flags := newProject(t)
	// plain CSS keeps the test independent of a sass binary
	writeFile(t, filepath.Join(filepath.Dir(flags.Config), "src/entryA.js"), "import './a.css'\nconsole.log('a')\n")
	writeFile(t, filepath.Join(filepath.Dir(flags.Config), "src/a.css"), "body{color:red}\n")

	var out bytes.Buffer
	cmd := &BuildCmd{ConfigFlags: flags}
	require.NoError(t, cmd.Run(context.Background(), &Globals{Stdout: &out}))

	assert.Contains(t, out.String(), "entryA.bundle.js")
	assert.Contains(t, out.String(), "entryB.bundle.js")
	assert.Contains(t, out.String(), "digest")

	dist := filepath.Join(filepath.Dir(flags.Config), "dist")
	assert.FileExists(t, filepath.Join(dist, "entryA.bundle.css"))
	assert.FileExists(t, filepath.Join(dist, "stats.json"))
	assert.FileExists(t, filepath.Join(dist, "report.html"))
}

func TestAnalyzeCmd_handler(t *testing.T) {
	flags := newProject(t)
	writeFile(t, filepath.Join(filepath.Dir(flags.Config), "src/entryA.js"), "console.log('a')\n")
	require.NoError(t, (&BuildCmd{ConfigFlags: flags}).Run(context.Background(), &Globals{Stdout: &bytes.Buffer{}}))

	cfg, err := flags.load()
	require.NoError(t, err)
	opts, err := analyzerOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "stats.json", opts.StatsFilename)

	cmd := &AnalyzeCmd{ConfigFlags: flags, CORSOrigins: []string{"*"}}
	h := cmd.handler(zerolog.Nop(), cfg.OutputDir(), opts)

	t.Run("stats with cors", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/stats.json", nil)
		r.Header.Set("Origin", "https://example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Body.String(), "entryA.bundle.js")
	})

	t.Run("report page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Bundle report")
	})

	t.Run("cross site post rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Sec-Fetch-Site", "cross-site")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAnalyzerOptions_fromConfig(t *testing.T) {
	cfg, err := config.Parse(t.TempDir(), []byte(`
plugins:
  - name: bundle-analyzer
    options:
      analyzerMode: json
      statsFilename: sizes.json
`))
	require.NoError(t, err)

	opts, err := analyzerOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "json", opts.AnalyzerMode)
	assert.Equal(t, "sizes.json", opts.StatsFilename)
	assert.Equal(t, "Bundle report", opts.ReportTitle)
}
