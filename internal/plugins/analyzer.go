package plugins

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"bytes":   formatBytes,
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
}).ParseFS(templateFS, "templates/report.html"))

// Analyzer modes.
const (
	ModeStatic   = "static"
	ModeJSON     = "json"
	ModeDisabled = "disabled"
)

// AnalyzerOptions mirrors the options of the bundle analyzer plugin.
type AnalyzerOptions struct {
	AnalyzerMode   string `yaml:"analyzerMode"`
	ReportFilename string `yaml:"reportFilename"`
	StatsFilename  string `yaml:"statsFilename"`
	ReportTitle    string `yaml:"reportTitle"`
}

// Analyzer reports the size of every emitted file.
type Analyzer struct {
	opts   AnalyzerOptions
	report *Report
}

// NewAnalyzer is the bundle-analyzer plugin factory.
func NewAnalyzer(options *yaml.Node) (Plugin, error) {
	opts := AnalyzerOptions{
		AnalyzerMode:   ModeStatic,
		ReportFilename: "report.html",
		StatsFilename:  "stats.json",
		ReportTitle:    "Bundle report",
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}

	switch opts.AnalyzerMode {
	case ModeStatic, ModeJSON, ModeDisabled:
	default:
		return nil, fmt.Errorf("%w: unknown analyzerMode %q", ErrInvalidOptions, opts.AnalyzerMode)
	}
	return &Analyzer{opts: opts}, nil
}

func (a *Analyzer) Name() string { return "bundle-analyzer" }

// Configure turns on metafile generation, which the report is built from.
func (a *Analyzer) Configure(opts *api.BuildOptions) error {
	opts.Metafile = true
	return nil
}

func (a *Analyzer) Done(ctx context.Context, b *Build) error {
	if a.opts.AnalyzerMode == ModeDisabled {
		return nil
	}

	report, err := Analyze(b)
	if err != nil {
		return err
	}
	a.report = report

	logger := zerolog.Ctx(ctx)
	for _, o := range report.Outputs {
		logger.Info().
			Str("output", o.Path).
			Int("stat", o.StatSize).
			Int("parsed", o.ParsedSize).
			Int("gzip", o.GzipSize).
			Msg("Bundle size")
	}
	logger.Debug().Msg(api.AnalyzeMetafile(b.Metafile, api.AnalyzeMetafileOptions{}))

	if err := writeStats(filepath.Join(b.OutputDir, a.opts.StatsFilename), report); err != nil {
		return err
	}

	if a.opts.AnalyzerMode == ModeStatic {
		path := filepath.Join(b.OutputDir, a.opts.ReportFilename)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		if err := RenderReport(f, a.opts.ReportTitle, report); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		logger.Info().Str("report", path).Msg("Bundle report written")
	}

	return nil
}

// Options returns the decoded options with defaults applied.
func (a *Analyzer) Options() AnalyzerOptions {
	return a.opts
}

// Report returns the report from the most recent build, or nil.
func (a *Analyzer) Report() *Report {
	return a.report
}

// RenderReport writes the HTML form of report to w.
func RenderReport(w io.Writer, title string, report *Report) error {
	return reportTemplate.Execute(w, map[string]any{
		"Title":  title,
		"Report": report,
	})
}

// ReadStats loads a stats file written by the analyzer.
func ReadStats(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoReport, path)
		}
		return nil, err
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	return &report, nil
}

func writeStats(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
