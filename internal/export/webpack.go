// Package export renders a build configuration for other toolchains.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/wolfeidau/webbundle/internal/config"
)

// loaderModules maps step identifiers to the expression webpack expects.
var loaderModules = map[string]string{
	config.StepExtractCSS: "MiniCssExtractPlugin.loader",
}

type pluginImport struct {
	Require     string
	Constructor string
}

var pluginModules = map[string]pluginImport{
	config.PluginBundleAnalyzer: {
		Require:     "const { BundleAnalyzerPlugin } = require('webpack-bundle-analyzer')",
		Constructor: "BundleAnalyzerPlugin",
	},
	config.PluginExtractCSS: {
		Require:     "const MiniCssExtractPlugin = require('mini-css-extract-plugin')",
		Constructor: "MiniCssExtractPlugin",
	},
	config.PluginHTML: {
		Require:     "const HtmlWebpackPlugin = require('html-webpack-plugin')",
		Constructor: "HtmlWebpackPlugin",
	},
}

const webpackConfig = `const path = require('path')
{{- range .Requires}}
{{.}}
{{- end}}
module.exports = {
  entry: {
{{- range $i, $e := .Entries}}
    {{$e.Name}}: path.resolve(__dirname, {{str $e.Path}}){{if not (last $i $.Entries)}},{{end}}
{{- end}}
  },
  output: {
    path: path.resolve(__dirname, {{str .Output.Directory}}),
    filename: {{str .Output.FilenameTemplate}},
    clean: {{.Output.Clean}}
  },
  module: {
    rules: [
{{- range $i, $r := .Rules}}
      {
        test: {{$r.Test}},
        use: [
{{- range $j, $u := $r.Use}}
          {{$u}}{{if not (last $j $r.Use)}},{{end}}
{{- end}}
        ]
      }{{if not (last $i $.Rules)}},{{end}}
{{- end}}
    ]
  },
  optimization: {
    usedExports: {{.UsedExports}},
{{- if .Split}}
    splitChunks: {
      chunks: {{str .Chunks}}{{if .ChunkName}},
      name: {{str .ChunkName}}{{end}}
    }
{{- else}}
    splitChunks: false
{{- end}}
  },
  plugins: [
{{- range $i, $p := .Plugins}}
    new {{$p}}(){{if not (last $i $.Plugins)}},{{end}}
{{- end}}
  ]
}
`

var tmpl = template.Must(template.New("webpack").Funcs(template.FuncMap{
	"str": jsString,
	"last": func(i int, list any) bool {
		switch l := list.(type) {
		case []entry:
			return i == len(l)-1
		case []rule:
			return i == len(l)-1
		case []string:
			return i == len(l)-1
		}
		return false
	},
}).Parse(webpackConfig))

type entry struct {
	Name string
	Path string
}

type rule struct {
	Test string
	Use  []string
}

// Webpack writes an equivalent webpack.config.js for cfg. Plugin options are
// not carried over; plugins are constructed with their defaults.
func Webpack(w io.Writer, cfg *config.Config) error {
	data := struct {
		Requires    []string
		Entries     []entry
		Output      config.OutputSpec
		Rules       []rule
		UsedExports bool
		Split       bool
		Chunks      string
		ChunkName   string
		Plugins     []string
	}{
		Output:      cfg.Output,
		UsedExports: cfg.Optimization.UsedExports,
		Split:       cfg.Optimization.SplitChunks.Chunks != config.ChunksNone,
		Chunks:      string(cfg.Optimization.SplitChunks.Chunks),
		ChunkName:   cfg.Optimization.SplitChunks.Name,
	}
	data.Output.Directory = relative(cfg, cfg.Output.Directory)

	for _, name := range cfg.EntryNames() {
		data.Entries = append(data.Entries, entry{Name: jsKey(name), Path: relative(cfg, cfg.Entry[name])})
	}

	needsExtract := cfg.HasPlugin(config.PluginExtractCSS)
	for _, r := range cfg.Module.Rules {
		if r.Test == nil {
			return fmt.Errorf("%w: rule without test", config.ErrInvalidConfig)
		}
		out := rule{Test: JSRegexp(r.Test.String())}
		for _, step := range r.Use {
			if expr, ok := loaderModules[step]; ok {
				out.Use = append(out.Use, expr)
				needsExtract = true
				continue
			}
			out.Use = append(out.Use, jsString(step))
		}
		data.Rules = append(data.Rules, out)
	}

	seen := map[string]bool{}
	addRequire := func(name string) {
		if imp, ok := pluginModules[name]; ok && !seen[name] {
			seen[name] = true
			data.Requires = append(data.Requires, imp.Require)
		}
	}
	if needsExtract {
		addRequire(config.PluginExtractCSS)
	}

	for _, p := range cfg.Plugins {
		imp, ok := pluginModules[p.Name]
		if !ok {
			return fmt.Errorf("no webpack equivalent for plugin %q", p.Name)
		}
		addRequire(p.Name)
		data.Plugins = append(data.Plugins, imp.Constructor)
	}

	return tmpl.Execute(w, data)
}

// JSRegexp converts a Go pattern with a leading (?flags) group into a
// JavaScript regular expression literal.
func JSRegexp(expr string) string {
	flags := ""
	if strings.HasPrefix(expr, "(?") {
		if end := strings.Index(expr, ")"); end > 2 && !strings.ContainsAny(expr[2:end], ":") {
			flags = expr[2:end]
			expr = expr[end+1:]
		}
	}
	return "/" + strings.ReplaceAll(expr, "/", `\/`) + "/" + flags
}

func relative(cfg *config.Config, p string) string {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(cfg.BaseDir, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}

func jsKey(s string) string {
	for i, c := range s {
		isLetter := c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !isLetter && (i == 0 || c < '0' || c > '9') {
			return jsString(s)
		}
	}
	return s
}
