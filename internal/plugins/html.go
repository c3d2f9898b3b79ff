package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var pageTemplate = template.Must(template.New("index.html").ParseFS(templateFS, "templates/index.html"))

// HTMLOptions configure the generated page.
type HTMLOptions struct {
	// Filename is relative to the output directory
	Filename string `yaml:"filename"`
	Title    string `yaml:"title"`
	// Template is an html/template file, relative to the project directory
	Template   string `yaml:"template"`
	PublicPath string `yaml:"publicPath"`
}

// Page is the data handed to the page template.
type Page struct {
	Title       string
	Module      bool
	Scripts     []string
	Preloads    []string
	Stylesheets []string
}

// HTML writes a page that loads every entry script, preloads the chunks they
// import and links their extracted stylesheets.
type HTML struct {
	opts   HTMLOptions
	module bool
	page   *Page
}

// NewHTML is the html plugin factory.
func NewHTML(options *yaml.Node) (Plugin, error) {
	opts := HTMLOptions{
		Filename:   "index.html",
		Title:      "webbundle",
		PublicPath: "/",
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}

	clean := path.Clean(filepath.ToSlash(opts.Filename))
	if opts.Filename == "" || clean == "." || clean == ".." || path.IsAbs(clean) || strings.HasPrefix(clean, "../") {
		return nil, fmt.Errorf("%w: filename %q must stay inside the output directory", ErrInvalidOptions, opts.Filename)
	}
	opts.Filename = clean

	return &HTML{opts: opts}, nil
}

func (h *HTML) Name() string { return "html" }

// Configure turns on the metafile, which holds the chunk graph, and notes
// whether scripts must be loaded as modules.
func (h *HTML) Configure(opts *api.BuildOptions) error {
	opts.Metafile = true
	h.module = opts.Format == api.FormatESModule
	return nil
}

func (h *HTML) Done(ctx context.Context, b *Build) error {
	page, err := h.collect(b)
	if err != nil {
		return err
	}

	tmpl := pageTemplate
	if h.opts.Template != "" {
		tmplPath := h.opts.Template
		if !filepath.IsAbs(tmplPath) {
			tmplPath = filepath.Join(b.WorkingDir, tmplPath)
		}
		tmpl, err = template.New(filepath.Base(tmplPath)).ParseFiles(tmplPath)
		if err != nil {
			return fmt.Errorf("failed to load page template: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}

	dest := filepath.Join(b.OutputDir, filepath.FromSlash(h.opts.Filename))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write page: %w", err)
	}

	h.page = page
	zerolog.Ctx(ctx).Info().
		Str("page", h.opts.Filename).
		Strs("scripts", page.Scripts).
		Msg("Page written")
	return nil
}

// Page returns the data of the most recently written page, or nil.
func (h *HTML) Page() *Page {
	return h.page
}

// collect walks the chunk graph from each entry in path order. Every chunk is
// listed once, after the entry that first pulls it in.
func (h *HTML) collect(b *Build) (*Page, error) {
	var meta Metafile
	if err := json.Unmarshal([]byte(b.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	url := func(metaPath string) (string, error) {
		abs := filepath.Join(b.WorkingDir, filepath.FromSlash(metaPath))
		rel, err := filepath.Rel(b.OutputDir, abs)
		if err != nil {
			return "", err
		}
		rel = filepath.ToSlash(rel)
		if h.opts.PublicPath == "" {
			return rel, nil
		}
		return strings.TrimRight(h.opts.PublicPath, "/") + "/" + rel, nil
	}

	var entries []string
	for p, out := range meta.Outputs {
		if out.EntryPoint != "" && !strings.HasSuffix(p, ".css") {
			entries = append(entries, p)
		}
	}
	sort.Strings(entries)

	page := &Page{Title: h.opts.Title, Module: h.module}
	visited := make(map[string]bool)

	var addDependencies func(out MetafileOutput) error
	addDependencies = func(out MetafileOutput) error {
		for _, imp := range out.Imports {
			chunk, ok := meta.Outputs[imp.Path]
			if !ok || visited[imp.Path] || imp.Kind == "dynamic-import" {
				continue
			}
			visited[imp.Path] = true

			u, err := url(imp.Path)
			if err != nil {
				return err
			}
			page.Preloads = append(page.Preloads, u)
			if err := addDependencies(chunk); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range entries {
		if visited[p] {
			continue
		}
		visited[p] = true

		out := meta.Outputs[p]
		u, err := url(p)
		if err != nil {
			return nil, err
		}
		page.Scripts = append(page.Scripts, u)

		if out.CSSBundle != "" {
			css, err := url(out.CSSBundle)
			if err != nil {
				return nil, err
			}
			page.Stylesheets = append(page.Stylesheets, css)
		}
		if err := addDependencies(out); err != nil {
			return nil, err
		}
	}

	return page, nil
}
