package plugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
)

// Metafile is the subset of the engine's metafile JSON the analyzer reads.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

type MetafileInput struct {
	Bytes int `json:"bytes"`
}

type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports,omitempty"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
	CSSBundle  string                  `json:"cssBundle,omitempty"`
}

type MetafileImport struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// Report is the bundle size breakdown written by the analyzer.
type Report struct {
	Outputs         []OutputReport `json:"outputs"`
	TotalStatSize   int            `json:"totalStatSize"`
	TotalParsedSize int            `json:"totalParsedSize"`
	TotalGzipSize   int            `json:"totalGzipSize"`
}

// OutputReport gives the three sizes reported for each emitted file: the
// source bytes that went in, the bytes written, and the gzipped size.
type OutputReport struct {
	Path       string         `json:"path"`
	EntryPoint string         `json:"entryPoint,omitempty"`
	StatSize   int            `json:"statSize"`
	ParsedSize int            `json:"parsedSize"`
	GzipSize   int            `json:"gzipSize"`
	Modules    []ModuleReport `json:"modules"`
}

type ModuleReport struct {
	Path       string  `json:"path"`
	Size       int     `json:"size"`
	Percentage float64 `json:"percentage"`
}

// Analyze builds a Report from the build's metafile and emitted contents.
// Outputs and modules are sorted so the same build always yields the same
// report.
func Analyze(b *Build) (*Report, error) {
	var meta Metafile
	if err := json.Unmarshal([]byte(b.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	contents := make(map[string][]byte, len(b.Outputs))
	for _, o := range b.Outputs {
		contents[filepath.Clean(o.AbsPath)] = o.Contents
	}

	report := &Report{Outputs: []OutputReport{}}
	for metaPath, out := range meta.Outputs {
		abs := filepath.Clean(filepath.Join(b.WorkingDir, filepath.FromSlash(metaPath)))
		data, ok := contents[abs]
		if !ok {
			continue
		}
		rel, err := filepath.Rel(b.OutputDir, abs)
		if err != nil {
			return nil, err
		}

		gz, err := gzipSize(data)
		if err != nil {
			return nil, err
		}

		or := OutputReport{
			Path:       filepath.ToSlash(rel),
			EntryPoint: out.EntryPoint,
			ParsedSize: len(data),
			GzipSize:   gz,
			Modules:    []ModuleReport{},
		}
		for inputPath, contrib := range out.Inputs {
			or.StatSize += meta.Inputs[inputPath].Bytes
			mod := ModuleReport{Path: inputPath, Size: contrib.BytesInOutput}
			if out.Bytes > 0 {
				mod.Percentage = float64(contrib.BytesInOutput) * 100 / float64(out.Bytes)
			}
			or.Modules = append(or.Modules, mod)
		}
		sort.Slice(or.Modules, func(i, j int) bool {
			if or.Modules[i].Size != or.Modules[j].Size {
				return or.Modules[i].Size > or.Modules[j].Size
			}
			return or.Modules[i].Path < or.Modules[j].Path
		})

		report.TotalStatSize += or.StatSize
		report.TotalParsedSize += or.ParsedSize
		report.TotalGzipSize += or.GzipSize
		report.Outputs = append(report.Outputs, or)
	}

	sort.Slice(report.Outputs, func(i, j int) bool {
		return report.Outputs[i].Path < report.Outputs[j].Path
	})
	return report, nil
}

func gzipSize(data []byte) (int, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write(data); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
