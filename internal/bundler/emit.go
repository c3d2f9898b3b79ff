package bundler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/webbundle/internal/plugins"
)

// collectOutputs converts engine output files to outputs relative to outDir,
// sorted by path.
func collectOutputs(outDir string, files []api.OutputFile) ([]plugins.Output, error) {
	outputs := make([]plugins.Output, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(outDir, f.Path)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("output %s escapes the output directory", f.Path)
		}
		outputs = append(outputs, plugins.Output{
			Path:     filepath.ToSlash(rel),
			AbsPath:  f.Path,
			Contents: f.Contents,
		})
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Path < outputs[j].Path })
	return outputs, nil
}

// cleanDir removes everything inside dir, creating it if needed. It refuses
// to clean the working directory or any of its parents.
func cleanDir(dir, workDir string) error {
	if rel, err := filepath.Rel(dir, workDir); err == nil && !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: %s contains the project directory", ErrUnsafeClean, dir)
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clean output directory: %w", err)
		}
	}
	return nil
}

func writeOutputs(outputs []plugins.Output) error {
	for _, o := range outputs {
		if err := os.MkdirAll(filepath.Dir(o.AbsPath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(o.AbsPath, o.Contents, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("failed to write %s: %w", o.Path, err)
		}
	}
	return nil
}

// digest is a CRC64-NVME checksum over every output's path and contents,
// base58 encoded. outputs must already be sorted.
func digest(outputs []plugins.Output) string {
	h := crc64nvme.New()
	for _, o := range outputs {
		h.Write([]byte(o.Path))
		h.Write([]byte{0})
		h.Write(o.Contents)
		h.Write([]byte{0})
	}
	return base58.Encode(h.Sum(nil))
}
