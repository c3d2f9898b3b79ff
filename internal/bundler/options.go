package bundler

import (
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/loaders"
)

// entryPoints maps each entry to the engine, naming its output from the
// filename template. Entries are listed in name order.
func entryPoints(cfg *config.Config) []api.EntryPoint {
	paths := cfg.EntryPaths()
	eps := make([]api.EntryPoint, 0, len(paths))
	for _, name := range cfg.EntryNames() {
		eps = append(eps, api.EntryPoint{
			InputPath:  paths[name],
			OutputPath: OutputStem(cfg.Output.FilenameTemplate, name),
		})
	}
	return eps
}

// OutputStem expands the filename template for one entry, without its
// extension. A template with no [name] placeholder is shared by every entry,
// so the entry name is prefixed to keep the outputs apart: "bundle.js"
// becomes "entryA.bundle".
func OutputStem(template, entry string) string {
	stem := strings.TrimSuffix(template, path.Ext(template))
	if !strings.Contains(stem, "[name]") {
		dir, base := path.Split(stem)
		stem = dir + "[name]." + base
	}
	return strings.ReplaceAll(stem, "[name]", entry)
}

// outExtension returns the engine extension override implied by the
// template, if it is not plain .js.
func outExtension(template string) map[string]string {
	ext := path.Ext(template)
	if ext == "" || ext == ".js" {
		return nil
	}
	return map[string]string{".js": ext}
}

// baseOptions maps the configuration onto engine options. Plugins are added
// by the caller.
func baseOptions(cfg *config.Config, workDir string) (api.BuildOptions, error) {
	target, err := loaders.ParseTarget(cfg.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}

	split := cfg.Optimization.SplitChunks

	opts := api.BuildOptions{
		EntryPointsAdvanced: entryPoints(cfg),
		AbsWorkingDir:       workDir,
		Outdir:              cfg.OutputDir(),
		OutExtension:        outExtension(cfg.Output.FilenameTemplate),
		Bundle:              true,
		Write:               false,
		Platform:            api.PlatformBrowser,
		Target:              target,
		TreeShaking:         cond(cfg.Optimization.UsedExports, api.TreeShakingTrue, api.TreeShakingFalse),
		Format:              cond(split.Chunks == config.ChunksNone, api.FormatIIFE, api.FormatESModule),
		Splitting:           split.Chunks != config.ChunksNone,
		LogLevel:            api.LogLevelSilent,
	}

	// esbuild cannot restrict splitting to dynamic imports, so "async" only
	// differs from "all" in leaving chunk names to the engine
	if split.Chunks == config.ChunksAll {
		opts.ChunkNames = split.Name + "-[hash]"
	}

	return opts, nil
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
