package plugins

import (
	"context"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/webbundle/internal/loaders"
	"gopkg.in/yaml.v3"
)

// ExtractCSS makes stylesheets routed through the extraction step land in
// their own .css files instead of being inlined into scripts.
type ExtractCSS struct{}

// NewExtractCSS is the mini-css-extract plugin factory. It takes no options.
func NewExtractCSS(options *yaml.Node) (Plugin, error) {
	var opts struct{}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &ExtractCSS{}, nil
}

func (e *ExtractCSS) Name() string { return "mini-css-extract" }

func (e *ExtractCSS) ConfigureLoaders(reg *loaders.Registry) {
	reg.EnableExtraction()
}

func (e *ExtractCSS) Configure(opts *api.BuildOptions) error {
	return nil
}

func (e *ExtractCSS) Done(ctx context.Context, b *Build) error {
	for _, o := range b.Outputs {
		if !strings.HasSuffix(o.Path, ".css") {
			continue
		}
		b.Stylesheets = append(b.Stylesheets, o.Path)
		zerolog.Ctx(ctx).Info().Str("file", o.Path).Int("bytes", len(o.Contents)).Msg("Extracted stylesheet")
	}
	return nil
}
