package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/webbundle/internal/export"
)

type ExportCmd struct {
	ConfigFlags `embed:""`

	Format string `help:"output format" default:"webpack" enum:"webpack,yaml" env:"WEBBUNDLE_EXPORT_FORMAT"`
	Output string `help:"write to this file instead of stdout" short:"o" type:"path"`
}

func (c *ExportCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	var w io.Writer = globals.stdout()
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", c.Output, err)
		}
		defer f.Close()
		w = f
	}

	switch c.Format {
	case "yaml":
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return export.Webpack(w, cfg)
	}
}
