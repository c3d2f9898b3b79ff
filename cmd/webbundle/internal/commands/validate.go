package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfeidau/webbundle/internal/bundler"
	"github.com/wolfeidau/webbundle/internal/logger"
)

// ValidateCmd checks the configuration without building. Unknown step and
// plugin names are caught by preparing an engine.
type ValidateCmd struct {
	ConfigFlags `embed:""`
}

func (c *ValidateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := bundler.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release loaders")
		}
	}()

	names := make([]string, 0, len(engine.Plugins()))
	for _, p := range engine.Plugins() {
		names = append(names, p.Name())
	}

	out := globals.stdout()
	fmt.Fprintf(out, "entries: %s\n", strings.Join(cfg.EntryNames(), ", "))
	fmt.Fprintf(out, "output:  %s\n", cfg.OutputDir())
	fmt.Fprintf(out, "rules:   %d\n", len(cfg.Module.Rules))
	fmt.Fprintf(out, "plugins: %s\n", strings.Join(names, ", "))
	fmt.Fprintln(out, "configuration is valid")
	return nil
}
