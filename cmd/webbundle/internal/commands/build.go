package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/webbundle/internal/bundler"
	"github.com/wolfeidau/webbundle/internal/logger"
)

type BuildCmd struct {
	ConfigFlags `embed:""`

	Watch   bool `help:"rebuild whenever an input changes" short:"w" env:"WEBBUNDLE_WATCH"`
	Tracing bool `help:"enable tracing" default:"false" env:"WEBBUNDLE_TRACING"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	log.Debug().Str("version", globals.Version).Str("config", c.Config).Msg("Starting build")

	flush := setupTelemetry(ctx, c.Tracing, globals.Version)
	defer flush()

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

	if c.Watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return engine.Watch(ctx, func(res *bundler.Result, err error) {
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("Rebuild failed")
				return
			}
			printResult(globals.stdout(), res)
		})
	}

	res, err := engine.Build(ctx)
	if err != nil {
		return err
	}
	printResult(globals.stdout(), res)
	return nil
}

func printResult(w io.Writer, res *bundler.Result) {
	for _, o := range res.Outputs {
		fmt.Fprintf(w, "%-40s %8d\n", o.Path, len(o.Contents))
	}
	fmt.Fprintf(w, "build %s digest %s in %s\n", res.BuildID, res.Digest, res.Duration.Round(1e6))
}
