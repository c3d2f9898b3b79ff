package commands

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string
	Stdout  io.Writer
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// ConfigFlags locate the configuration file shared by every command.
type ConfigFlags struct {
	Config string `help:"path to the configuration file" short:"c" default:"webbundle.yaml" env:"WEBBUNDLE_CONFIG" type:"path"`
}

// load reads the configuration, falling back to the defaults anchored at the
// file's directory when it does not exist.
func (f ConfigFlags) load() (*config.Config, error) {
	path := f.Config
	if path == "" {
		path = config.DefaultFilename
	}
	return config.LoadOrDefault(path, filepath.Dir(path))
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// setupTelemetry starts the OTLP exporters when enabled. The returned func
// flushes them and is always safe to call.
func setupTelemetry(ctx context.Context, enabled bool, version string) func() {
	log := zerolog.Ctx(ctx)
	if !enabled {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.Init(ctx, "webbundle", version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
