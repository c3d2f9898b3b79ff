package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/webbundle/internal/config"
	httpmiddleware "github.com/wolfeidau/webbundle/internal/http"
	"github.com/wolfeidau/webbundle/internal/logger"
	"github.com/wolfeidau/webbundle/internal/plugins"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// AnalyzeCmd serves the analyzer report of the last build. Stats are re-read
// per request, so it can run next to `build --watch`.
type AnalyzeCmd struct {
	ConfigFlags `embed:""`

	Listen      string   `help:"HTTP listen address" default:"localhost:8888" env:"WEBBUNDLE_LISTEN"`
	CORSOrigins []string `help:"allowed CORS origins for stats.json" default:"*" env:"WEBBUNDLE_CORS_ORIGINS"`
	Tracing     bool     `help:"enable tracing" default:"false" env:"WEBBUNDLE_TRACING"`
}

func (c *AnalyzeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	flush := setupTelemetry(ctx, c.Tracing, globals.Version)
	defer flush()

	cfg, err := c.load()
	if err != nil {
		return err
	}

	opts, err := analyzerOptions(cfg)
	if err != nil {
		return err
	}

	srv := configureHTTPServer(c.Listen, c.handler(log, cfg.OutputDir(), opts))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown server")
		}
	}()

	log.Info().
		Str("addr", c.Listen).
		Str("output", cfg.OutputDir()).
		Str("stats", opts.StatsFilename).
		Msg("Serving bundle report")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handler serves stats.json with CORS for external tooling and guards the
// HTML routes with CSRF protection. Requests are traced when telemetry is on.
func (c *AnalyzeCmd) handler(log zerolog.Logger, dir string, opts plugins.AnalyzerOptions) http.Handler {
	reports := plugins.ReportHandler(dir, opts.StatsFilename, opts.ReportTitle)

	api := cors.New(cors.Options{
		AllowedOrigins: c.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}).Handler(reports)
	pages := csrf.New().Handler(reports)

	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stats.json" {
			api.ServeHTTP(w, r)
			return
		}
		pages.ServeHTTP(w, r)
	})

	handler := httpmiddleware.ClientIPMiddleware()(httpmiddleware.AccessLogMiddleware(log)(routed))
	return h2c.NewHandler(otelhttp.NewHandler(handler, "webbundle.analyze"), &http2.Server{})
}

// analyzerOptions returns the options of the configured bundle analyzer, or
// the defaults when the plugin is not activated.
func analyzerOptions(cfg *config.Config) (plugins.AnalyzerOptions, error) {
	var activation config.PluginActivation
	for _, p := range cfg.Plugins {
		if p.Name == config.PluginBundleAnalyzer {
			activation = p
			break
		}
	}

	p, err := plugins.NewAnalyzer(&activation.Options)
	if err != nil {
		return plugins.AnalyzerOptions{}, fmt.Errorf("plugin %s: %w", config.PluginBundleAnalyzer, err)
	}
	analyzer, ok := p.(*plugins.Analyzer)
	if !ok {
		return plugins.AnalyzerOptions{}, fmt.Errorf("plugin %s: unexpected type %T", config.PluginBundleAnalyzer, p)
	}
	return analyzer.Options(), nil
}
