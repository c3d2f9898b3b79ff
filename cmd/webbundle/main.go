package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/webbundle/cmd/webbundle/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug    bool                 `help:"Enable debug mode." env:"WEBBUNDLE_DEBUG"`
		Version  kong.VersionFlag     `help:"Print the version and exit."`
		Build    commands.BuildCmd    `cmd:"" help:"Build the bundle"`
		Validate commands.ValidateCmd `cmd:"" help:"Validate the configuration"`
		Export   commands.ExportCmd   `cmd:"" help:"Print the configuration as webpack.config.js or resolved YAML"`
		Analyze  commands.AnalyzeCmd  `cmd:"" help:"Serve the bundle report over HTTP"`
	}
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("webbundle"),
		kong.Description("Bundle JavaScript and stylesheets from a declarative configuration."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Stdout: os.Stdout})
	cmd.FatalIfErrorf(err)
}
