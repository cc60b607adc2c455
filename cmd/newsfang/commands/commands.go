// Package commands implements CLI command handlers for newsfang.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/newsfang/internal/app"
	"github.com/Sumatoshi-tech/newsfang/internal/config"
)

// GlobalOptions carries the persistent flags shared by every subcommand.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// Bind registers the persistent flags on fs.
func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigPath, "config", "c", "", "config file path (default: .newsfang.yaml in CWD or $HOME)")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "verbose output")
	fs.BoolVarP(&o.Quiet, "quiet", "q", false, "suppress non-error output")
}

// logLevel maps the verbosity flags onto a slog severity.
func (o *GlobalOptions) logLevel() slog.Level {
	switch {
	case o.Quiet:
		return slog.LevelError
	case o.Verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// logger builds the command logger for one-shot invocations.
func (o *GlobalOptions) logger() *slog.Logger {
	var out io.Writer = os.Stderr
	if o.Quiet {
		out = io.Discard
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: o.logLevel()}))
}

// loadApp loads the configuration and wires the full pipeline for a
// one-shot command. The caller owns the returned App and must Close it.
func loadApp(ctx context.Context, opts *GlobalOptions) (*app.App, error) {
	cfg, loadErr := config.LoadConfig(opts.ConfigPath)
	if loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}

	a, newErr := app.New(ctx, cfg, app.Options{Logger: opts.logger()})
	if newErr != nil {
		return nil, fmt.Errorf("wire pipeline: %w", newErr)
	}

	return a, nil
}
