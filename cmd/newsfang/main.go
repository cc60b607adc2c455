// Package main provides the entry point for the newsfang CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/newsfang/cmd/newsfang/commands"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/version"
)

// Exit codes by failure class, so shell callers can branch on the outcome.
const (
	exitOK          = 0
	exitUnknown     = 1
	exitValidation  = 2
	exitTransient   = 3
	exitNotFound    = 4
	exitConcurrency = 5
)

func main() {
	version.InitBinaryVersion()

	opts := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "newsfang",
		Short: "Newsfang - event-driven content ingestion and refinement pipeline",
		Long: `Newsfang collects content from configured sources, normalizes and
deduplicates it, then chunks and enriches it for downstream consumption.

Commands:
  run               Long-running collector: scheduler + diagnostics server
  schedule          Schedule a one-shot or recurring ingestion job
  status            Show sources, jobs, and refinements
  configure-source  Create, update, or delete a source from a YAML definition
  process-content   Feed raw text through the full pipeline`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.Bind(rootCmd.PersistentFlags())

	// Add commands.
	rootCmd.AddCommand(commands.NewRunCommand(opts))
	rootCmd.AddCommand(commands.NewScheduleCommand(opts))
	rootCmd.AddCommand(commands.NewStatusCommand(opts))
	rootCmd.AddCommand(commands.NewConfigureSourceCommand(opts))
	rootCmd.AddCommand(commands.NewProcessContentCommand(opts))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}

	os.Exit(exitOK)
}

// exitCode maps the failure taxonomy onto process exit codes.
func exitCode(err error) int {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return exitValidation
	case fault.KindTransient:
		return exitTransient
	case fault.KindNotFound:
		return exitNotFound
	case fault.KindConcurrency:
		return exitConcurrency
	default:
		return exitUnknown
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "newsfang %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
