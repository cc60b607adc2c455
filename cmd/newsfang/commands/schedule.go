package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/internal/ingest"
	"github.com/Sumatoshi-tech/newsfang/pkg/bus"
)

// inlineStartGrace keeps the timer slot of an inline run far enough out
// that it is cancelled before it can fire.
const inlineStartGrace = time.Hour

// NewScheduleCommand returns the command that schedules an ingestion job
// for a source, one-shot or recurring.
func NewScheduleCommand(opts *GlobalOptions) *cobra.Command {
	var (
		at    string
		every time.Duration
		now   bool
	)

	cmd := &cobra.Command{
		Use:   "schedule <source-id>",
		Short: "Schedule an ingestion job for a source",
		Long: `Schedule creates a pending ingestion job for the given source.

With --now the job runs inline before the command returns. With --at the
job stays pending until the collector daemon picks it up. With --every the
daemon additionally spawns a fresh job on each tick.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fireAt, parseErr := parseFireAt(at)
			if parseErr != nil {
				return parseErr
			}

			if now {
				// Push the timer slot out of the way so the inline start
				// below cannot race the scheduler callback.
				fireAt = time.Now().Add(inlineStartGrace)
			}

			a, loadErr := loadApp(cmd.Context(), opts)
			if loadErr != nil {
				return loadErr
			}

			defer func() { _ = a.Close() }()

			jobID, scheduleErr := bus.Execute[string](cmd.Context(), a.CommandBus, ingest.ScheduleJob{
				SourceID: args[0],
				FireAt:   fireAt,
				Every:    every,
			})
			if scheduleErr != nil {
				return scheduleErr
			}

			if now {
				// Withdraw the timer slot and drive the job inline.
				a.Scheduler.Cancel(jobID)

				_, startErr := a.CommandBus.Execute(cmd.Context(), ingest.StartJob{JobID: jobID})
				if startErr != nil {
					return startErr
				}

				j, getErr := a.Jobs.Get(cmd.Context(), jobID)
				if getErr != nil {
					return getErr
				}

				fmt.Fprintf(cmd.OutOrStdout(), "job %s %s: collected=%d persisted=%d duplicates=%d\n",
					j.ID, j.Status, j.Metrics.ItemsCollected, j.Metrics.ItemsPersisted, j.Metrics.DuplicatesDetected)

				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s scheduled for %s\n", jobID, fireAt.Format(time.RFC3339))

			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "fire time in RFC 3339 (default: now)")
	cmd.Flags().DurationVar(&every, "every", 0, "recurring collection interval (0 disables)")
	cmd.Flags().BoolVar(&now, "now", false, "run the job inline instead of leaving it pending")

	return cmd
}

// parseFireAt interprets the --at flag; empty means now.
func parseFireAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}

	fireAt, parseErr := time.Parse(time.RFC3339, at)
	if parseErr != nil {
		return time.Time{}, fault.Newf(fault.KindValidation, "parse --at %q: must be RFC 3339", at)
	}

	return fireAt, nil
}
