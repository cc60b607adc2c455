package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/newsfang/internal/app"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
)

// defaultStatusLimit bounds the jobs and refinements tables.
const defaultStatusLimit = 20

// NewStatusCommand returns the command that renders the pipeline state:
// configured sources, recent jobs, and recent refinements.
func NewStatusCommand(opts *GlobalOptions) *cobra.Command {
	var (
		limit      int
		activeOnly bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sources, jobs, and refinements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noColor {
				color.NoColor = true
			}

			a, loadErr := loadApp(cmd.Context(), opts)
			if loadErr != nil {
				return loadErr
			}

			defer func() { _ = a.Close() }()

			return renderStatus(cmd, a, limit, activeOnly)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultStatusLimit, "max rows per table")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "show active sources only")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

func renderStatus(cmd *cobra.Command, a *app.App, limit int, activeOnly bool) error {
	out := cmd.OutOrStdout()

	if err := renderSources(cmd, a, out, activeOnly); err != nil {
		return err
	}

	if err := renderJobs(cmd, a, out, limit); err != nil {
		return err
	}

	return renderRefinements(cmd, a, out, limit)
}

func renderSources(cmd *cobra.Command, a *app.App, out io.Writer, activeOnly bool) error {
	sources, listErr := a.Sources.List(cmd.Context(), activeOnly)
	if listErr != nil {
		return fmt.Errorf("list sources: %w", listErr)
	}

	fmt.Fprintln(out, "Sources")

	tw := newTable(out)
	tw.AppendHeader(table.Row{"ID", "Type", "Name", "State", "Jobs", "Success", "Last success"})

	for _, src := range sources {
		state := color.GreenString("active")
		if !src.IsActive {
			state = color.RedString("disabled")
		}

		tw.AppendRow(table.Row{
			shortID(src.ID),
			src.Type,
			src.Name,
			state,
			src.TotalJobs,
			fmt.Sprintf("%.0f%%", src.SuccessRate),
			humanizeAt(src.LastSuccessAt),
		})
	}

	tw.Render()

	return nil
}

func renderJobs(cmd *cobra.Command, a *app.App, out io.Writer, limit int) error {
	jobs, listErr := a.Jobs.List(cmd.Context(), "", limit)
	if listErr != nil {
		return fmt.Errorf("list jobs: %w", listErr)
	}

	fmt.Fprintln(out, "\nRecent jobs")

	tw := newTable(out)
	tw.AppendHeader(table.Row{"ID", "Source", "Status", "Scheduled", "Collected", "Persisted", "Dups", "Error"})

	for _, view := range jobs {
		tw.AppendRow(table.Row{
			shortID(view.ID),
			shortID(view.SourceID),
			colorJobStatus(view.Status),
			humanize.Time(view.ScheduledAt),
			view.ItemsCollected,
			view.ItemsPersisted,
			view.DuplicatesDetected,
			truncate(view.LastError, errorColumnWidth),
		})
	}

	tw.Render()

	return nil
}

func renderRefinements(cmd *cobra.Command, a *app.App, out io.Writer, limit int) error {
	refinements, listErr := a.Refinements.List(cmd.Context(), limit)
	if listErr != nil {
		return fmt.Errorf("list refinements: %w", listErr)
	}

	fmt.Fprintln(out, "\nRecent refinements")

	tw := newTable(out)
	tw.AppendHeader(table.Row{"ID", "Content item", "Status", "Chunks", "Avg quality", "Completed"})

	for _, summary := range refinements {
		tw.AppendRow(table.Row{
			shortID(summary.ID),
			shortID(summary.ContentItemID),
			colorRefinementStatus(summary.Status),
			summary.ChunkCount,
			fmt.Sprintf("%.2f", summary.AvgQuality),
			humanizeAt(summary.CompletedAt),
		})
	}

	tw.Render()

	return nil
}

// errorColumnWidth bounds the error column so one bad job cannot blow up
// the table layout.
const errorColumnWidth = 40

// shortIDWidth is the displayed prefix of UUID columns.
const shortIDWidth = 8

func newTable(out io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)

	return tw
}

func colorJobStatus(status job.Status) string {
	switch status {
	case job.StatusCompleted:
		return color.GreenString(string(status))
	case job.StatusFailed, job.StatusCancelled:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}

func colorRefinementStatus(status refine.Status) string {
	switch status {
	case refine.StatusCompleted:
		return color.GreenString(string(status))
	case refine.StatusRejected, refine.StatusFailed:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}

func humanizeAt(t *time.Time) string {
	if t == nil {
		return "never"
	}

	return humanize.Time(*t)
}

func shortID(id string) string {
	return truncate(id, shortIDWidth)
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}

	return s[:width]
}
