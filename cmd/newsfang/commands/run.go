package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/newsfang/internal/app"
	"github.com/Sumatoshi-tech/newsfang/internal/config"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/ingest"
	"github.com/Sumatoshi-tech/newsfang/internal/observability"
	"github.com/Sumatoshi-tech/newsfang/pkg/version"
)

// NewRunCommand returns the long-running collector command: it arms the
// scheduler, serves diagnostics, and exports telemetry until a signal
// arrives.
func NewRunCommand(opts *GlobalOptions) *cobra.Command {
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts, logJSON)
		},
	}

	cmd.Flags().BoolVar(&logJSON, "log-json", true, "emit JSON-formatted logs")

	return cmd
}

func runDaemon(ctx context.Context, opts *GlobalOptions, logJSON bool) error {
	cfg, loadErr := config.LoadConfig(opts.ConfigPath)
	if loadErr != nil {
		return fmt.Errorf("load config: %w", loadErr)
	}

	providers, initErr := observability.Init(observability.Config{
		ServiceName:    "newsfang",
		ServiceVersion: version.Version,
		Environment:    cfg.Observability.Environment,
		Mode:           observability.ModeRun,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPInsecure:   cfg.Observability.OTLPInsecure,
		Prometheus:     cfg.Observability.Prometheus,
		SampleRatio:    cfg.Observability.SampleRatio,
		LogLevel:       opts.logLevel(),
		LogJSON:        logJSON,
	})
	if initErr != nil {
		return fmt.Errorf("init observability: %w", initErr)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("telemetry shutdown incomplete", slog.String("error", shutdownErr.Error()))
		}
	}()

	metrics, metricsErr := observability.NewPipelineMetrics(providers.Meter)
	if metricsErr != nil {
		return fmt.Errorf("build pipeline metrics: %w", metricsErr)
	}

	a, newErr := app.New(ctx, cfg, app.Options{Logger: providers.Logger, Metrics: metrics})
	if newErr != nil {
		return fmt.Errorf("wire pipeline: %w", newErr)
	}

	defer func() { _ = a.Close() }()

	diag, diagErr := observability.NewDiagnosticsServer(
		cfg.Observability.DiagnosticsAddr, providers.MetricsHandler, a.ReadyChecks()...)
	if diagErr != nil {
		return fmt.Errorf("start diagnostics server: %w", diagErr)
	}

	defer func() { _ = diag.Close() }()

	rearmed, rearmErr := rearmPendingJobs(ctx, a)
	if rearmErr != nil {
		return fmt.Errorf("rearm pending jobs: %w", rearmErr)
	}

	providers.Logger.InfoContext(ctx, "newsfang running",
		slog.String("version", version.Version),
		slog.String("diagnostics", diag.Addr()),
		slog.Int("rearmed_jobs", rearmed))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	providers.Logger.InfoContext(ctx, "shutting down")

	return nil
}

// rearmPendingJobs re-registers schedules for jobs that were pending when
// the previous process exited. Schedules live in process memory, so a
// restart would otherwise strand them in the store.
func rearmPendingJobs(ctx context.Context, a *app.App) (int, error) {
	pending, listErr := a.Jobs.List(ctx, job.StatusPending, 0)
	if listErr != nil {
		return 0, listErr
	}

	for _, view := range pending {
		jobID := view.ID

		scheduleErr := a.Scheduler.ScheduleOnce(ctx, jobID, view.ScheduledAt, func(cbCtx context.Context) error {
			_, execErr := a.CommandBus.Execute(cbCtx, ingest.StartJob{JobID: jobID})

			return execErr
		})
		if scheduleErr != nil {
			return 0, fmt.Errorf("rearm job %s: %w", jobID, scheduleErr)
		}
	}

	return len(pending), nil
}
