// Package ingest wires the ingestion stage: scheduled jobs collect raw
// content through source adapters, normalize and validate it, deduplicate
// by content hash, persist it, and keep job metrics and source health
// current. Commands carry the state changes; events carry the stage
// hand-offs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/adapter"
	"github.com/Sumatoshi-tech/newsfang/internal/crypto"
	"github.com/Sumatoshi-tech/newsfang/internal/dedup"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/internal/observability"
	"github.com/Sumatoshi-tech/newsfang/internal/storage"
	"github.com/Sumatoshi-tech/newsfang/pkg/bus"
	"github.com/Sumatoshi-tech/newsfang/pkg/retry"
	"github.com/Sumatoshi-tech/newsfang/pkg/sched"
)

// errUnchanged signals that a mutation was a no-op and the aggregate must
// not be written back; writing an unbumped version would trip the
// optimistic lock.
var errUnchanged = errors.New("ingest: aggregate unchanged")

// Deps carries everything the pipeline needs. CommandBus, EventBus,
// JobStore, SourceStore, ContentStore, and Dedup are required; Scheduler,
// Fetcher, Registry, Keys, Metrics, Logger, and Now have working defaults
// or degrade gracefully when absent.
type Deps struct {
	Jobs     *storage.JobStore
	Sources  *storage.SourceStore
	Contents *storage.ContentStore
	Dedup    *dedup.Detector
	Fetcher  *adapter.Fetcher
	Registry *adapter.Registry
	Sched    *sched.Scheduler
	Keys     crypto.KeyProvider

	CommandBus *bus.CommandBus
	EventBus   *bus.EventBus
	Metrics    *observability.PipelineMetrics

	Thresholds source.Thresholds
	Validation ValidationConfig

	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline owns the ingestion command handlers and event glue.
type Pipeline struct {
	jobs     *storage.JobStore
	sources  *storage.SourceStore
	contents *storage.ContentStore
	dedup    *dedup.Detector
	fetcher  *adapter.Fetcher
	registry *adapter.Registry
	sched    *sched.Scheduler
	keys     crypto.KeyProvider

	cbus    *bus.CommandBus
	ebus    *bus.EventBus
	metrics *observability.PipelineMetrics

	thresholds source.Thresholds
	validation ValidationConfig

	logger *slog.Logger
	now    func() time.Time
}

// New assembles the pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Metrics == nil {
		deps.Metrics = observability.NewNopPipelineMetrics()
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	if deps.Validation.MinLength == 0 && deps.Validation.MaxLength == 0 {
		deps.Validation = DefaultValidationConfig()
	}

	if deps.Thresholds == (source.Thresholds{}) {
		deps.Thresholds = source.DefaultThresholds()
	}

	return &Pipeline{
		jobs:       deps.Jobs,
		sources:    deps.Sources,
		contents:   deps.Contents,
		dedup:      deps.Dedup,
		fetcher:    deps.Fetcher,
		registry:   deps.Registry,
		sched:      deps.Sched,
		keys:       deps.Keys,
		cbus:       deps.CommandBus,
		ebus:       deps.EventBus,
		metrics:    deps.Metrics,
		thresholds: deps.Thresholds,
		validation: deps.Validation,
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

// Register binds every command handler and event subscription, then
// self-checks the command surface so a miswired pipeline fails at startup.
func (p *Pipeline) Register() error {
	registrations := map[string]bus.CommandHandler{
		CmdScheduleJob:        bus.Typed(p.handleScheduleJob),
		CmdStartJob:           bus.Typed(p.handleStartJob),
		CmdUpdateJobMetrics:   bus.Typed(p.handleUpdateJobMetrics),
		CmdCompleteJob:        bus.Typed(p.handleCompleteJob),
		CmdFailJob:            bus.Typed(p.handleFailJob),
		CmdCancelJob:          bus.Typed(p.handleCancelJob),
		CmdNormalizeContent:   bus.Typed(p.handleNormalizeContent),
		CmdValidateContent:    bus.Typed(p.handleValidateContentQuality),
		CmdDetectDuplicate:    bus.Typed(p.handleDetectDuplicate),
		CmdSaveContentItem:    bus.Typed(p.handleSaveContentItem),
		CmdCreateSource:       bus.Typed(p.handleCreateSource),
		CmdUpdateSource:       bus.Typed(p.handleUpdateSource),
		CmdDeleteSource:       bus.Typed(p.handleDeleteSource),
		CmdUpdateSourceHealth: bus.Typed(p.handleUpdateSourceHealth),
	}

	for name, handler := range registrations {
		if registerErr := p.cbus.Register(name, handler); registerErr != nil {
			return fmt.Errorf("register %s: %w", name, registerErr)
		}
	}

	p.ebus.Subscribe(EvtJobScheduled, bus.On(p.onJobScheduled))
	p.ebus.Subscribe(EvtJobStarted, bus.On(p.onJobStarted))
	p.ebus.Subscribe(EvtContentCollected, bus.On(p.onContentCollected))
	p.ebus.Subscribe(EvtContentNormalized, bus.On(p.onContentNormalized))
	p.ebus.Subscribe(EvtContentValidated, bus.On(p.onContentValidated))
	p.ebus.Subscribe(EvtValidationFailed, bus.On(p.onValidationFailed))
	p.ebus.Subscribe(EvtDeduplicationDone, bus.On(p.onDeduplicationChecked))
	p.ebus.Subscribe(EvtContentIngested, bus.On(p.onContentIngested))
	p.ebus.Subscribe(EvtSourceUnhealthy, bus.On(p.onSourceUnhealthy))

	names := make([]string, 0, len(registrations))
	for name := range registrations {
		names = append(names, name)
	}

	return p.cbus.SelfCheck(names...)
}

// lockRetryPolicy bounds optimistic-lock retries: the initial attempt plus
// three more at 50/100/200ms. Only concurrency conflicts retry.
func lockRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  4,
		InitialDelay: 50 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     200 * time.Millisecond,
		Retryable: func(err error) bool {
			return fault.Is(err, fault.KindConcurrency)
		},
	}
}

// mutateJob runs one load-mutate-save cycle against a job under the lock
// retry policy. Exactly one aggregate mutation per cycle keeps the version
// chain intact.
func (p *Pipeline) mutateJob(ctx context.Context, jobID string, mutate func(*job.Job) error) (*job.Job, error) {
	res := retry.Execute(ctx, lockRetryPolicy(), func(ctx context.Context) (*job.Job, error) {
		j, getErr := p.jobs.Get(ctx, jobID)
		if getErr != nil {
			return nil, getErr
		}

		if mutErr := mutate(j); mutErr != nil {
			return nil, mutErr
		}

		if saveErr := p.jobs.Save(ctx, j); saveErr != nil {
			return nil, saveErr
		}

		return j, nil
	})

	return res.Value, res.Err
}

// mutateSource is mutateJob's twin for sources. A mutate returning
// errUnchanged skips the write.
func (p *Pipeline) mutateSource(ctx context.Context, sourceID string, mutate func(*source.Source) error) (*source.Source, error) {
	res := retry.Execute(ctx, lockRetryPolicy(), func(ctx context.Context) (*source.Source, error) {
		s, getErr := p.sources.Get(ctx, sourceID)
		if getErr != nil {
			return nil, getErr
		}

		mutErr := mutate(s)
		if errors.Is(mutErr, errUnchanged) {
			return s, nil
		}

		if mutErr != nil {
			return nil, mutErr
		}

		if saveErr := p.sources.Save(ctx, s); saveErr != nil {
			return nil, saveErr
		}

		return s, nil
	})

	return res.Value, res.Err
}

// execute routes a command and logs a failure instead of propagating it.
// Event glue uses it: a broken follow-up command must not poison the
// publishing stage.
func (p *Pipeline) execute(ctx context.Context, cmd bus.Command) {
	if _, execErr := p.cbus.Execute(ctx, cmd); execErr != nil {
		p.logger.ErrorContext(ctx, "command failed",
			slog.String("command", cmd.CommandName()),
			slog.String("error", execErr.Error()),
		)
	}
}
