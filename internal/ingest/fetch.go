package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/sched"
)

// tracerName names the spans emitted by this package.
const tracerName = "newsfang"

// onJobScheduled registers the job with the scheduler. A recurring request
// additionally registers a per-source tick that schedules a fresh job each
// interval.
func (p *Pipeline) onJobScheduled(ctx context.Context, evt JobScheduled) error {
	if p.sched == nil {
		return nil
	}

	scheduleErr := p.sched.ScheduleOnce(ctx, evt.JobID, evt.FireAt, func(cbCtx context.Context) error {
		_, execErr := p.cbus.Execute(cbCtx, StartJob{JobID: evt.JobID})

		return execErr
	})
	if scheduleErr != nil {
		return fmt.Errorf("schedule job %s: %w", evt.JobID, scheduleErr)
	}

	if evt.Every <= 0 {
		return nil
	}

	recurErr := p.sched.ScheduleRecurring(ctx, recurringID(evt.SourceID), evt.Every, func(cbCtx context.Context) error {
		_, execErr := p.cbus.Execute(cbCtx, ScheduleJob{SourceID: evt.SourceID, FireAt: p.now()})

		return execErr
	})
	if recurErr != nil && !errors.Is(recurErr, sched.ErrAlreadyScheduled) {
		return fmt.Errorf("schedule recurring collection for source %s: %w", evt.SourceID, recurErr)
	}

	return nil
}

// recurringID names the per-source recurring schedule slot.
func recurringID(sourceID string) string {
	return "recurring:" + sourceID
}

// onJobStarted drives one collection run: fetch through the adapter stack,
// hand every raw item to the content stages, then settle the job and the
// source health. Collection failure fails the job; it never fails the
// subscriber.
func (p *Pipeline) onJobStarted(ctx context.Context, evt JobStarted) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "newsfang.collect_job",
		trace.WithAttributes(
			attribute.String("job_id", evt.JobID),
			attribute.String("source_id", evt.SourceID),
		))
	defer span.End()

	untrack := p.metrics.TrackJob(ctx)
	defer untrack()

	src, getErr := p.sources.Get(ctx, evt.SourceID)
	if getErr != nil {
		p.execute(ctx, FailJob{JobID: evt.JobID, Record: fault.RecordFromError(getErr)})

		return nil
	}

	if !src.IsActive {
		p.logger.InfoContext(ctx, "skipping job for inactive source",
			slog.String("job_id", evt.JobID),
			slog.String("source_id", src.ID),
		)
		p.execute(ctx, CancelJob{JobID: evt.JobID})

		return nil
	}

	outcome, fetchErr := p.fetcher.Fetch(ctx, src)
	if fetchErr != nil {
		rec := fault.RecordFromError(fetchErr)
		rec.RetryCount = outcome.Attempts - 1

		p.execute(ctx, FailJob{JobID: evt.JobID, Record: rec})
		p.execute(ctx, UpdateSourceHealth{SourceID: src.ID, Success: false})

		return nil
	}

	var rawBytes int64
	for _, item := range outcome.Items {
		rawBytes += int64(len(item.RawContent))
	}

	p.execute(ctx, UpdateJobMetrics{JobID: evt.JobID, Delta: job.Metrics{
		ItemsCollected: int64(len(outcome.Items)),
		BytesProcessed: rawBytes,
	}})

	p.metrics.RecordCollected(ctx, src.Type, len(outcome.Items))
	span.SetAttributes(attribute.Int("items_collected", len(outcome.Items)))

	for _, item := range outcome.Items {
		p.ebus.Publish(ctx, ContentCollected{
			JobID:       evt.JobID,
			SourceID:    src.ID,
			RawContent:  item.RawContent,
			Metadata:    item.Metadata,
			CollectedAt: item.CollectedAt,
		})
	}

	p.execute(ctx, CompleteJob{JobID: evt.JobID})
	p.execute(ctx, UpdateSourceHealth{SourceID: src.ID, Success: true})

	return nil
}

// onContentCollected hands a raw item to normalization.
func (p *Pipeline) onContentCollected(ctx context.Context, evt ContentCollected) error {
	p.execute(ctx, NormalizeContent{
		JobID:      evt.JobID,
		SourceID:   evt.SourceID,
		RawContent: evt.RawContent,
		Metadata:   evt.Metadata,
	})

	return nil
}

// onContentNormalized hands normalized content to validation.
func (p *Pipeline) onContentNormalized(ctx context.Context, evt ContentNormalized) error {
	p.execute(ctx, ValidateContentQuality{
		JobID:             evt.JobID,
		SourceID:          evt.SourceID,
		RawContent:        evt.RawContent,
		NormalizedContent: evt.NormalizedContent,
		ContentHash:       evt.ContentHash,
		Metadata:          evt.Metadata,
		AssetTags:         evt.AssetTags,
	})

	return nil
}

// onContentValidated hands validated content to duplicate detection.
func (p *Pipeline) onContentValidated(ctx context.Context, evt ContentQualityValidated) error {
	p.execute(ctx, DetectDuplicate{
		JobID:             evt.JobID,
		SourceID:          evt.SourceID,
		RawContent:        evt.RawContent,
		NormalizedContent: evt.NormalizedContent,
		ContentHash:       evt.ContentHash,
		Metadata:          evt.Metadata,
		AssetTags:         evt.AssetTags,
	})

	return nil
}

// onValidationFailed counts a dropped item against the job.
func (p *Pipeline) onValidationFailed(ctx context.Context, evt ContentValidationFailed) error {
	p.metrics.RecordRejected(ctx, "validation")

	if evt.JobID != "" {
		p.execute(ctx, UpdateJobMetrics{JobID: evt.JobID, Delta: job.Metrics{ValidationErrors: 1}})
	}

	return nil
}

// onDeduplicationChecked drops duplicates and hands fresh items to
// persistence.
func (p *Pipeline) onDeduplicationChecked(ctx context.Context, evt ContentDeduplicationChecked) error {
	if evt.Duplicate {
		p.metrics.RecordDuplicate(ctx)

		if evt.JobID != "" {
			p.execute(ctx, UpdateJobMetrics{JobID: evt.JobID, Delta: job.Metrics{DuplicatesDetected: 1}})
		}

		return nil
	}

	p.execute(ctx, SaveContentItem{
		JobID:             evt.JobID,
		SourceID:          evt.SourceID,
		RawContent:        evt.RawContent,
		NormalizedContent: evt.NormalizedContent,
		ContentHash:       evt.ContentHash,
		Metadata:          evt.Metadata,
		AssetTags:         evt.AssetTags,
	})

	return nil
}

// onContentIngested counts a persisted item against the job. Downstream
// refinement subscribes to the same event independently.
func (p *Pipeline) onContentIngested(ctx context.Context, evt ContentIngested) error {
	p.metrics.RecordIngested(ctx)

	if evt.JobID != "" {
		p.execute(ctx, UpdateJobMetrics{JobID: evt.JobID, Delta: job.Metrics{ItemsPersisted: 1}})
	}

	return nil
}
