package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// handleScheduleJob creates a pending job for an active source and
// announces it; the JobScheduled subscriber registers the timer. Returns
// the new job id.
func (p *Pipeline) handleScheduleJob(ctx context.Context, cmd ScheduleJob) (any, error) {
	src, getErr := p.sources.Get(ctx, cmd.SourceID)
	if getErr != nil {
		return nil, getErr
	}

	if !src.IsActive {
		return nil, fault.Newf(fault.KindValidation, "source %s is not active", src.ID)
	}

	fireAt := cmd.FireAt
	if fireAt.IsZero() {
		fireAt = p.now()
	}

	j, newErr := job.New(uuid.NewString(), src.ID, fireAt.UTC(), job.SourceSnapshot{
		SourceType: src.Type,
		Config:     src.Config,
	})
	if newErr != nil {
		return nil, newErr
	}

	if saveErr := p.jobs.Save(ctx, j); saveErr != nil {
		return nil, saveErr
	}

	p.logger.InfoContext(ctx, "job scheduled",
		slog.String("job_id", j.ID),
		slog.String("source_id", src.ID),
		slog.Time("fire_at", fireAt),
		slog.Duration("every", cmd.Every),
	)

	p.ebus.Publish(ctx, JobScheduled{
		JobID:    j.ID,
		SourceID: src.ID,
		FireAt:   fireAt,
		Every:    cmd.Every,
	})

	return j.ID, nil
}

// handleStartJob moves a pending job to running and announces it; the
// JobStarted subscriber drives the actual collection.
func (p *Pipeline) handleStartJob(ctx context.Context, cmd StartJob) (any, error) {
	j, mutErr := p.mutateJob(ctx, cmd.JobID, func(j *job.Job) error {
		return j.Start(p.now())
	})
	if mutErr != nil {
		return nil, mutErr
	}

	p.ebus.Publish(ctx, JobStarted{JobID: j.ID, SourceID: j.SourceID})

	return nil, nil
}

// handleUpdateJobMetrics merges an additive delta into the job counters.
func (p *Pipeline) handleUpdateJobMetrics(ctx context.Context, cmd UpdateJobMetrics) (any, error) {
	_, mutErr := p.mutateJob(ctx, cmd.JobID, func(j *job.Job) error {
		return j.UpdateMetrics(cmd.Delta)
	})

	return nil, mutErr
}

// handleCompleteJob finishes a running job successfully.
func (p *Pipeline) handleCompleteJob(ctx context.Context, cmd CompleteJob) (any, error) {
	j, mutErr := p.mutateJob(ctx, cmd.JobID, func(j *job.Job) error {
		return j.Complete(p.now())
	})
	if mutErr != nil {
		return nil, mutErr
	}

	p.metrics.RecordJob(ctx, string(job.StatusCompleted), time.Duration(j.Metrics.DurationMs)*time.Millisecond)

	p.logger.InfoContext(ctx, "job completed",
		slog.String("job_id", j.ID),
		slog.String("source_id", j.SourceID),
		slog.Int64("items_collected", j.Metrics.ItemsCollected),
		slog.Int64("items_persisted", j.Metrics.ItemsPersisted),
		slog.Int64("duplicates", j.Metrics.DuplicatesDetected),
	)

	p.ebus.Publish(ctx, JobCompleted{JobID: j.ID, SourceID: j.SourceID, Metrics: j.Metrics})

	return nil, nil
}

// handleFailJob finishes a running job with a fatal error record.
func (p *Pipeline) handleFailJob(ctx context.Context, cmd FailJob) (any, error) {
	j, mutErr := p.mutateJob(ctx, cmd.JobID, func(j *job.Job) error {
		return j.Fail(p.now(), cmd.Record)
	})
	if mutErr != nil {
		return nil, mutErr
	}

	p.metrics.RecordJob(ctx, string(job.StatusFailed), time.Duration(j.Metrics.DurationMs)*time.Millisecond)

	p.logger.WarnContext(ctx, "job failed",
		slog.String("job_id", j.ID),
		slog.String("source_id", j.SourceID),
		slog.String("error_type", string(cmd.Record.Type)),
		slog.String("error", cmd.Record.Message),
	)

	p.ebus.Publish(ctx, JobFailed{JobID: j.ID, SourceID: j.SourceID, Record: cmd.Record})

	return nil, nil
}

// handleCancelJob withdraws a job that has not finished and drops its
// pending timer.
func (p *Pipeline) handleCancelJob(ctx context.Context, cmd CancelJob) (any, error) {
	j, mutErr := p.mutateJob(ctx, cmd.JobID, func(j *job.Job) error {
		return j.Cancel(p.now())
	})
	if mutErr != nil {
		return nil, mutErr
	}

	if p.sched != nil {
		p.sched.Cancel(j.ID)
	}

	p.ebus.Publish(ctx, JobCancelled{JobID: j.ID, SourceID: j.SourceID})

	return nil, nil
}
