// Package job defines the IngestionJob aggregate: one scheduled collection
// run against a source, its lifecycle state machine, run metrics, and the
// errors recorded along the way. Mutation happens only through aggregate
// methods; every successful mutation bumps the optimistic-lock version.
package job

import (
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// Status is the job lifecycle state.
type Status string

const (
	// StatusPending means the job is scheduled but not yet running.
	StatusPending Status = "PENDING"

	// StatusRunning means collection is in progress.
	StatusRunning Status = "RUNNING"

	// StatusCompleted means the run finished successfully.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed means the run ended in an unrecoverable error.
	StatusFailed Status = "FAILED"

	// StatusCancelled means the job was withdrawn before completion.
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	case StatusPending, StatusRunning:
		return false
	default:
		return false
	}
}

// Metrics accumulates the counters of one run. All updates are additive so
// duplicate deliveries of the same delta stay explainable.
type Metrics struct {
	ItemsCollected     int64 `json:"itemsCollected"`
	ItemsPersisted     int64 `json:"itemsPersisted"`
	DuplicatesDetected int64 `json:"duplicatesDetected"`
	ValidationErrors   int64 `json:"validationErrors"`
	BytesProcessed     int64 `json:"bytesProcessed"`
	DurationMs         int64 `json:"durationMs"`
}

// Add merges a delta field-wise.
func (m *Metrics) Add(delta Metrics) {
	m.ItemsCollected += delta.ItemsCollected
	m.ItemsPersisted += delta.ItemsPersisted
	m.DuplicatesDetected += delta.DuplicatesDetected
	m.ValidationErrors += delta.ValidationErrors
	m.BytesProcessed += delta.BytesProcessed
	m.DurationMs += delta.DurationMs
}

// SourceSnapshot embeds the source settings the job ran with, so a run
// stays explainable after the source configuration changes.
type SourceSnapshot struct {
	SourceType string         `json:"sourceType"`
	Config     map[string]any `json:"config"`
}

// Job is the IngestionJob aggregate root.
type Job struct {
	ID          string
	SourceID    string
	Status      Status
	ScheduledAt time.Time
	ExecutedAt  *time.Time
	CompletedAt *time.Time
	Metrics     Metrics
	Errors      []fault.ErrorRecord
	Source      SourceSnapshot
	Version     int64
}

// New creates a pending job at version 0.
func New(id, sourceID string, scheduledAt time.Time, snapshot SourceSnapshot) (*Job, error) {
	if id == "" {
		return nil, fault.New(fault.KindValidation, "job id must not be empty")
	}

	if sourceID == "" {
		return nil, fault.New(fault.KindValidation, "job source id must not be empty")
	}

	return &Job{
		ID:          id,
		SourceID:    sourceID,
		Status:      StatusPending,
		ScheduledAt: scheduledAt,
		Source:      snapshot,
		Version:     0,
	}, nil
}

// Start moves the job from PENDING to RUNNING.
func (j *Job) Start(now time.Time) error {
	if j.Status != StatusPending {
		return fault.Invariant("cannot start job %s in status %s", j.ID, j.Status)
	}

	executedAt := now.UTC()
	j.Status = StatusRunning
	j.ExecutedAt = &executedAt
	j.Version++

	return nil
}

// UpdateMetrics merges a delta. Rejected once the job is terminal.
func (j *Job) UpdateMetrics(delta Metrics) error {
	if j.Status.Terminal() {
		return fault.Invariant("cannot update metrics of job %s in terminal status %s", j.ID, j.Status)
	}

	j.Metrics.Add(delta)
	j.Version++

	return nil
}

// RecordError appends an error record. Rejected once the job is terminal.
func (j *Job) RecordError(rec fault.ErrorRecord) error {
	if j.Status.Terminal() {
		return fault.Invariant("cannot record error on job %s in terminal status %s", j.ID, j.Status)
	}

	j.Errors = append(j.Errors, rec)
	j.Version++

	return nil
}

// Complete moves the job from RUNNING to COMPLETED and stamps the run
// duration.
func (j *Job) Complete(now time.Time) error {
	if j.Status != StatusRunning {
		return fault.Invariant("cannot complete job %s in status %s", j.ID, j.Status)
	}

	completedAt := now.UTC()
	j.Status = StatusCompleted
	j.CompletedAt = &completedAt
	j.stampDuration(completedAt)
	j.Version++

	return nil
}

// Fail moves the job from RUNNING to FAILED, appending the fatal record.
func (j *Job) Fail(now time.Time, rec fault.ErrorRecord) error {
	if j.Status != StatusRunning {
		return fault.Invariant("cannot fail job %s in status %s", j.ID, j.Status)
	}

	completedAt := now.UTC()
	j.Status = StatusFailed
	j.CompletedAt = &completedAt
	j.Errors = append(j.Errors, rec)
	j.stampDuration(completedAt)
	j.Version++

	return nil
}

// Cancel withdraws a job that has not yet finished.
func (j *Job) Cancel(now time.Time) error {
	if j.Status.Terminal() {
		return fault.Invariant("cannot cancel job %s in terminal status %s", j.ID, j.Status)
	}

	completedAt := now.UTC()
	j.Status = StatusCancelled
	j.CompletedAt = &completedAt
	j.Version++

	return nil
}

// stampDuration records the wall time between execution start and end.
func (j *Job) stampDuration(endedAt time.Time) {
	if j.ExecutedAt == nil {
		return
	}

	j.Metrics.DurationMs = endedAt.Sub(*j.ExecutedAt).Milliseconds()
}
