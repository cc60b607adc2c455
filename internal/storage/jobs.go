package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// JobStore persists IngestionJob aggregates under optimistic locking.
type JobStore struct {
	db *DB
}

// NewJobStore creates a job store over db.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// Save writes the aggregate. Version 0 inserts; any later version updates
// with a compare-and-swap against the prior version and raises
// fault.Concurrency when the row moved underneath the caller. Callers
// apply exactly one version bump between saves.
func (s *JobStore) Save(ctx context.Context, j *job.Job) error {
	errsJSON, errsErr := marshalJSON(j.Errors)
	if errsErr != nil {
		return errsErr
	}

	snapJSON, snapErr := marshalJSON(j.Source)
	if snapErr != nil {
		return snapErr
	}

	now := fmtTime(time.Now())

	if j.Version == 0 {
		_, insertErr := s.db.exec(ctx, `
			INSERT INTO ingestion_jobs (
				job_id, source_id, status, scheduled_at, executed_at, completed_at,
				items_collected, items_persisted, duplicates_detected,
				validation_errors, bytes_processed, duration_ms,
				errors, source_snapshot, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.SourceID, string(j.Status), fmtTime(j.ScheduledAt),
			fmtTimePtr(j.ExecutedAt), fmtTimePtr(j.CompletedAt),
			j.Metrics.ItemsCollected, j.Metrics.ItemsPersisted, j.Metrics.DuplicatesDetected,
			j.Metrics.ValidationErrors, j.Metrics.BytesProcessed, j.Metrics.DurationMs,
			errsJSON, snapJSON, j.Version, now, now,
		)
		if insertErr != nil {
			return fmt.Errorf("insert job %s: %w", j.ID, insertErr)
		}

		return nil
	}

	res, updateErr := s.db.exec(ctx, `
		UPDATE ingestion_jobs SET
			status = ?, scheduled_at = ?, executed_at = ?, completed_at = ?,
			items_collected = ?, items_persisted = ?, duplicates_detected = ?,
			validation_errors = ?, bytes_processed = ?, duration_ms = ?,
			errors = ?, source_snapshot = ?, version = ?, updated_at = ?
		WHERE job_id = ? AND version = ?`,
		string(j.Status), fmtTime(j.ScheduledAt), fmtTimePtr(j.ExecutedAt), fmtTimePtr(j.CompletedAt),
		j.Metrics.ItemsCollected, j.Metrics.ItemsPersisted, j.Metrics.DuplicatesDetected,
		j.Metrics.ValidationErrors, j.Metrics.BytesProcessed, j.Metrics.DurationMs,
		errsJSON, snapJSON, j.Version, now,
		j.ID, j.Version-1,
	)
	if updateErr != nil {
		return fmt.Errorf("update job %s: %w", j.ID, updateErr)
	}

	return requireOneRow(res, "job", j.ID, j.Version)
}

// Get reconstitutes the aggregate by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.db.queryRow(ctx, `
		SELECT job_id, source_id, status, scheduled_at, executed_at, completed_at,
			items_collected, items_persisted, duplicates_detected,
			validation_errors, bytes_processed, duration_ms,
			errors, source_snapshot, version
		FROM ingestion_jobs WHERE job_id = ?`, jobID)

	j, scanErr := scanJob(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, fault.NotFound("job", jobID)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, scanErr)
	}

	return j, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reconstitutes one job row.
func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j                      job.Job
		status                 string
		scheduledAt            string
		executedAt, completedAt sql.NullString
		errsJSON, snapJSON     string
	)

	scanErr := row.Scan(
		&j.ID, &j.SourceID, &status, &scheduledAt, &executedAt, &completedAt,
		&j.Metrics.ItemsCollected, &j.Metrics.ItemsPersisted, &j.Metrics.DuplicatesDetected,
		&j.Metrics.ValidationErrors, &j.Metrics.BytesProcessed, &j.Metrics.DurationMs,
		&errsJSON, &snapJSON, &j.Version,
	)
	if scanErr != nil {
		return nil, scanErr
	}

	j.Status = job.Status(status)

	parsed, parseErr := parseTime(scheduledAt)
	if parseErr != nil {
		return nil, parseErr
	}

	j.ScheduledAt = parsed

	if j.ExecutedAt, parseErr = parseTimePtr(executedAt); parseErr != nil {
		return nil, parseErr
	}

	if j.CompletedAt, parseErr = parseTimePtr(completedAt); parseErr != nil {
		return nil, parseErr
	}

	if unmarshalErr := unmarshalJSON(errsJSON, &j.Errors); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	if unmarshalErr := unmarshalJSON(snapJSON, &j.Source); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	return &j, nil
}

// JobView is the denormalized read model backing job listings.
type JobView struct {
	ID                 string
	SourceID           string
	Status             job.Status
	ScheduledAt        time.Time
	CompletedAt        *time.Time
	ItemsCollected     int64
	ItemsPersisted     int64
	DuplicatesDetected int64
	LastError          string
}

// List returns job views newest first, optionally filtered by status.
// A non-positive limit returns every row.
func (s *JobStore) List(ctx context.Context, status job.Status, limit int) ([]JobView, error) {
	query := `
		SELECT job_id, source_id, status, scheduled_at, completed_at,
			items_collected, items_persisted, duplicates_detected, errors
		FROM ingestion_jobs`

	var args []any

	if status != "" {
		query += ` WHERE status = ?`

		args = append(args, string(status))
	}

	query += ` ORDER BY scheduled_at DESC`

	if limit > 0 {
		query += ` LIMIT ?`

		args = append(args, limit)
	}

	rows, queryErr := s.db.query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list jobs: %w", queryErr)
	}
	defer rows.Close()

	var views []JobView

	for rows.Next() {
		var (
			v                      JobView
			statusText, scheduledAt string
			completedAt            sql.NullString
			errsJSON               string
		)

		scanErr := rows.Scan(
			&v.ID, &v.SourceID, &statusText, &scheduledAt, &completedAt,
			&v.ItemsCollected, &v.ItemsPersisted, &v.DuplicatesDetected, &errsJSON,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job view: %w", scanErr)
		}

		v.Status = job.Status(statusText)

		parsed, parseErr := parseTime(scheduledAt)
		if parseErr != nil {
			return nil, parseErr
		}

		v.ScheduledAt = parsed

		if v.CompletedAt, parseErr = parseTimePtr(completedAt); parseErr != nil {
			return nil, parseErr
		}

		var recs []fault.ErrorRecord
		if unmarshalErr := unmarshalJSON(errsJSON, &recs); unmarshalErr != nil {
			return nil, unmarshalErr
		}

		if len(recs) > 0 {
			v.LastError = recs[len(recs)-1].Message
		}

		views = append(views, v)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate job views: %w", rowsErr)
	}

	return views, nil
}

// requireOneRow turns a zero-row CAS update into fault.Concurrency.
func requireOneRow(res sql.Result, entity, id string, version int64) error {
	affected, affectedErr := res.RowsAffected()
	if affectedErr != nil {
		return fmt.Errorf("rows affected for %s %s: %w", entity, id, affectedErr)
	}

	if affected == 0 {
		return fault.Concurrency(entity, id, version)
	}

	return nil
}
