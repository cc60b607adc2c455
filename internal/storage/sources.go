package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// SourceStore persists SourceConfiguration aggregates under optimistic
// locking. Deletion is always soft: rows never leave the table.
type SourceStore struct {
	db *DB
}

// NewSourceStore creates a source store over db.
func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

// Save writes the aggregate with the versioned compare-and-swap protocol.
func (s *SourceStore) Save(ctx context.Context, src *source.Source) error {
	configJSON, configErr := marshalJSON(src.Config)
	if configErr != nil {
		return configErr
	}

	now := fmtTime(time.Now())

	if src.Version == 0 {
		_, insertErr := s.db.exec(ctx, `
			INSERT INTO source_configurations (
				source_id, source_type, name, config, credentials,
				is_active, disabled_reason,
				consecutive_failures, successes, total_jobs, success_rate,
				last_success_at, last_failure_at, health_alerted,
				version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			src.ID, src.Type, src.Name, configJSON, src.Credentials,
			boolToInt(src.IsActive), src.DisabledReason,
			src.Health.ConsecutiveFailures, src.Health.Successes, src.Health.TotalJobs, src.Health.SuccessRate,
			fmtTimePtr(src.Health.LastSuccessAt), fmtTimePtr(src.Health.LastFailureAt), boolToInt(src.HealthAlerted),
			src.Version, now, now,
		)
		if insertErr != nil {
			return fmt.Errorf("insert source %s: %w", src.ID, insertErr)
		}

		return nil
	}

	res, updateErr := s.db.exec(ctx, `
		UPDATE source_configurations SET
			source_type = ?, name = ?, config = ?, credentials = ?,
			is_active = ?, disabled_reason = ?,
			consecutive_failures = ?, successes = ?, total_jobs = ?, success_rate = ?,
			last_success_at = ?, last_failure_at = ?, health_alerted = ?,
			version = ?, updated_at = ?
		WHERE source_id = ? AND version = ?`,
		src.Type, src.Name, configJSON, src.Credentials,
		boolToInt(src.IsActive), src.DisabledReason,
		src.Health.ConsecutiveFailures, src.Health.Successes, src.Health.TotalJobs, src.Health.SuccessRate,
		fmtTimePtr(src.Health.LastSuccessAt), fmtTimePtr(src.Health.LastFailureAt), boolToInt(src.HealthAlerted),
		src.Version, now,
		src.ID, src.Version-1,
	)
	if updateErr != nil {
		return fmt.Errorf("update source %s: %w", src.ID, updateErr)
	}

	return requireOneRow(res, "source", src.ID, src.Version)
}

// Get reconstitutes the aggregate by id.
func (s *SourceStore) Get(ctx context.Context, sourceID string) (*source.Source, error) {
	row := s.db.queryRow(ctx, `
		SELECT source_id, source_type, name, config, credentials,
			is_active, disabled_reason,
			consecutive_failures, successes, total_jobs, success_rate,
			last_success_at, last_failure_at, health_alerted, version
		FROM source_configurations WHERE source_id = ?`, sourceID)

	var (
		src                          source.Source
		configJSON                   string
		isActive, healthAlerted      int
		lastSuccessAt, lastFailureAt sql.NullString
	)

	scanErr := row.Scan(
		&src.ID, &src.Type, &src.Name, &configJSON, &src.Credentials,
		&isActive, &src.DisabledReason,
		&src.Health.ConsecutiveFailures, &src.Health.Successes, &src.Health.TotalJobs, &src.Health.SuccessRate,
		&lastSuccessAt, &lastFailureAt, &healthAlerted, &src.Version,
	)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, fault.NotFound("source", sourceID)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("load source %s: %w", sourceID, scanErr)
	}

	src.IsActive = isActive != 0
	src.HealthAlerted = healthAlerted != 0

	if unmarshalErr := unmarshalJSON(configJSON, &src.Config); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	var parseErr error

	if src.Health.LastSuccessAt, parseErr = parseTimePtr(lastSuccessAt); parseErr != nil {
		return nil, parseErr
	}

	if src.Health.LastFailureAt, parseErr = parseTimePtr(lastFailureAt); parseErr != nil {
		return nil, parseErr
	}

	return &src, nil
}

// SourceView is the denormalized read model backing source listings.
type SourceView struct {
	ID                  string
	Type                string
	Name                string
	IsActive            bool
	DisabledReason      string
	ConsecutiveFailures int
	TotalJobs           int64
	SuccessRate         float64
	LastSuccessAt       *time.Time
	LastFailureAt       *time.Time
}

// List returns every source ordered by name. With activeOnly, disabled
// sources are skipped.
func (s *SourceStore) List(ctx context.Context, activeOnly bool) ([]SourceView, error) {
	query := `
		SELECT source_id, source_type, name, is_active, disabled_reason,
			consecutive_failures, total_jobs, success_rate,
			last_success_at, last_failure_at
		FROM source_configurations`

	if activeOnly {
		query += ` WHERE is_active = 1`
	}

	query += ` ORDER BY name`

	rows, queryErr := s.db.query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list sources: %w", queryErr)
	}
	defer rows.Close()

	var views []SourceView

	for rows.Next() {
		var (
			v                            SourceView
			isActive                     int
			lastSuccessAt, lastFailureAt sql.NullString
		)

		scanErr := rows.Scan(
			&v.ID, &v.Type, &v.Name, &isActive, &v.DisabledReason,
			&v.ConsecutiveFailures, &v.TotalJobs, &v.SuccessRate,
			&lastSuccessAt, &lastFailureAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan source view: %w", scanErr)
		}

		v.IsActive = isActive != 0

		var parseErr error

		if v.LastSuccessAt, parseErr = parseTimePtr(lastSuccessAt); parseErr != nil {
			return nil, parseErr
		}

		if v.LastFailureAt, parseErr = parseTimePtr(lastFailureAt); parseErr != nil {
			return nil, parseErr
		}

		views = append(views, v)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate source views: %w", rowsErr)
	}

	return views, nil
}
