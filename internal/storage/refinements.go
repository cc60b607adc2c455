package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// ErrActiveRefinementExists is returned when inserting a refinement for a
// content item that already has a non-terminal one. The partial unique
// index on live statuses enforces the one-active-run rule in the store.
var ErrActiveRefinementExists = errors.New("storage: content item already has an active refinement")

// RefinementStore persists ContentRefinement aggregates and their chunk
// entities. Aggregate row and chunk rows move together in one transaction.
type RefinementStore struct {
	db *DB
}

// NewRefinementStore creates a refinement store over db.
func NewRefinementStore(db *DB) *RefinementStore {
	return &RefinementStore{db: db}
}

// Save writes the aggregate with the versioned compare-and-swap protocol.
// Chunk rows are rewritten wholesale on update: indices and chain pointers
// are reassigned by the aggregate on every accepted chunk, so a rewrite is
// the simplest way to keep the child table exact.
func (s *RefinementStore) Save(ctx context.Context, r *refine.Refinement) error {
	return s.db.WithTx(ctx, func(tx *Tx) error {
		now := fmtTime(time.Now())

		if r.Version == 0 {
			_, insertErr := tx.exec(ctx, `
				INSERT INTO content_refinements (
					refinement_id, content_item_id, status,
					started_at, completed_at, rejected_at,
					rejection_reason, error, previous_refinement_id,
					chunk_count, avg_quality, version, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.ContentItemID, string(r.Status),
				fmtTimePtr(r.StartedAt), fmtTimePtr(r.CompletedAt), fmtTimePtr(r.RejectedAt),
				r.RejectionReason, r.Err, r.PreviousRefinementID,
				len(r.Chunks), r.AverageQualityScore(), r.Version, now, now,
			)
			if insertErr != nil {
				if IsUniqueViolation(insertErr) {
					return fmt.Errorf("%w: %s", ErrActiveRefinementExists, r.ContentItemID)
				}

				return fmt.Errorf("insert refinement %s: %w", r.ID, insertErr)
			}

			return saveChunks(ctx, tx, r)
		}

		res, updateErr := tx.exec(ctx, `
			UPDATE content_refinements SET
				status = ?, started_at = ?, completed_at = ?, rejected_at = ?,
				rejection_reason = ?, error = ?, previous_refinement_id = ?,
				chunk_count = ?, avg_quality = ?, version = ?, updated_at = ?
			WHERE refinement_id = ? AND version = ?`,
			string(r.Status), fmtTimePtr(r.StartedAt), fmtTimePtr(r.CompletedAt), fmtTimePtr(r.RejectedAt),
			r.RejectionReason, r.Err, r.PreviousRefinementID,
			len(r.Chunks), r.AverageQualityScore(), r.Version, now,
			r.ID, r.Version-1,
		)
		if updateErr != nil {
			return fmt.Errorf("update refinement %s: %w", r.ID, updateErr)
		}

		if rowErr := requireOneRow(res, "refinement", r.ID, r.Version); rowErr != nil {
			return rowErr
		}

		if _, deleteErr := tx.exec(ctx,
			`DELETE FROM refinement_chunks WHERE refinement_id = ?`, r.ID,
		); deleteErr != nil {
			return fmt.Errorf("clear chunks of refinement %s: %w", r.ID, deleteErr)
		}

		return saveChunks(ctx, tx, r)
	})
}

// saveChunks inserts every chunk row of r.
func saveChunks(ctx context.Context, tx *Tx, r *refine.Refinement) error {
	for _, c := range r.Chunks {
		positionJSON, positionErr := marshalJSON(c.Position)
		if positionErr != nil {
			return positionErr
		}

		entitiesJSON, entitiesErr := marshalJSON(c.Entities)
		if entitiesErr != nil {
			return entitiesErr
		}

		qualityJSON, qualityErr := marshalJSON(c.Quality)
		if qualityErr != nil {
			return qualityErr
		}

		var temporalJSON any

		if c.Temporal != nil {
			rendered, temporalErr := marshalJSON(c.Temporal)
			if temporalErr != nil {
				return temporalErr
			}

			temporalJSON = rendered
		}

		_, insertErr := tx.exec(ctx, `
			INSERT INTO refinement_chunks (
				chunk_id, refinement_id, content, position, hash,
				entities, temporal_context, quality_score,
				prev_chunk_id, next_chunk_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, r.ID, c.Content, positionJSON, c.Hash,
			entitiesJSON, temporalJSON, qualityJSON,
			c.PrevChunkID, c.NextChunkID,
		)
		if insertErr != nil {
			return fmt.Errorf("insert chunk %s of refinement %s: %w", c.ID, r.ID, insertErr)
		}
	}

	return nil
}

// Get reconstitutes the aggregate and its chunks by id.
func (s *RefinementStore) Get(ctx context.Context, refinementID string) (*refine.Refinement, error) {
	row := s.db.queryRow(ctx, `
		SELECT refinement_id, content_item_id, status,
			started_at, completed_at, rejected_at,
			rejection_reason, error, previous_refinement_id, version
		FROM content_refinements WHERE refinement_id = ?`, refinementID)

	r, scanErr := scanRefinement(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, fault.NotFound("refinement", refinementID)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("load refinement %s: %w", refinementID, scanErr)
	}

	chunks, chunksErr := s.loadChunks(ctx, refinementID)
	if chunksErr != nil {
		return nil, chunksErr
	}

	r.Chunks = chunks

	return r, nil
}

// FindActiveByContentItem returns the non-terminal refinement of a content
// item, or fault.NotFound when none is live.
func (s *RefinementStore) FindActiveByContentItem(ctx context.Context, contentItemID string) (*refine.Refinement, error) {
	row := s.db.queryRow(ctx, `
		SELECT refinement_id, content_item_id, status,
			started_at, completed_at, rejected_at,
			rejection_reason, error, previous_refinement_id, version
		FROM content_refinements
		WHERE content_item_id = ? AND status IN ('pending', 'processing')`, contentItemID)

	r, scanErr := scanRefinement(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, fault.NotFound("active refinement for content item", contentItemID)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("load active refinement of %s: %w", contentItemID, scanErr)
	}

	chunks, chunksErr := s.loadChunks(ctx, r.ID)
	if chunksErr != nil {
		return nil, chunksErr
	}

	r.Chunks = chunks

	return r, nil
}

// FindLatestByContentItem returns the most recent refinement of a content
// item regardless of status, or fault.NotFound when the item was never
// refined.
func (s *RefinementStore) FindLatestByContentItem(ctx context.Context, contentItemID string) (*refine.Refinement, error) {
	row := s.db.queryRow(ctx, `
		SELECT refinement_id, content_item_id, status,
			started_at, completed_at, rejected_at,
			rejection_reason, error, previous_refinement_id, version
		FROM content_refinements
		WHERE content_item_id = ?
		ORDER BY created_at DESC, refinement_id DESC LIMIT 1`, contentItemID)

	r, scanErr := scanRefinement(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, fault.NotFound("refinement for content item", contentItemID)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("load latest refinement of %s: %w", contentItemID, scanErr)
	}

	chunks, chunksErr := s.loadChunks(ctx, r.ID)
	if chunksErr != nil {
		return nil, chunksErr
	}

	r.Chunks = chunks

	return r, nil
}

// scanRefinement reconstitutes one refinement row without its chunks.
func scanRefinement(row rowScanner) (*refine.Refinement, error) {
	var (
		r                                  refine.Refinement
		status                             string
		startedAt, completedAt, rejectedAt sql.NullString
	)

	scanErr := row.Scan(
		&r.ID, &r.ContentItemID, &status,
		&startedAt, &completedAt, &rejectedAt,
		&r.RejectionReason, &r.Err, &r.PreviousRefinementID, &r.Version,
	)
	if scanErr != nil {
		return nil, scanErr
	}

	r.Status = refine.Status(status)

	var parseErr error

	if r.StartedAt, parseErr = parseTimePtr(startedAt); parseErr != nil {
		return nil, parseErr
	}

	if r.CompletedAt, parseErr = parseTimePtr(completedAt); parseErr != nil {
		return nil, parseErr
	}

	if r.RejectedAt, parseErr = parseTimePtr(rejectedAt); parseErr != nil {
		return nil, parseErr
	}

	return &r, nil
}

// loadChunks reads the chunk entities of one refinement in index order.
func (s *RefinementStore) loadChunks(ctx context.Context, refinementID string) ([]refine.Chunk, error) {
	rows, queryErr := s.db.query(ctx, `
		SELECT chunk_id, content, position, hash,
			entities, temporal_context, quality_score,
			prev_chunk_id, next_chunk_id
		FROM refinement_chunks WHERE refinement_id = ?`, refinementID)
	if queryErr != nil {
		return nil, fmt.Errorf("load chunks of refinement %s: %w", refinementID, queryErr)
	}
	defer rows.Close()

	var chunks []refine.Chunk

	for rows.Next() {
		var (
			c                                      refine.Chunk
			positionJSON, entitiesJSON, qualityJSON string
			temporalJSON                           sql.NullString
		)

		scanErr := rows.Scan(
			&c.ID, &c.Content, &positionJSON, &c.Hash,
			&entitiesJSON, &temporalJSON, &qualityJSON,
			&c.PrevChunkID, &c.NextChunkID,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan chunk of refinement %s: %w", refinementID, scanErr)
		}

		if unmarshalErr := unmarshalJSON(positionJSON, &c.Position); unmarshalErr != nil {
			return nil, unmarshalErr
		}

		if unmarshalErr := unmarshalJSON(entitiesJSON, &c.Entities); unmarshalErr != nil {
			return nil, unmarshalErr
		}

		if unmarshalErr := unmarshalJSON(qualityJSON, &c.Quality); unmarshalErr != nil {
			return nil, unmarshalErr
		}

		if temporalJSON.Valid && temporalJSON.String != "" {
			c.Temporal = &refine.TemporalContext{}
			if unmarshalErr := unmarshalJSON(temporalJSON.String, c.Temporal); unmarshalErr != nil {
				return nil, unmarshalErr
			}
		}

		chunks = append(chunks, c)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate chunks of refinement %s: %w", refinementID, rowsErr)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Position.Index < chunks[j].Position.Index
	})

	return chunks, nil
}

// RefinementSummary is the denormalized read model backing refinement
// listings.
type RefinementSummary struct {
	ID            string
	ContentItemID string
	Status        refine.Status
	ChunkCount    int
	AvgQuality    float64
	CompletedAt   *time.Time
}

// List returns refinement summaries newest first. A non-positive limit
// returns every row.
func (s *RefinementStore) List(ctx context.Context, limit int) ([]RefinementSummary, error) {
	query := `
		SELECT refinement_id, content_item_id, status, chunk_count, avg_quality, completed_at
		FROM content_refinements ORDER BY created_at DESC`

	var args []any

	if limit > 0 {
		query += ` LIMIT ?`

		args = append(args, limit)
	}

	rows, queryErr := s.db.query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list refinements: %w", queryErr)
	}
	defer rows.Close()

	var summaries []RefinementSummary

	for rows.Next() {
		var (
			summary     RefinementSummary
			status      string
			completedAt sql.NullString
		)

		scanErr := rows.Scan(
			&summary.ID, &summary.ContentItemID, &status,
			&summary.ChunkCount, &summary.AvgQuality, &completedAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan refinement summary: %w", scanErr)
		}

		summary.Status = refine.Status(status)

		var parseErr error

		if summary.CompletedAt, parseErr = parseTimePtr(completedAt); parseErr != nil {
			return nil, parseErr
		}

		summaries = append(summaries, summary)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate refinement summaries: %w", rowsErr)
	}

	return summaries, nil
}
