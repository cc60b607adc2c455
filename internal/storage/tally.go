package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// Tally is the fan-in state of one refinement: how many chunks exist, how
// many enrichment outcomes arrived, and how many passed quality filtering.
type Tally struct {
	RefinementID string
	Total        int
	Processed    int
	Valid        int
}

// Done reports whether every expected chunk has an outcome.
func (t Tally) Done() bool {
	return t.Processed >= t.Total
}

// TallyStore owns refinement_chunk_tallies, the single source of truth for
// chunk fan-in. All increments go through one atomic UPDATE ... RETURNING
// statement, so concurrent enrichment handlers can never double-count or
// lose the all-chunks-done edge.
type TallyStore struct {
	db *DB
}

// NewTallyStore creates a tally store over db.
func NewTallyStore(db *DB) *TallyStore {
	return &TallyStore{db: db}
}

// Create opens the tally for a refinement expecting total chunks.
func (s *TallyStore) Create(ctx context.Context, refinementID string, total int) error {
	if total < 0 {
		return fault.Newf(fault.KindValidation, "tally total %d must not be negative", total)
	}

	_, insertErr := s.db.exec(ctx, `
		INSERT INTO refinement_chunk_tallies (refinement_id, total, processed, valid)
		VALUES (?, ?, 0, 0)`, refinementID, total)
	if insertErr != nil {
		return fmt.Errorf("create tally for refinement %s: %w", refinementID, insertErr)
	}

	return nil
}

// Record counts one chunk outcome and returns the post-increment tally.
// The increment and the read happen in one statement; the caller that
// observes processed == total is the unique winner of the fan-in edge.
func (s *TallyStore) Record(ctx context.Context, refinementID string, passed bool) (Tally, error) {
	validDelta := 0
	if passed {
		validDelta = 1
	}

	row := s.db.queryRow(ctx, `
		UPDATE refinement_chunk_tallies
		SET processed = processed + 1, valid = valid + ?
		WHERE refinement_id = ?
		RETURNING total, processed, valid`, validDelta, refinementID)

	tally := Tally{RefinementID: refinementID}

	scanErr := row.Scan(&tally.Total, &tally.Processed, &tally.Valid)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return Tally{}, fault.NotFound("tally", refinementID)
	}

	if scanErr != nil {
		return Tally{}, fmt.Errorf("record chunk outcome for refinement %s: %w", refinementID, scanErr)
	}

	return tally, nil
}

// Get reads the tally without changing it.
func (s *TallyStore) Get(ctx context.Context, refinementID string) (Tally, error) {
	row := s.db.queryRow(ctx, `
		SELECT total, processed, valid
		FROM refinement_chunk_tallies WHERE refinement_id = ?`, refinementID)

	tally := Tally{RefinementID: refinementID}

	scanErr := row.Scan(&tally.Total, &tally.Processed, &tally.Valid)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return Tally{}, fault.NotFound("tally", refinementID)
	}

	if scanErr != nil {
		return Tally{}, fmt.Errorf("load tally of refinement %s: %w", refinementID, scanErr)
	}

	return tally, nil
}

// Delete removes the tally after finalization.
func (s *TallyStore) Delete(ctx context.Context, refinementID string) error {
	_, deleteErr := s.db.exec(ctx,
		`DELETE FROM refinement_chunk_tallies WHERE refinement_id = ?`, refinementID)
	if deleteErr != nil {
		return fmt.Errorf("delete tally of refinement %s: %w", refinementID, deleteErr)
	}

	return nil
}
