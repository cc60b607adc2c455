// Package refine defines the ContentRefinement aggregate: the lifecycle of
// turning one content item into an ordered set of enriched chunks. Chunks
// that pass quality filtering are kept in text order as a doubly-linked
// chain with contiguous indices; the aggregate refuses mutation once it
// reaches a terminal state.
package refine

import (
	"sort"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// Status is the refinement lifecycle state.
type Status string

const (
	// StatusPending means the refinement exists but chunking has not begun.
	StatusPending Status = "pending"

	// StatusProcessing means chunks are being enriched.
	StatusProcessing Status = "processing"

	// StatusCompleted means enrichment finished with at least one kept chunk.
	StatusCompleted Status = "completed"

	// StatusFailed means enrichment aborted on an unrecoverable error.
	StatusFailed Status = "failed"

	// StatusRejected means every chunk fell below the quality threshold.
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// Refinement is the ContentRefinement aggregate root.
type Refinement struct {
	ID            string
	ContentItemID string
	Status        Status
	Chunks        []Chunk
	StartedAt     *time.Time
	CompletedAt   *time.Time
	RejectedAt    *time.Time

	// RejectionReason explains a rejected outcome.
	RejectionReason string

	// Err carries the failure message of a failed outcome.
	Err string

	// PreviousRefinementID links a re-refinement to the run it supersedes.
	PreviousRefinementID string

	Version int64
}

// New creates a pending refinement at version 0.
func New(id, contentItemID string) (*Refinement, error) {
	if id == "" {
		return nil, fault.New(fault.KindValidation, "refinement id must not be empty")
	}

	if contentItemID == "" {
		return nil, fault.New(fault.KindValidation, "refinement content item id must not be empty")
	}

	return &Refinement{
		ID:            id,
		ContentItemID: contentItemID,
		Status:        StatusPending,
		Version:       0,
	}, nil
}

// StartProcessing moves the refinement from pending to processing.
func (r *Refinement) StartProcessing(now time.Time) error {
	if r.Status != StatusPending {
		return fault.Invariant("cannot start processing refinement %s in status %s", r.ID, r.Status)
	}

	startedAt := now.UTC()
	r.Status = StatusProcessing
	r.StartedAt = &startedAt
	r.Version++

	return nil
}

// AddChunk accepts a chunk that passed quality filtering. Chunks may arrive
// in any order; the aggregate keeps them sorted by start offset, reassigns
// contiguous indices 0..n-1 in text order, and relinks the prev/next chain.
func (r *Refinement) AddChunk(chunk Chunk) error {
	if r.Status != StatusProcessing {
		return fault.Invariant("cannot add chunk to refinement %s in status %s", r.ID, r.Status)
	}

	if validateErr := chunk.Validate(); validateErr != nil {
		return validateErr
	}

	for _, existing := range r.Chunks {
		if existing.Hash == chunk.Hash {
			return fault.Newf(fault.KindValidation, "chunk hash %s already present in refinement %s", chunk.Hash, r.ID)
		}

		if existing.ID == chunk.ID {
			return fault.Newf(fault.KindValidation, "chunk id %s already present in refinement %s", chunk.ID, r.ID)
		}
	}

	r.Chunks = append(r.Chunks, chunk)
	r.relink()
	r.Version++

	return nil
}

// relink restores text order, contiguous indices, and the chain pointers.
func (r *Refinement) relink() {
	sort.SliceStable(r.Chunks, func(i, j int) bool {
		return r.Chunks[i].Position.StartOffset < r.Chunks[j].Position.StartOffset
	})

	for i := range r.Chunks {
		r.Chunks[i].Position.Index = i
		r.Chunks[i].PrevChunkID = ""
		r.Chunks[i].NextChunkID = ""

		if i > 0 {
			r.Chunks[i].PrevChunkID = r.Chunks[i-1].ID
			r.Chunks[i-1].NextChunkID = r.Chunks[i].ID
		}
	}
}

// Complete moves the refinement from processing to completed.
func (r *Refinement) Complete(now time.Time) error {
	if r.Status != StatusProcessing {
		return fault.Invariant("cannot complete refinement %s in status %s", r.ID, r.Status)
	}

	completedAt := now.UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &completedAt
	r.Version++

	return nil
}

// Reject moves the refinement from processing to rejected.
func (r *Refinement) Reject(now time.Time, reason string) error {
	if r.Status != StatusProcessing {
		return fault.Invariant("cannot reject refinement %s in status %s", r.ID, r.Status)
	}

	rejectedAt := now.UTC()
	r.Status = StatusRejected
	r.RejectedAt = &rejectedAt
	r.RejectionReason = reason
	r.Version++

	return nil
}

// Fail aborts the refinement with an unrecoverable error. Allowed from
// pending and processing.
func (r *Refinement) Fail(now time.Time, message string) error {
	if r.Status.Terminal() {
		return fault.Invariant("cannot fail refinement %s in terminal status %s", r.ID, r.Status)
	}

	completedAt := now.UTC()
	r.Status = StatusFailed
	r.CompletedAt = &completedAt
	r.Err = message
	r.Version++

	return nil
}

// AverageQualityScore is the mean overall score across kept chunks,
// zero when none were kept.
func (r *Refinement) AverageQualityScore() float64 {
	if len(r.Chunks) == 0 {
		return 0
	}

	var sum float64
	for _, c := range r.Chunks {
		sum += c.Quality.Overall
	}

	return sum / float64(len(r.Chunks))
}

// ChunkByID looks a chunk up by its id.
func (r *Refinement) ChunkByID(chunkID string) (Chunk, bool) {
	for _, c := range r.Chunks {
		if c.ID == chunkID {
			return c, true
		}
	}

	return Chunk{}, false
}
