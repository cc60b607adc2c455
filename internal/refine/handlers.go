package refine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domain "github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/internal/storage"
)

// rejectionNoValidChunks is the terminal reason when quality filtering
// dropped every chunk.
const rejectionNoValidChunks = "No valid chunks after quality filtering"

// defaultRerefineReason marks operator-initiated re-refinements.
const defaultRerefineReason = "Re-refinement requested"

// handleStartRefinement opens a pending refinement for a content item and
// chains into chunking. A live refinement for the same item makes this a
// logged no-op: the partial unique index is the arbiter, so two racing
// starts cannot both win. Returns the refinement id.
func (p *Pipeline) handleStartRefinement(ctx context.Context, cmd StartRefinement) (any, error) {
	if cmd.ContentItemID == "" {
		return nil, fault.New(fault.KindValidation, "content item id must not be empty")
	}

	normalized := cmd.NormalizedContent
	publishedAt := cmd.PublishedAt

	if normalized == "" {
		item, getErr := p.contents.Get(ctx, cmd.ContentItemID)
		if getErr != nil {
			return nil, getErr
		}

		normalized = item.NormalizedContent
		publishedAt = item.Metadata.PublishedAt
	}

	r, newErr := domain.New(uuid.NewString(), cmd.ContentItemID)
	if newErr != nil {
		return nil, newErr
	}

	saveErr := p.refinements.Save(ctx, r)
	if errors.Is(saveErr, storage.ErrActiveRefinementExists) {
		p.logger.InfoContext(ctx, "refinement already active for content item",
			slog.String("content_id", cmd.ContentItemID),
		)

		return nil, nil
	}

	if saveErr != nil {
		return nil, saveErr
	}

	p.ebus.Publish(ctx, RefinementStarted{
		RefinementID:  r.ID,
		ContentItemID: r.ContentItemID,
		StartedAt:     p.now(),
	})

	p.execute(ctx, ChunkContent{
		RefinementID:      r.ID,
		ContentItemID:     r.ContentItemID,
		NormalizedContent: normalized,
		PublishedAt:       publishedAt,
	})

	return r.ID, nil
}

// handleChunkContent moves the refinement to processing, windows the
// content, and opens the fan-in tally before any enrichment can settle.
// Blank content skips the fan-out and finalizes straight to rejection.
func (p *Pipeline) handleChunkContent(ctx context.Context, cmd ChunkContent) (any, error) {
	if _, mutErr := p.mutateRefinement(ctx, cmd.RefinementID, func(r *domain.Refinement) error {
		return r.StartProcessing(p.now())
	}); mutErr != nil {
		return nil, mutErr
	}

	pieces := p.chunker.Split(cmd.NormalizedContent)
	if len(pieces) == 0 {
		p.execute(ctx, FinalizeRefinement{RefinementID: cmd.RefinementID})

		return 0, nil
	}

	if createErr := p.tallies.Create(ctx, cmd.RefinementID, len(pieces)); createErr != nil {
		return nil, createErr
	}

	chunks := make([]ChunkPayload, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, ChunkPayload(piece))
	}

	p.logger.InfoContext(ctx, "content chunked",
		slog.String("refinement_id", cmd.RefinementID),
		slog.String("content_id", cmd.ContentItemID),
		slog.Int("chunk_count", len(chunks)),
	)

	p.ebus.Publish(ctx, ContentChunked{
		RefinementID:  cmd.RefinementID,
		ContentItemID: cmd.ContentItemID,
		ChunkCount:    len(chunks),
		Chunks:        chunks,
		PublishedAt:   cmd.PublishedAt,
	})

	return len(chunks), nil
}

// handleAddChunkToRefinement appends one passed chunk under the optimistic
// lock; sibling chunks adding concurrently retry through the shared policy.
func (p *Pipeline) handleAddChunkToRefinement(ctx context.Context, cmd AddChunkToRefinement) (any, error) {
	if _, mutErr := p.mutateRefinement(ctx, cmd.RefinementID, func(r *domain.Refinement) error {
		return r.AddChunk(cmd.Chunk)
	}); mutErr != nil {
		return nil, mutErr
	}

	return nil, nil
}

// handleFinalizeRefinement settles the terminal state: zero valid chunks
// reject, anything else completes. An already-terminal refinement is a
// no-op, so replayed finalizations cannot double-publish.
func (p *Pipeline) handleFinalizeRefinement(ctx context.Context, cmd FinalizeRefinement) (any, error) {
	var (
		finalized bool
		rejected  bool
	)

	r, mutErr := p.mutateRefinement(ctx, cmd.RefinementID, func(r *domain.Refinement) error {
		finalized = false
		rejected = false

		if r.Status.Terminal() {
			return errUnchanged
		}

		finalized = true

		if cmd.ValidChunks == 0 {
			rejected = true

			return r.Reject(p.now(), rejectionNoValidChunks)
		}

		return r.Complete(p.now())
	})
	if mutErr != nil {
		return nil, mutErr
	}

	if !finalized {
		return nil, nil
	}

	if deleteErr := p.tallies.Delete(ctx, cmd.RefinementID); deleteErr != nil {
		p.logger.WarnContext(ctx, "tally cleanup failed",
			slog.String("refinement_id", cmd.RefinementID),
			slog.String("error", deleteErr.Error()),
		)
	}

	if rejected {
		p.metrics.RecordRefinement(ctx, "REJECTED")

		p.logger.InfoContext(ctx, "refinement rejected",
			slog.String("refinement_id", r.ID),
			slog.String("content_id", r.ContentItemID),
			slog.String("reason", r.RejectionReason),
		)

		p.ebus.Publish(ctx, ContentRejected{
			RefinementID:  r.ID,
			ContentItemID: r.ContentItemID,
			Reason:        r.RejectionReason,
			RejectedAt:    derefOr(r.RejectedAt, p.now()),
		})

		return nil, nil
	}

	p.metrics.RecordRefinement(ctx, "COMPLETED")

	p.logger.InfoContext(ctx, "refinement completed",
		slog.String("refinement_id", r.ID),
		slog.String("content_id", r.ContentItemID),
		slog.Int("chunk_count", len(r.Chunks)),
		slog.Float64("average_quality", r.AverageQualityScore()),
	)

	p.ebus.Publish(ctx, RefinementCompleted{
		RefinementID:   r.ID,
		ContentItemID:  r.ContentItemID,
		ChunkCount:     len(r.Chunks),
		AverageQuality: r.AverageQualityScore(),
		CompletedAt:    derefOr(r.CompletedAt, p.now()),
	})

	return nil, nil
}

// handleRerefineContent archives any live refinement of the item, then
// starts a fresh run linked to the most recent one. Returns the new
// refinement id.
func (p *Pipeline) handleRerefineContent(ctx context.Context, cmd RerefineContent) (any, error) {
	reason := cmd.Reason
	if reason == "" {
		reason = defaultRerefineReason
	}

	item, getErr := p.contents.Get(ctx, cmd.ContentItemID)
	if getErr != nil {
		return nil, getErr
	}

	if archiveErr := p.archiveActiveRefinement(ctx, item.ID, reason); archiveErr != nil {
		return nil, archiveErr
	}

	var previousID string

	latest, latestErr := p.refinements.FindLatestByContentItem(ctx, item.ID)

	switch {
	case latestErr == nil:
		previousID = latest.ID
	case fault.Is(latestErr, fault.KindNotFound):
	default:
		return nil, latestErr
	}

	r, newErr := domain.New(uuid.NewString(), item.ID)
	if newErr != nil {
		return nil, newErr
	}

	r.PreviousRefinementID = previousID

	if saveErr := p.refinements.Save(ctx, r); saveErr != nil {
		return nil, saveErr
	}

	p.logger.InfoContext(ctx, "re-refinement started",
		slog.String("refinement_id", r.ID),
		slog.String("content_id", item.ID),
		slog.String("previous_refinement_id", previousID),
		slog.String("reason", reason),
	)

	p.ebus.Publish(ctx, RefinementStarted{
		RefinementID:  r.ID,
		ContentItemID: item.ID,
		StartedAt:     p.now(),
	})

	p.execute(ctx, ChunkContent{
		RefinementID:      r.ID,
		ContentItemID:     item.ID,
		NormalizedContent: item.NormalizedContent,
		PublishedAt:       item.Metadata.PublishedAt,
	})

	return r.ID, nil
}

// archiveActiveRefinement fails the live refinement of an item, if any, so
// the partial unique index frees up for the replacement run. Its abandoned
// tally goes with it.
func (p *Pipeline) archiveActiveRefinement(ctx context.Context, contentItemID, reason string) error {
	active, findErr := p.refinements.FindActiveByContentItem(ctx, contentItemID)
	if fault.Is(findErr, fault.KindNotFound) {
		return nil
	}

	if findErr != nil {
		return findErr
	}

	if _, mutErr := p.mutateRefinement(ctx, active.ID, func(r *domain.Refinement) error {
		if r.Status.Terminal() {
			return errUnchanged
		}

		return r.Fail(p.now(), "superseded by re-refinement: "+reason)
	}); mutErr != nil {
		return mutErr
	}

	if deleteErr := p.tallies.Delete(ctx, active.ID); deleteErr != nil {
		p.logger.WarnContext(ctx, "tally cleanup failed",
			slog.String("refinement_id", active.ID),
			slog.String("error", deleteErr.Error()),
		)
	}

	p.metrics.RecordRefinement(ctx, "SUPERSEDED")

	return nil
}

// derefOr returns *t, or fallback when t is nil.
func derefOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}

	return *t
}
