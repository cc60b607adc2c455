package refine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
	"github.com/Sumatoshi-tech/newsfang/internal/ingest"
	"github.com/Sumatoshi-tech/newsfang/internal/nlp"
	"github.com/Sumatoshi-tech/newsfang/pkg/texthash"
	"github.com/Sumatoshi-tech/newsfang/pkg/textnorm"
)

// onContentIngested chains refinement onto every persisted content item.
func (p *Pipeline) onContentIngested(ctx context.Context, evt ingest.ContentIngested) error {
	p.execute(ctx, StartRefinement{
		ContentItemID:     evt.ContentID,
		NormalizedContent: evt.NormalizedContent,
		PublishedAt:       evt.Metadata.PublishedAt,
	})

	return nil
}

// onContentChunked fans enrichment out over the chunks with bounded
// parallelism. Every chunk settles its own tally outcome, so a failing
// sibling never blocks the fan-in.
func (p *Pipeline) onContentChunked(ctx context.Context, evt ContentChunked) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParallel)

	for _, chunk := range evt.Chunks {
		g.Go(func() error {
			p.execute(gctx, EnrichChunk{
				RefinementID:     evt.RefinementID,
				ContentItemID:    evt.ContentItemID,
				ChunkID:          chunk.ID,
				ChunkContent:     chunk.Content,
				ChunkIndex:       chunk.Index,
				TotalChunks:      evt.ChunkCount,
				Start:            chunk.Start,
				End:              chunk.End,
				PublishedAt:      evt.PublishedAt,
				QualityThreshold: p.threshold,
			})

			return nil
		})
	}

	return g.Wait()
}

// handleEnrichChunk runs the enrichment stages over one chunk, appends it
// to the aggregate when it clears the quality threshold, and settles its
// fan-in outcome. Enrichment errors count the chunk as processed-invalid
// instead of failing the refinement.
func (p *Pipeline) handleEnrichChunk(ctx context.Context, cmd EnrichChunk) (any, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "newsfang.enrich_chunk",
		trace.WithAttributes(
			attribute.String("refinement_id", cmd.RefinementID),
			attribute.Int("chunk_index", cmd.ChunkIndex),
		))
	defer span.End()

	entities, extractErr := p.entities.Extract(ctx, cmd.ChunkContent)
	if extractErr != nil {
		p.failChunk(ctx, cmd, "entity extraction: "+extractErr.Error())

		return false, nil
	}

	temporal, temporalErr := p.temporal.Extract(ctx, cmd.ChunkContent, cmd.PublishedAt)
	if temporalErr != nil {
		p.failChunk(ctx, cmd, "temporal analysis: "+temporalErr.Error())

		return false, nil
	}

	score, scoreErr := p.quality.Analyze(ctx, cmd.ChunkContent, nlp.Signals{
		TokenCount:  textnorm.TokenEstimate(cmd.ChunkContent),
		EntityCount: len(entities),
		PublishedAt: cmd.PublishedAt,
	})
	if scoreErr != nil {
		p.failChunk(ctx, cmd, "quality scoring: "+scoreErr.Error())

		return false, nil
	}

	threshold := cmd.QualityThreshold
	if threshold <= 0 {
		threshold = p.threshold
	}

	passed := score.Overall >= threshold

	span.SetAttributes(
		attribute.Bool("passed_quality_threshold", passed),
		attribute.Float64("quality_overall", score.Overall),
	)

	p.metrics.RecordChunk(ctx, passed, score.Overall)

	if passed {
		chunk := domain.Chunk{
			ID:      cmd.ChunkID,
			Content: cmd.ChunkContent,
			Position: domain.ChunkPosition{
				Index:       cmd.ChunkIndex,
				StartOffset: cmd.Start,
				EndOffset:   cmd.End,
			},
			Hash:     texthash.SHA256Hex(cmd.ChunkContent),
			Entities: entities,
			Temporal: temporal,
			Quality:  score,
		}

		if _, addErr := p.cbus.Execute(ctx, AddChunkToRefinement{RefinementID: cmd.RefinementID, Chunk: chunk}); addErr != nil {
			p.failChunk(ctx, cmd, "append chunk: "+addErr.Error())

			return false, nil
		}
	}

	p.ebus.Publish(ctx, ChunkEnriched{
		RefinementID:           cmd.RefinementID,
		ContentItemID:          cmd.ContentItemID,
		ChunkID:                cmd.ChunkID,
		ChunkIndex:             cmd.ChunkIndex,
		Quality:                score,
		PassedQualityThreshold: passed,
	})

	p.settleChunk(ctx, cmd.RefinementID, cmd.ContentItemID, passed)

	return passed, nil
}

// failChunk reports one failed enrichment and settles it as
// processed-invalid.
func (p *Pipeline) failChunk(ctx context.Context, cmd EnrichChunk, reason string) {
	p.logger.WarnContext(ctx, "chunk enrichment failed",
		slog.String("refinement_id", cmd.RefinementID),
		slog.String("chunk_id", cmd.ChunkID),
		slog.String("reason", reason),
	)

	p.metrics.RecordChunk(ctx, false, 0)

	p.ebus.Publish(ctx, ChunkEnrichmentFailed{
		RefinementID:  cmd.RefinementID,
		ContentItemID: cmd.ContentItemID,
		ChunkID:       cmd.ChunkID,
		Reason:        reason,
	})

	p.settleChunk(ctx, cmd.RefinementID, cmd.ContentItemID, false)
}

// settleChunk counts one outcome against the fan-in tally. The atomic
// increment makes the caller that observes processed == total the unique
// winner of the all-chunks-done edge.
func (p *Pipeline) settleChunk(ctx context.Context, refinementID, contentItemID string, passed bool) {
	tally, recordErr := p.tallies.Record(ctx, refinementID, passed)
	if recordErr != nil {
		p.logger.ErrorContext(ctx, "tally record failed",
			slog.String("refinement_id", refinementID),
			slog.String("error", recordErr.Error()),
		)

		return
	}

	if !tally.Done() {
		return
	}

	p.ebus.Publish(ctx, AllChunksProcessed{
		RefinementID:  refinementID,
		ContentItemID: contentItemID,
		Total:         tally.Total,
		Valid:         tally.Valid,
	})
}

// onAllChunksProcessed chains the fan-in edge into finalization.
func (p *Pipeline) onAllChunksProcessed(ctx context.Context, evt AllChunksProcessed) error {
	p.execute(ctx, FinalizeRefinement{
		RefinementID: evt.RefinementID,
		TotalChunks:  evt.Total,
		ValidChunks:  evt.Valid,
	})

	return nil
}
