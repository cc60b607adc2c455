package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/nlp"
	"github.com/Sumatoshi-tech/newsfang/internal/storage"
	"github.com/Sumatoshi-tech/newsfang/pkg/texthash"
	"github.com/Sumatoshi-tech/newsfang/pkg/textnorm"
)

// handleNormalizeContent derives the canonical form, content hash,
// language, and asset tags of one collected item.
func (p *Pipeline) handleNormalizeContent(ctx context.Context, cmd NormalizeContent) (any, error) {
	normalized := textnorm.Normalize(cmd.RawContent)

	meta := cmd.Metadata
	if meta.Language == "" {
		if lang, ok := textnorm.DetectLanguage(normalized); ok {
			meta.Language = lang
		}
	}

	p.ebus.Publish(ctx, ContentNormalized{
		JobID:             cmd.JobID,
		SourceID:          cmd.SourceID,
		RawContent:        cmd.RawContent,
		NormalizedContent: normalized,
		ContentHash:       texthash.SHA256Hex(normalized),
		Metadata:          meta,
		AssetTags:         nlp.TagAssets(normalized),
	})

	return nil, nil
}

// handleValidateContentQuality runs the pre-persistence filters and routes
// the item to the pass or fail branch.
func (p *Pipeline) handleValidateContentQuality(ctx context.Context, cmd ValidateContentQuality) (any, error) {
	if reason := p.validation.Check(cmd.NormalizedContent, cmd.Metadata.Language); reason != "" {
		p.logger.InfoContext(ctx, "content rejected by validation",
			slog.String("job_id", cmd.JobID),
			slog.String("source_id", cmd.SourceID),
			slog.String("reason", reason),
		)

		p.ebus.Publish(ctx, ContentValidationFailed{
			JobID:    cmd.JobID,
			SourceID: cmd.SourceID,
			Reason:   reason,
		})

		return false, nil
	}

	p.ebus.Publish(ctx, ContentQualityValidated{
		JobID:             cmd.JobID,
		SourceID:          cmd.SourceID,
		RawContent:        cmd.RawContent,
		NormalizedContent: cmd.NormalizedContent,
		ContentHash:       cmd.ContentHash,
		Metadata:          cmd.Metadata,
		AssetTags:         cmd.AssetTags,
	})

	return true, nil
}

// handleDetectDuplicate checks the content hash, advisory cache first,
// store as the authority.
func (p *Pipeline) handleDetectDuplicate(ctx context.Context, cmd DetectDuplicate) (any, error) {
	duplicate, checkErr := p.dedup.IsDuplicate(ctx, cmd.ContentHash)
	if checkErr != nil {
		return nil, checkErr
	}

	p.ebus.Publish(ctx, ContentDeduplicationChecked{
		JobID:             cmd.JobID,
		SourceID:          cmd.SourceID,
		RawContent:        cmd.RawContent,
		NormalizedContent: cmd.NormalizedContent,
		ContentHash:       cmd.ContentHash,
		Metadata:          cmd.Metadata,
		AssetTags:         cmd.AssetTags,
		Duplicate:         duplicate,
	})

	return duplicate, nil
}

// handleSaveContentItem persists the item. Losing an insert race on the
// hash index downgrades the item to a duplicate instead of failing the run.
func (p *Pipeline) handleSaveContentItem(ctx context.Context, cmd SaveContentItem) (any, error) {
	item, newErr := content.NewItem(
		uuid.NewString(),
		cmd.SourceID,
		cmd.ContentHash,
		cmd.RawContent,
		cmd.NormalizedContent,
		cmd.Metadata,
		cmd.AssetTags,
		p.now(),
	)
	if newErr != nil {
		return nil, newErr
	}

	saveErr := p.contents.Save(ctx, item)
	if errors.Is(saveErr, storage.ErrDuplicateHash) {
		p.logger.InfoContext(ctx, "content insert lost race to concurrent writer",
			slog.String("job_id", cmd.JobID),
			slog.String("content_hash", cmd.ContentHash),
		)

		p.ebus.Publish(ctx, ContentDeduplicationChecked{
			JobID:       cmd.JobID,
			SourceID:    cmd.SourceID,
			ContentHash: cmd.ContentHash,
			Duplicate:   true,
		})

		return nil, nil
	}

	if saveErr != nil {
		return nil, saveErr
	}

	p.dedup.MarkSeen(ctx, item.ContentHash)

	p.ebus.Publish(ctx, ContentIngested{
		JobID:             cmd.JobID,
		ContentID:         item.ID,
		SourceID:          item.SourceID,
		ContentHash:       item.ContentHash,
		NormalizedContent: item.NormalizedContent,
		Metadata:          item.Metadata,
		AssetTags:         item.AssetTags,
		PersistedAt:       item.CollectedAt,
	})

	return item.ID, nil
}
