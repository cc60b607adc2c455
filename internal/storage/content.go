package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// ErrDuplicateHash is returned when an insert collides with an existing
// content hash. The unique index on content_hash is the authoritative
// deduplication check; advisory caches only shortcut it.
var ErrDuplicateHash = errors.New("storage: content hash already stored")

// ContentStore persists ContentItem aggregates. Raw content is
// lz4-compressed at rest and decompressed transparently on read.
type ContentStore struct {
	db *DB
}

// NewContentStore creates a content store over db.
func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{db: db}
}

// Save writes the aggregate with the versioned compare-and-swap protocol.
// A hash collision on insert surfaces as ErrDuplicateHash.
func (s *ContentStore) Save(ctx context.Context, item *content.Item) error {
	tagsJSON, tagsErr := marshalJSON(item.AssetTags)
	if tagsErr != nil {
		return tagsErr
	}

	now := fmtTime(time.Now())

	if item.Version == 0 {
		_, insertErr := s.db.exec(ctx, `
			INSERT INTO content_items (
				content_id, source_id, content_hash, raw_content, normalized_content,
				title, author, published_at, language, source_url,
				asset_tags, collected_at, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.SourceID, item.ContentHash, compressText(item.RawContent), item.NormalizedContent,
			item.Metadata.Title, item.Metadata.Author, fmtTimePtr(item.Metadata.PublishedAt),
			item.Metadata.Language, item.Metadata.SourceURL,
			tagsJSON, fmtTime(item.CollectedAt), item.Version, now, now,
		)
		if insertErr != nil {
			if IsUniqueViolation(insertErr) {
				return fmt.Errorf("%w: %s", ErrDuplicateHash, item.ContentHash)
			}

			return fmt.Errorf("insert content item %s: %w", item.ID, insertErr)
		}

		return nil
	}

	res, updateErr := s.db.exec(ctx, `
		UPDATE content_items SET
			content_hash = ?, raw_content = ?, normalized_content = ?,
			title = ?, author = ?, published_at = ?, language = ?, source_url = ?,
			asset_tags = ?, version = ?, updated_at = ?
		WHERE content_id = ? AND version = ?`,
		item.ContentHash, compressText(item.RawContent), item.NormalizedContent,
		item.Metadata.Title, item.Metadata.Author, fmtTimePtr(item.Metadata.PublishedAt),
		item.Metadata.Language, item.Metadata.SourceURL,
		tagsJSON, item.Version, now,
		item.ID, item.Version-1,
	)
	if updateErr != nil {
		return fmt.Errorf("update content item %s: %w", item.ID, updateErr)
	}

	return requireOneRow(res, "content item", item.ID, item.Version)
}

// Get reconstitutes the aggregate by id.
func (s *ContentStore) Get(ctx context.Context, contentID string) (*content.Item, error) {
	row := s.db.queryRow(ctx, selectContentColumns+` WHERE content_id = ?`, contentID)

	item, scanErr := scanContentItem(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, fault.NotFound("content item", contentID)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("load content item %s: %w", contentID, scanErr)
	}

	return item, nil
}

// ExistsByHash reports whether any item with the given content hash is
// stored. This lookup is the authoritative duplicate check.
func (s *ContentStore) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var n int

	scanErr := s.db.queryRow(ctx,
		`SELECT COUNT(*) FROM content_items WHERE content_hash = ?`, hash,
	).Scan(&n)
	if scanErr != nil {
		return false, fmt.Errorf("check content hash: %w", scanErr)
	}

	return n > 0, nil
}

// selectContentColumns is the shared column list for item reconstitution.
const selectContentColumns = `
	SELECT content_id, source_id, content_hash, raw_content, normalized_content,
		title, author, published_at, language, source_url,
		asset_tags, collected_at, version
	FROM content_items`

// scanContentItem reconstitutes one content row.
func scanContentItem(row rowScanner) (*content.Item, error) {
	var (
		item        content.Item
		rawStored   string
		publishedAt sql.NullString
		tagsJSON    string
		collectedAt string
	)

	scanErr := row.Scan(
		&item.ID, &item.SourceID, &item.ContentHash, &rawStored, &item.NormalizedContent,
		&item.Metadata.Title, &item.Metadata.Author, &publishedAt,
		&item.Metadata.Language, &item.Metadata.SourceURL,
		&tagsJSON, &collectedAt, &item.Version,
	)
	if scanErr != nil {
		return nil, scanErr
	}

	raw, decompressErr := decompressText(rawStored)
	if decompressErr != nil {
		return nil, decompressErr
	}

	item.RawContent = raw

	var parseErr error

	if item.Metadata.PublishedAt, parseErr = parseTimePtr(publishedAt); parseErr != nil {
		return nil, parseErr
	}

	parsed, parseErr := parseTime(collectedAt)
	if parseErr != nil {
		return nil, parseErr
	}

	item.CollectedAt = parsed

	if unmarshalErr := unmarshalJSON(tagsJSON, &item.AssetTags); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	return &item, nil
}
