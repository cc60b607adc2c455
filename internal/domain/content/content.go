// Package content defines the ContentItem aggregate: one deduplicated piece
// of collected text, its normalized form, metadata, and the asset tags
// extracted from it. The content hash over the normalized form is the
// store-wide uniqueness key.
package content

import (
	"regexp"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/texthash"
)

// Asset tag confidence class boundaries.
const (
	// HighConfidenceFloor is the exclusive lower bound of the high class.
	HighConfidenceFloor = 0.8

	// MediumConfidenceFloor is the inclusive lower bound of the medium
	// class; the inclusive upper bound is HighConfidenceFloor.
	MediumConfidenceFloor = 0.5
)

// symbolPattern constrains asset symbols: uppercase alphabetic, at most ten
// characters.
var symbolPattern = regexp.MustCompile(`^[A-Z]{1,10}$`)

// AssetTag marks a ticker-like token detected in the content.
type AssetTag struct {
	Symbol     string  `json:"symbol"`
	Confidence float64 `json:"confidence"`
}

// NewAssetTag validates and builds an asset tag.
func NewAssetTag(symbol string, confidence float64) (AssetTag, error) {
	if !symbolPattern.MatchString(symbol) {
		return AssetTag{}, fault.Newf(fault.KindValidation, "asset symbol %q must match ^[A-Z]{1,10}$", symbol)
	}

	if confidence < 0 || confidence > 1 {
		return AssetTag{}, fault.Newf(fault.KindValidation, "asset confidence %v must be within [0,1]", confidence)
	}

	return AssetTag{Symbol: symbol, Confidence: confidence}, nil
}

// IsHigh reports confidence strictly above 0.8.
func (t AssetTag) IsHigh() bool {
	return t.Confidence > HighConfidenceFloor
}

// IsMedium reports confidence within [0.5, 0.8].
func (t AssetTag) IsMedium() bool {
	return t.Confidence >= MediumConfidenceFloor && t.Confidence <= HighConfidenceFloor
}

// IsLow reports confidence strictly below 0.5.
func (t AssetTag) IsLow() bool {
	return t.Confidence < MediumConfidenceFloor
}

// Metadata carries the optional descriptive fields of a collected item.
type Metadata struct {
	Title       string     `json:"title,omitempty"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Language    string     `json:"language,omitempty"`
	SourceURL   string     `json:"sourceUrl,omitempty"`
}

// Item is the ContentItem aggregate root.
type Item struct {
	ID                string
	SourceID          string
	ContentHash       string
	RawContent        string
	NormalizedContent string
	Metadata          Metadata
	AssetTags         []AssetTag
	CollectedAt       time.Time
	Version           int64
}

// NewItem validates and builds a content item at version 0.
func NewItem(id, sourceID, contentHash, rawContent, normalizedContent string, meta Metadata, tags []AssetTag, collectedAt time.Time) (*Item, error) {
	if id == "" {
		return nil, fault.New(fault.KindValidation, "content id must not be empty")
	}

	if sourceID == "" {
		return nil, fault.New(fault.KindValidation, "content source id must not be empty")
	}

	if !texthash.Valid(contentHash) {
		return nil, fault.Newf(fault.KindValidation, "content hash %q is not a 64-hex SHA-256 digest", contentHash)
	}

	if normalizedContent == "" {
		return nil, fault.New(fault.KindValidation, "normalized content must not be empty")
	}

	for _, tag := range tags {
		if _, tagErr := NewAssetTag(tag.Symbol, tag.Confidence); tagErr != nil {
			return nil, tagErr
		}
	}

	return &Item{
		ID:                id,
		SourceID:          sourceID,
		ContentHash:       contentHash,
		RawContent:        rawContent,
		NormalizedContent: normalizedContent,
		Metadata:          meta,
		AssetTags:         tags,
		CollectedAt:       collectedAt.UTC(),
		Version:           0,
	}, nil
}
