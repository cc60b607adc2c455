package content_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/texthash"
)

func TestNewAssetTagValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		symbol     string
		confidence float64
		wantErr    bool
	}{
		{name: "valid short symbol", symbol: "BTC", confidence: 0.9},
		{name: "valid ten char symbol", symbol: "ABCDEFGHIJ", confidence: 0.5},
		{name: "lowercase rejected", symbol: "btc", confidence: 0.9, wantErr: true},
		{name: "digits rejected", symbol: "BTC2", confidence: 0.9, wantErr: true},
		{name: "empty rejected", symbol: "", confidence: 0.9, wantErr: true},
		{name: "eleven chars rejected", symbol: "ABCDEFGHIJK", confidence: 0.9, wantErr: true},
		{name: "confidence above one rejected", symbol: "BTC", confidence: 1.01, wantErr: true},
		{name: "negative confidence rejected", symbol: "BTC", confidence: -0.1, wantErr: true},
		{name: "confidence zero allowed", symbol: "BTC", confidence: 0},
		{name: "confidence one allowed", symbol: "BTC", confidence: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tag, tagErr := content.NewAssetTag(tt.symbol, tt.confidence)

			if tt.wantErr {
				assert.Equal(t, fault.KindValidation, fault.KindOf(tagErr))

				return
			}

			require.NoError(t, tagErr)
			assert.Equal(t, tt.symbol, tag.Symbol)
		})
	}
}

func TestAssetTagConfidenceClassesArePartition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confidence float64
		wantHigh   bool
		wantMedium bool
		wantLow    bool
	}{
		{name: "clearly high", confidence: 0.95, wantHigh: true},
		{name: "boundary 0.8 is medium", confidence: 0.8, wantMedium: true},
		{name: "mid medium", confidence: 0.6, wantMedium: true},
		{name: "boundary 0.5 is medium", confidence: 0.5, wantMedium: true},
		{name: "clearly low", confidence: 0.2, wantLow: true},
		{name: "zero is low", confidence: 0, wantLow: true},
		{name: "one is high", confidence: 1, wantHigh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tag, tagErr := content.NewAssetTag("BTC", tt.confidence)
			require.NoError(t, tagErr)

			assert.Equal(t, tt.wantHigh, tag.IsHigh())
			assert.Equal(t, tt.wantMedium, tag.IsMedium())
			assert.Equal(t, tt.wantLow, tag.IsLow())

			// Exactly one class holds.
			classes := 0
			for _, held := range []bool{tag.IsHigh(), tag.IsMedium(), tag.IsLow()} {
				if held {
					classes++
				}
			}

			assert.Equal(t, 1, classes)
		})
	}
}

func TestNewItem(t *testing.T) {
	t.Parallel()

	normalized := "Bitcoin hits $50,000"
	hash := texthash.SHA256Hex(normalized)
	collectedAt := time.Now()

	item, newErr := content.NewItem("content-1", "source-1", hash, "<p>Bitcoin hits $50,000</p>", normalized,
		content.Metadata{Title: "BTC rally"}, []content.AssetTag{{Symbol: "BTC", Confidence: 0.9}}, collectedAt)

	require.NoError(t, newErr)
	assert.Equal(t, hash, item.ContentHash)
	assert.Zero(t, item.Version)
	assert.Equal(t, "BTC rally", item.Metadata.Title)
	require.Len(t, item.AssetTags, 1)
	assert.True(t, item.AssetTags[0].IsHigh())
}

func TestNewItemValidation(t *testing.T) {
	t.Parallel()

	normalized := "some text"
	hash := texthash.SHA256Hex(normalized)

	tests := []struct {
		name       string
		id         string
		sourceID   string
		hash       string
		normalized string
		tags       []content.AssetTag
	}{
		{name: "missing id", id: "", sourceID: "s", hash: hash, normalized: normalized},
		{name: "missing source", id: "c", sourceID: "", hash: hash, normalized: normalized},
		{name: "malformed hash", id: "c", sourceID: "s", hash: "not-a-hash", normalized: normalized},
		{name: "empty normalized content", id: "c", sourceID: "s", hash: hash, normalized: ""},
		{name: "invalid tag", id: "c", sourceID: "s", hash: hash, normalized: normalized, tags: []content.AssetTag{{Symbol: "bad", Confidence: 0.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, newErr := content.NewItem(tt.id, tt.sourceID, tt.hash, "raw", tt.normalized, content.Metadata{}, tt.tags, time.Now())

			assert.Equal(t, fault.KindValidation, fault.KindOf(newErr))
		})
	}
}
