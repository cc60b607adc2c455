package refine

import (
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// CryptoEntity is one entity mention extracted from a chunk.
type CryptoEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	StartPos   int     `json:"startPos"`
	EndPos     int     `json:"endPos"`
}

// TemporalContext anchors a chunk in time.
type TemporalContext struct {
	PublishedAt    time.Time  `json:"publishedAt"`
	EventTimestamp *time.Time `json:"eventTimestamp,omitempty"`
}

// QualityScore carries the component scores of one chunk. Every component
// and the overall score lie within [0,1].
type QualityScore struct {
	Overall   float64 `json:"overall"`
	Length    float64 `json:"length"`
	Coherence float64 `json:"coherence"`
	Relevance float64 `json:"relevance"`
	Freshness float64 `json:"freshness"`
}

// Validate rejects components outside [0,1].
func (q QualityScore) Validate() error {
	components := map[string]float64{
		"overall":   q.Overall,
		"length":    q.Length,
		"coherence": q.Coherence,
		"relevance": q.Relevance,
		"freshness": q.Freshness,
	}

	for name, value := range components {
		if value < 0 || value > 1 {
			return fault.Newf(fault.KindValidation, "quality %s score %v must be within [0,1]", name, value)
		}
	}

	return nil
}

// ChunkPosition locates a chunk inside the normalized content.
type ChunkPosition struct {
	Index       int `json:"index"`
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
}

// Validate rejects empty spans and negative indices.
func (p ChunkPosition) Validate() error {
	if p.Index < 0 {
		return fault.Newf(fault.KindValidation, "chunk index %d must not be negative", p.Index)
	}

	if p.EndOffset <= p.StartOffset {
		return fault.Newf(fault.KindValidation, "chunk end offset %d must exceed start offset %d", p.EndOffset, p.StartOffset)
	}

	return nil
}

// Length is the span width in offset units.
func (p ChunkPosition) Length() int {
	return p.EndOffset - p.StartOffset
}

// Chunk is one enriched slice of normalized content, owned by its
// refinement. Accepted chunks form a doubly-linked chain in text order.
type Chunk struct {
	ID          string           `json:"chunkId"`
	Content     string           `json:"content"`
	Position    ChunkPosition    `json:"position"`
	Hash        string           `json:"hash"`
	Entities    []CryptoEntity   `json:"entities,omitempty"`
	Temporal    *TemporalContext `json:"temporalContext,omitempty"`
	Quality     QualityScore     `json:"qualityScore"`
	PrevChunkID string           `json:"previousChunkId,omitempty"`
	NextChunkID string           `json:"nextChunkId,omitempty"`
}

// Validate checks the chunk's own invariants.
func (c Chunk) Validate() error {
	if c.ID == "" {
		return fault.New(fault.KindValidation, "chunk id must not be empty")
	}

	if c.Content == "" {
		return fault.New(fault.KindValidation, "chunk content must not be empty")
	}

	if c.Hash == "" {
		return fault.New(fault.KindValidation, "chunk hash must not be empty")
	}

	if posErr := c.Position.Validate(); posErr != nil {
		return posErr
	}

	return c.Quality.Validate()
}
