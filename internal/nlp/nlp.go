// Package nlp defines the enrichment ports the refinement pipeline calls
// and ships a heuristic backend that keeps the core fully testable without
// model services. Real entity, temporal, and quality backends plug in
// behind the same interfaces.
package nlp

import (
	"context"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
)

// EntityExtractor finds entity mentions in chunk content.
type EntityExtractor interface {
	Extract(ctx context.Context, content string) ([]refine.CryptoEntity, error)
}

// TemporalExtractor anchors chunk content in time. A nil context result
// means no temporal anchor could be derived.
type TemporalExtractor interface {
	Extract(ctx context.Context, content string, publishedAt *time.Time) (*refine.TemporalContext, error)
}

// Signals carries the side inputs quality scoring uses beyond the text.
type Signals struct {
	TokenCount  int
	EntityCount int
	PublishedAt *time.Time
}

// QualityAnalyzer scores chunk content. Every component of the returned
// score lies within [0,1].
type QualityAnalyzer interface {
	Analyze(ctx context.Context, content string, signals Signals) (refine.QualityScore, error)
}
