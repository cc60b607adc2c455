package refine

import (
	"time"

	domain "github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
)

// Event names published on the event bus.
const (
	EvtRefinementStarted     = "RefinementStarted"
	EvtContentChunked        = "ContentChunked"
	EvtChunkEnriched         = "ChunkEnriched"
	EvtChunkEnrichmentFailed = "ChunkEnrichmentFailed"
	EvtAllChunksProcessed    = "AllChunksProcessed"
	EvtRefinementCompleted   = "RefinementCompleted"
	EvtContentRejected       = "ContentRejected"
)

// RefinementStarted announces a freshly opened refinement.
type RefinementStarted struct {
	RefinementID  string
	ContentItemID string
	StartedAt     time.Time
}

// EventName implements bus.Event.
func (RefinementStarted) EventName() string { return EvtRefinementStarted }

// ChunkPayload is one chunker window carried by ContentChunked. Offsets are
// rune positions within the normalized content.
type ChunkPayload struct {
	ID      string
	Content string
	Index   int
	Start   int
	End     int
}

// ContentChunked carries every window of one refinement; the enrichment
// fan-out consumes it without reading the store.
type ContentChunked struct {
	RefinementID  string
	ContentItemID string
	ChunkCount    int
	Chunks        []ChunkPayload
	PublishedAt   *time.Time
}

// EventName implements bus.Event.
func (ContentChunked) EventName() string { return EvtContentChunked }

// ChunkEnriched reports one scored chunk and its quality verdict.
type ChunkEnriched struct {
	RefinementID           string
	ContentItemID          string
	ChunkID                string
	ChunkIndex             int
	Quality                domain.QualityScore
	PassedQualityThreshold bool
}

// EventName implements bus.Event.
func (ChunkEnriched) EventName() string { return EvtChunkEnriched }

// ChunkEnrichmentFailed reports a chunk whose enrichment errored; it counts
// toward the tally but never joins the aggregate.
type ChunkEnrichmentFailed struct {
	RefinementID  string
	ContentItemID string
	ChunkID       string
	Reason        string
}

// EventName implements bus.Event.
func (ChunkEnrichmentFailed) EventName() string { return EvtChunkEnrichmentFailed }

// AllChunksProcessed announces that the fan-in tally reached its total;
// exactly one publisher wins this edge per refinement.
type AllChunksProcessed struct {
	RefinementID  string
	ContentItemID string
	Total         int
	Valid         int
}

// EventName implements bus.Event.
func (AllChunksProcessed) EventName() string { return EvtAllChunksProcessed }

// RefinementCompleted announces a refinement that kept at least one chunk.
type RefinementCompleted struct {
	RefinementID   string
	ContentItemID  string
	ChunkCount     int
	AverageQuality float64
	CompletedAt    time.Time
}

// EventName implements bus.Event.
func (RefinementCompleted) EventName() string { return EvtRefinementCompleted }

// ContentRejected announces a refinement whose every chunk fell below the
// quality threshold.
type ContentRejected struct {
	RefinementID  string
	ContentItemID string
	Reason        string
	RejectedAt    time.Time
}

// EventName implements bus.Event.
func (ContentRejected) EventName() string { return EvtContentRejected }
