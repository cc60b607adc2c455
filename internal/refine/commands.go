package refine

import (
	"time"

	domain "github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
)

// Command names routed through the command bus.
const (
	CmdStartRefinement      = "StartRefinement"
	CmdChunkContent         = "ChunkContent"
	CmdEnrichChunk          = "EnrichChunk"
	CmdAddChunkToRefinement = "AddChunkToRefinement"
	CmdFinalizeRefinement   = "FinalizeRefinement"
	CmdRerefineContent      = "RerefineContent"
)

// StartRefinement opens a refinement for a content item. NormalizedContent
// and PublishedAt ride along from ContentIngested so the hot path never
// reads the item back; a caller that only knows the id leaves them zero and
// the handler loads the item.
type StartRefinement struct {
	ContentItemID     string
	NormalizedContent string
	PublishedAt       *time.Time
}

// CommandName implements bus.Command.
func (StartRefinement) CommandName() string { return CmdStartRefinement }

// ChunkContent splits the normalized content into overlapping windows and
// opens the fan-in tally.
type ChunkContent struct {
	RefinementID      string
	ContentItemID     string
	NormalizedContent string
	PublishedAt       *time.Time
}

// CommandName implements bus.Command.
func (ChunkContent) CommandName() string { return CmdChunkContent }

// EnrichChunk runs entity extraction, temporal analysis, and quality
// scoring over one chunk, then settles its fan-in outcome.
type EnrichChunk struct {
	RefinementID     string
	ContentItemID    string
	ChunkID          string
	ChunkContent     string
	ChunkIndex       int
	TotalChunks      int
	Start            int
	End              int
	PublishedAt      *time.Time
	QualityThreshold float64
}

// CommandName implements bus.Command.
func (EnrichChunk) CommandName() string { return CmdEnrichChunk }

// AddChunkToRefinement appends one chunk that passed quality filtering to
// its aggregate under the optimistic lock.
type AddChunkToRefinement struct {
	RefinementID string
	Chunk        domain.Chunk
}

// CommandName implements bus.Command.
func (AddChunkToRefinement) CommandName() string { return CmdAddChunkToRefinement }

// FinalizeRefinement settles the terminal state once every chunk has an
// outcome. Zero valid chunks reject the refinement; re-entry on a terminal
// refinement is a no-op.
type FinalizeRefinement struct {
	RefinementID string
	TotalChunks  int
	ValidChunks  int
}

// CommandName implements bus.Command.
func (FinalizeRefinement) CommandName() string { return CmdFinalizeRefinement }

// RerefineContent archives any live refinement of the item and starts a
// fresh one linked to the run it supersedes.
type RerefineContent struct {
	ContentItemID string
	Reason        string
}

// CommandName implements bus.Command.
func (RerefineContent) CommandName() string { return CmdRerefineContent }
