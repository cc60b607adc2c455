package refine

import (
	"strings"

	"github.com/google/uuid"
)

// Chunker geometry defaults, in token-equivalent units.
const (
	// DefaultChunkSize is the window width in tokens.
	DefaultChunkSize = 256

	// DefaultChunkOverlap is how many tokens adjacent windows share.
	DefaultChunkOverlap = 32

	// charsPerToken converts token-equivalent units to rune counts.
	charsPerToken = 4
)

// ChunkerConfig sets the window geometry in token-equivalent units.
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultChunkerConfig returns the default geometry.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Piece is one chunker window with its rune span in the source text.
type Piece struct {
	ID      string
	Content string
	Index   int
	Start   int
	End     int
}

// WindowChunker slices normalized content into fixed-width overlapping
// windows. Windows are contiguous, adjacent windows overlap by the
// configured amount, and their union covers the whole input.
type WindowChunker struct {
	width int
	step  int
}

// NewWindowChunker builds a chunker from cfg. Non-positive sizes fall back
// to the defaults, and the overlap is capped so every window advances.
func NewWindowChunker(cfg ChunkerConfig) *WindowChunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}

	if overlap >= size {
		overlap = size - 1
	}

	return &WindowChunker{
		width: size * charsPerToken,
		step:  (size - overlap) * charsPerToken,
	}
}

// Split windows the content. Offsets are rune positions; blank input yields
// no pieces.
func (c *WindowChunker) Split(content string) []Piece {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	runes := []rune(content)

	var pieces []Piece

	for start := 0; ; start += c.step {
		end := start + c.width
		if end > len(runes) {
			end = len(runes)
		}

		pieces = append(pieces, Piece{
			ID:      uuid.NewString(),
			Content: string(runes[start:end]),
			Index:   len(pieces),
			Start:   start,
			End:     end,
		})

		if end == len(runes) {
			return pieces
		}
	}
}
