package refine_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

func newProcessingRefinement(t *testing.T) *refine.Refinement {
	t.Helper()

	r, newErr := refine.New("ref-1", "content-1")
	require.NoError(t, newErr)
	require.NoError(t, r.StartProcessing(time.Now()))

	return r
}

// chunkAt builds a valid chunk spanning [start, start+40).
func chunkAt(id string, start int, overall float64) refine.Chunk {
	return refine.Chunk{
		ID:      id,
		Content: "chunk content body",
		Position: refine.ChunkPosition{
			StartOffset: start,
			EndOffset:   start + 40,
		},
		Hash:    fmt.Sprintf("hash-%s", id),
		Quality: refine.QualityScore{Overall: overall, Length: 0.5, Coherence: 0.5, Relevance: 0.5, Freshness: 0.5},
	}
}

func TestNewRefinementIsPendingAtVersionZero(t *testing.T) {
	t.Parallel()

	r, newErr := refine.New("ref-1", "content-1")

	require.NoError(t, newErr)
	assert.Equal(t, refine.StatusPending, r.Status)
	assert.Zero(t, r.Version)
	assert.False(t, r.Status.Terminal())
}

func TestStartProcessingOnlyFromPending(t *testing.T) {
	t.Parallel()

	r := newProcessingRefinement(t)

	secondErr := r.StartProcessing(time.Now())

	assert.Equal(t, fault.KindInvariant, fault.KindOf(secondErr))
}

func TestAddChunkKeepsTextOrderAndChain(t *testing.T) {
	t.Parallel()

	r := newProcessingRefinement(t)

	// Chunks arrive out of order, as parallel enrichment delivers them.
	require.NoError(t, r.AddChunk(chunkAt("c2", 80, 0.6)))
	require.NoError(t, r.AddChunk(chunkAt("c0", 0, 0.8)))
	require.NoError(t, r.AddChunk(chunkAt("c1", 40, 0.7)))

	require.Len(t, r.Chunks, 3)

	// Indices are contiguous 0..n-1 in text order.
	for i, c := range r.Chunks {
		assert.Equal(t, i, c.Position.Index)
	}

	assert.Equal(t, "c0", r.Chunks[0].ID)
	assert.Equal(t, "c1", r.Chunks[1].ID)
	assert.Equal(t, "c2", r.Chunks[2].ID)

	// The prev/next chain is doubly linked in index order.
	assert.Empty(t, r.Chunks[0].PrevChunkID)
	assert.Equal(t, "c1", r.Chunks[0].NextChunkID)
	assert.Equal(t, "c0", r.Chunks[1].PrevChunkID)
	assert.Equal(t, "c2", r.Chunks[1].NextChunkID)
	assert.Equal(t, "c1", r.Chunks[2].PrevChunkID)
	assert.Empty(t, r.Chunks[2].NextChunkID)
}

func TestAddChunkRejectsDuplicateHash(t *testing.T) {
	t.Parallel()

	r := newProcessingRefinement(t)

	first := chunkAt("c0", 0, 0.8)
	require.NoError(t, r.AddChunk(first))

	duplicate := chunkAt("c1", 40, 0.6)
	duplicate.Hash = first.Hash

	addErr := r.AddChunk(duplicate)

	assert.Equal(t, fault.KindValidation, fault.KindOf(addErr))
}

func TestAddChunkRequiresProcessing(t *testing.T) {
	t.Parallel()

	r, newErr := refine.New("ref-1", "content-1")
	require.NoError(t, newErr)

	addErr := r.AddChunk(chunkAt("c0", 0, 0.8))

	assert.Equal(t, fault.KindInvariant, fault.KindOf(addErr))
}

func TestChunkPositionValidate(t *testing.T) {
	t.Parallel()

	badSpan := refine.ChunkPosition{Index: 0, StartOffset: 10, EndOffset: 10}
	assert.Equal(t, fault.KindValidation, fault.KindOf(badSpan.Validate()))

	negativeIndex := refine.ChunkPosition{Index: -1, StartOffset: 0, EndOffset: 5}
	assert.Equal(t, fault.KindValidation, fault.KindOf(negativeIndex.Validate()))

	valid := refine.ChunkPosition{Index: 0, StartOffset: 5, EndOffset: 15}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 10, valid.Length())
}

func TestQualityScoreValidate(t *testing.T) {
	t.Parallel()

	valid := refine.QualityScore{Overall: 1, Length: 0, Coherence: 0.5, Relevance: 0.25, Freshness: 0.75}
	assert.NoError(t, valid.Validate())

	invalid := refine.QualityScore{Overall: 1.2, Length: 0.5, Coherence: 0.5, Relevance: 0.5, Freshness: 0.5}
	assert.Equal(t, fault.KindValidation, fault.KindOf(invalid.Validate()))

	negative := refine.QualityScore{Overall: 0.5, Length: -0.1, Coherence: 0.5, Relevance: 0.5, Freshness: 0.5}
	assert.Equal(t, fault.KindValidation, fault.KindOf(negative.Validate()))
}

func TestCompleteOnlyFromProcessing(t *testing.T) {
	t.Parallel()

	pending, newErr := refine.New("ref-1", "content-1")
	require.NoError(t, newErr)

	completeErr := pending.Complete(time.Now())
	assert.Equal(t, fault.KindInvariant, fault.KindOf(completeErr))

	processing := newProcessingRefinement(t)
	require.NoError(t, processing.Complete(time.Now()))
	assert.Equal(t, refine.StatusCompleted, processing.Status)
	assert.NotNil(t, processing.CompletedAt)
}

func TestRejectRecordsReason(t *testing.T) {
	t.Parallel()

	r := newProcessingRefinement(t)

	require.NoError(t, r.Reject(time.Now(), "No valid chunks after quality filtering"))

	assert.Equal(t, refine.StatusRejected, r.Status)
	assert.Equal(t, "No valid chunks after quality filtering", r.RejectionReason)
	assert.NotNil(t, r.RejectedAt)
	assert.True(t, r.Status.Terminal())
}

func TestTerminalStatesRefuseMutation(t *testing.T) {
	t.Parallel()

	r := newProcessingRefinement(t)
	require.NoError(t, r.Complete(time.Now()))

	addErr := r.AddChunk(chunkAt("late", 0, 0.9))
	assert.Equal(t, fault.KindInvariant, fault.KindOf(addErr))

	rejectErr := r.Reject(time.Now(), "too late")
	assert.Equal(t, fault.KindInvariant, fault.KindOf(rejectErr))

	failErr := r.Fail(time.Now(), "too late")
	assert.Equal(t, fault.KindInvariant, fault.KindOf(failErr))
}

func TestFailFromPendingAndProcessing(t *testing.T) {
	t.Parallel()

	pending, newErr := refine.New("ref-1", "content-1")
	require.NoError(t, newErr)
	require.NoError(t, pending.Fail(time.Now(), "chunker exploded"))
	assert.Equal(t, refine.StatusFailed, pending.Status)
	assert.Equal(t, "chunker exploded", pending.Err)

	processing := newProcessingRefinement(t)
	require.NoError(t, processing.Fail(time.Now(), "enrichment backend down"))
	assert.Equal(t, refine.StatusFailed, processing.Status)
}

func TestAverageQualityScore(t *testing.T) {
	t.Parallel()

	r := newProcessingRefinement(t)

	assert.Zero(t, r.AverageQualityScore())

	require.NoError(t, r.AddChunk(chunkAt("c0", 0, 0.8)))
	require.NoError(t, r.AddChunk(chunkAt("c1", 40, 0.6)))

	assert.InDelta(t, 0.7, r.AverageQualityScore(), 1e-9)
}

func TestChunkByID(t *testing.T) {
	t.Parallel()

	r := newProcessingRefinement(t)
	require.NoError(t, r.AddChunk(chunkAt("c0", 0, 0.8)))

	found, ok := r.ChunkByID("c0")
	require.True(t, ok)
	assert.Equal(t, "c0", found.ID)

	_, missing := r.ChunkByID("nope")
	assert.False(t, missing)
}
