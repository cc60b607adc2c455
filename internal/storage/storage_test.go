package storage_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/internal/storage"
	"github.com/Sumatoshi-tech/newsfang/pkg/texthash"
)

// openTestDB opens a private in-memory store. Each test gets its own
// database name so parallel tests never share state.
func openTestDB(t *testing.T) *storage.DB {
	t.Helper()

	cfg := storage.Config{
		Driver: storage.DriverSQLite,
		DSN: fmt.Sprintf(
			"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
			uuid.NewString(),
		),
	}

	db, openErr := storage.Open(context.Background(), cfg, nil)
	require.NoError(t, openErr)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newTestJob(t *testing.T) *job.Job {
	t.Helper()

	j, newErr := job.New(uuid.NewString(), "src-1", time.Now(), job.SourceSnapshot{
		SourceType: "RSS",
		Config:     map[string]any{"url": "https://example.com/feed"},
	})
	require.NoError(t, newErr)

	return j
}

func TestJobRoundTrip(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewJobStore(db)
	ctx := context.Background()

	j := newTestJob(t)
	require.NoError(t, store.Save(ctx, j))

	require.NoError(t, j.Start(time.Now()))
	require.NoError(t, store.Save(ctx, j))

	// The CAS protocol expects exactly one version bump per save cycle.
	require.NoError(t, j.UpdateMetrics(job.Metrics{ItemsCollected: 3, ItemsPersisted: 2, BytesProcessed: 512}))
	require.NoError(t, store.Save(ctx, j))

	require.NoError(t, j.RecordError(fault.NewRecord(fault.ErrorTypeNetwork, "connection reset")))
	require.NoError(t, store.Save(ctx, j))

	require.NoError(t, j.Complete(time.Now()))
	require.NoError(t, store.Save(ctx, j))

	loaded, getErr := store.Get(ctx, j.ID)
	require.NoError(t, getErr)
	assert.Equal(t, job.StatusCompleted, loaded.Status)
	assert.Equal(t, int64(3), loaded.Metrics.ItemsCollected)
	require.Len(t, loaded.Errors, 1)
	assert.Equal(t, fault.ErrorTypeNetwork, loaded.Errors[0].Type)
}

func TestJobSaveReloadPreservesFields(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewJobStore(db)
	ctx := context.Background()

	j := newTestJob(t)
	require.NoError(t, store.Save(ctx, j))

	require.NoError(t, j.Start(time.Now()))
	require.NoError(t, store.Save(ctx, j))

	loaded, getErr := store.Get(ctx, j.ID)
	require.NoError(t, getErr)

	assert.Equal(t, j.ID, loaded.ID)
	assert.Equal(t, j.SourceID, loaded.SourceID)
	assert.Equal(t, job.StatusRunning, loaded.Status)
	assert.Equal(t, j.Version, loaded.Version)
	assert.Equal(t, "RSS", loaded.Source.SourceType)
	require.NotNil(t, loaded.ExecutedAt)
}

func TestJobConcurrentSaveConflicts(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewJobStore(db)
	ctx := context.Background()

	j := newTestJob(t)
	require.NoError(t, store.Save(ctx, j))

	first, getErr := store.Get(ctx, j.ID)
	require.NoError(t, getErr)

	second, getErr := store.Get(ctx, j.ID)
	require.NoError(t, getErr)

	require.NoError(t, first.Start(time.Now()))
	require.NoError(t, store.Save(ctx, first))

	require.NoError(t, second.Start(time.Now()))

	saveErr := store.Save(ctx, second)
	require.Error(t, saveErr)
	assert.Equal(t, fault.KindConcurrency, fault.KindOf(saveErr))
}

func TestJobGetMissing(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewJobStore(db)

	_, getErr := store.Get(context.Background(), "absent")
	require.Error(t, getErr)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(getErr))
}

func TestJobListFiltersByStatus(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewJobStore(db)
	ctx := context.Background()

	pending := newTestJob(t)
	require.NoError(t, store.Save(ctx, pending))

	running := newTestJob(t)
	require.NoError(t, store.Save(ctx, running))
	require.NoError(t, running.Start(time.Now()))
	require.NoError(t, store.Save(ctx, running))

	views, listErr := store.List(ctx, job.StatusRunning, 0)
	require.NoError(t, listErr)
	require.Len(t, views, 1)
	assert.Equal(t, running.ID, views[0].ID)

	all, listErr := store.List(ctx, "", 0)
	require.NoError(t, listErr)
	assert.Len(t, all, 2)
}

func TestSourceRoundTripAndSoftDelete(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewSourceStore(db)
	ctx := context.Background()

	src, newErr := source.New("src-1", "RSS", "Example Feed", map[string]any{"url": "https://example.com"}, "sealed")
	require.NoError(t, newErr)
	require.NoError(t, store.Save(ctx, src))

	src.RecordFailure(time.Now())
	require.NoError(t, store.Save(ctx, src))

	loaded, getErr := store.Get(ctx, src.ID)
	require.NoError(t, getErr)
	assert.Equal(t, src.Version, loaded.Version)
	assert.Equal(t, 1, loaded.Health.ConsecutiveFailures)
	assert.Zero(t, loaded.Health.SuccessRate)
	require.NotNil(t, loaded.Health.LastFailureAt)

	// Soft delete keeps the row.
	require.True(t, loaded.Disable("operator request"))
	require.NoError(t, store.Save(ctx, loaded))

	again, getErr := store.Get(ctx, src.ID)
	require.NoError(t, getErr)
	assert.False(t, again.IsActive)
	assert.Equal(t, "operator request", again.DisabledReason)

	active, listErr := store.List(ctx, true)
	require.NoError(t, listErr)
	assert.Empty(t, active)

	all, listErr := store.List(ctx, false)
	require.NoError(t, listErr)
	assert.Len(t, all, 1)
}

func TestContentInsertAndDuplicateHash(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewContentStore(db)
	ctx := context.Background()

	normalized := "bitcoin hits $50,000"
	hash := texthash.SHA256Hex(normalized)

	item, newErr := content.NewItem(
		uuid.NewString(), "src-1", hash,
		"<p>Bitcoin hits $50,000</p>", normalized,
		content.Metadata{Title: "BTC", Language: "en"},
		[]content.AssetTag{{Symbol: "BTC", Confidence: 0.9}},
		time.Now(),
	)
	require.NoError(t, newErr)
	require.NoError(t, store.Save(ctx, item))

	exists, existsErr := store.ExistsByHash(ctx, hash)
	require.NoError(t, existsErr)
	assert.True(t, exists)

	dup, newErr := content.NewItem(
		uuid.NewString(), "src-1", hash,
		"<p>Bitcoin hits $50,000</p>", normalized,
		content.Metadata{}, nil, time.Now(),
	)
	require.NoError(t, newErr)

	saveErr := store.Save(ctx, dup)
	require.ErrorIs(t, saveErr, storage.ErrDuplicateHash)
}

func TestContentRawCompressionIsTransparent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewContentStore(db)
	ctx := context.Background()

	// Long repetitive raw content compresses well; the read path must
	// return it byte-identical.
	raw := strings.Repeat("Ethereum validators exited the queue today. ", 200)
	normalized := "ethereum validators exited the queue today."

	item, newErr := content.NewItem(
		uuid.NewString(), "src-1", texthash.SHA256Hex(normalized),
		raw, normalized, content.Metadata{}, nil, time.Now(),
	)
	require.NoError(t, newErr)
	require.NoError(t, store.Save(ctx, item))

	loaded, getErr := store.Get(ctx, item.ID)
	require.NoError(t, getErr)
	assert.Equal(t, raw, loaded.RawContent)
	assert.Equal(t, item.NormalizedContent, loaded.NormalizedContent)
}

func TestContentRawStartingWithCodecMarkerRoundTrips(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewContentStore(db)
	ctx := context.Background()

	// Short incompressible text is stored plain; one that begins with the
	// compression marker must still read back byte-identical.
	raw := "lz4: a short note about the lz4 codec"
	normalized := "a short note about the lz4 codec"

	item, newErr := content.NewItem(
		uuid.NewString(), "src-1", texthash.SHA256Hex(normalized),
		raw, normalized, content.Metadata{}, nil, time.Now(),
	)
	require.NoError(t, newErr)
	require.NoError(t, store.Save(ctx, item))

	loaded, getErr := store.Get(ctx, item.ID)
	require.NoError(t, getErr)
	assert.Equal(t, raw, loaded.RawContent)
}

func newProcessingRefinement(t *testing.T, contentItemID string) *refine.Refinement {
	t.Helper()

	r, newErr := refine.New(uuid.NewString(), contentItemID)
	require.NoError(t, newErr)
	require.NoError(t, r.StartProcessing(time.Now()))

	return r
}

func testChunk(id string, start, end int, overall float64) refine.Chunk {
	return refine.Chunk{
		ID:       id,
		Content:  fmt.Sprintf("chunk %s", id),
		Position: refine.ChunkPosition{StartOffset: start, EndOffset: end},
		Hash:     texthash.SHA256Hex(id),
		Quality:  refine.QualityScore{Overall: overall, Length: overall, Coherence: overall, Relevance: overall, Freshness: overall},
	}
}

func TestRefinementRoundTripWithChunks(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewRefinementStore(db)
	ctx := context.Background()

	r := newProcessingRefinement(t, uuid.NewString())
	require.NoError(t, store.Save(ctx, r))

	require.NoError(t, r.AddChunk(testChunk("c-1", 0, 100, 0.8)))
	require.NoError(t, store.Save(ctx, r))

	require.NoError(t, r.AddChunk(testChunk("c-2", 90, 200, 0.6)))
	require.NoError(t, store.Save(ctx, r))

	require.NoError(t, r.Complete(time.Now()))
	require.NoError(t, store.Save(ctx, r))

	loaded, getErr := store.Get(ctx, r.ID)
	require.NoError(t, getErr)

	assert.Equal(t, refine.StatusCompleted, loaded.Status)
	assert.Equal(t, r.Version, loaded.Version)
	require.Len(t, loaded.Chunks, 2)

	// Indices contiguous and chain intact after reload.
	assert.Equal(t, 0, loaded.Chunks[0].Position.Index)
	assert.Equal(t, 1, loaded.Chunks[1].Position.Index)
	assert.Equal(t, loaded.Chunks[1].ID, loaded.Chunks[0].NextChunkID)
	assert.Equal(t, loaded.Chunks[0].ID, loaded.Chunks[1].PrevChunkID)
	assert.InDelta(t, 0.7, loaded.AverageQualityScore(), 1e-9)
}

func TestRefinementActiveUniqueness(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewRefinementStore(db)
	ctx := context.Background()

	contentItemID := uuid.NewString()

	first := newProcessingRefinement(t, contentItemID)
	require.NoError(t, store.Save(ctx, first))

	second, newErr := refine.New(uuid.NewString(), contentItemID)
	require.NoError(t, newErr)

	saveErr := store.Save(ctx, second)
	require.ErrorIs(t, saveErr, storage.ErrActiveRefinementExists)

	active, findErr := store.FindActiveByContentItem(ctx, contentItemID)
	require.NoError(t, findErr)
	assert.Equal(t, first.ID, active.ID)

	// A terminal refinement frees the slot.
	require.NoError(t, first.Complete(time.Now()))
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))
}

func TestTallyRecordsAtomically(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewTallyStore(db)
	ctx := context.Background()

	refinementID := uuid.NewString()
	require.NoError(t, store.Create(ctx, refinementID, 3))

	first, recordErr := store.Record(ctx, refinementID, true)
	require.NoError(t, recordErr)
	assert.Equal(t, 1, first.Processed)
	assert.Equal(t, 1, first.Valid)
	assert.False(t, first.Done())

	second, recordErr := store.Record(ctx, refinementID, false)
	require.NoError(t, recordErr)
	assert.Equal(t, 2, second.Processed)
	assert.Equal(t, 1, second.Valid)
	assert.False(t, second.Done())

	third, recordErr := store.Record(ctx, refinementID, true)
	require.NoError(t, recordErr)
	assert.Equal(t, 3, third.Processed)
	assert.Equal(t, 2, third.Valid)
	assert.True(t, third.Done())

	require.NoError(t, store.Delete(ctx, refinementID))

	_, getErr := store.Get(ctx, refinementID)
	require.Error(t, getErr)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(getErr))
}

func TestTallyRecordMissing(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := storage.NewTallyStore(db)

	_, recordErr := store.Record(context.Background(), "absent", true)
	require.Error(t, recordErr)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(recordErr))
}
