package dedup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/dedup"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/texthash"
)

// fakeChecker is an in-memory stand-in for the content store.
type fakeChecker struct {
	seen    map[string]bool
	lookups int
	err     error
}

func (f *fakeChecker) ExistsByHash(_ context.Context, hash string) (bool, error) {
	f.lookups++

	if f.err != nil {
		return false, f.err
	}

	return f.seen[hash], nil
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	srv := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestIsDuplicateRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	d := dedup.New(&fakeChecker{}, nil)

	_, checkErr := d.IsDuplicate(context.Background(), "not-a-hash")
	require.Error(t, checkErr)
	assert.Equal(t, fault.KindValidation, fault.KindOf(checkErr))
}

func TestIsDuplicateFallsThroughToStore(t *testing.T) {
	t.Parallel()

	hash := texthash.SHA256Hex("some content")
	store := &fakeChecker{seen: map[string]bool{hash: true}}
	d := dedup.New(store, nil)

	dup, checkErr := d.IsDuplicate(context.Background(), hash)
	require.NoError(t, checkErr)
	assert.True(t, dup)
	assert.Equal(t, 1, store.lookups)

	fresh, checkErr := d.IsDuplicate(context.Background(), texthash.SHA256Hex("other content"))
	require.NoError(t, checkErr)
	assert.False(t, fresh)
}

func TestCacheHitShortcutsStore(t *testing.T) {
	t.Parallel()

	hash := texthash.SHA256Hex("cached content")
	store := &fakeChecker{seen: map[string]bool{hash: true}}
	d := dedup.New(store, nil, dedup.WithCache(testRedis(t), time.Hour))

	ctx := context.Background()

	d.MarkSeen(ctx, hash)

	dup, checkErr := d.IsDuplicate(ctx, hash)
	require.NoError(t, checkErr)
	assert.True(t, dup)
	assert.Zero(t, store.lookups, "cache hit must not reach the store")
}

func TestCacheErrorDegradesToStore(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	hash := texthash.SHA256Hex("content behind a broken cache")
	store := &fakeChecker{seen: map[string]bool{hash: true}}
	d := dedup.New(store, nil, dedup.WithCache(client, time.Hour))

	// A dead cache must degrade to the authoritative check.
	srv.Close()
	_ = client.Close()

	dup, checkErr := d.IsDuplicate(context.Background(), hash)
	require.NoError(t, checkErr)
	assert.True(t, dup)
	assert.Equal(t, 1, store.lookups)
}

func TestStoreErrorSurfaces(t *testing.T) {
	t.Parallel()

	store := &fakeChecker{err: errors.New("store down")}
	d := dedup.New(store, nil)

	_, checkErr := d.IsDuplicate(context.Background(), texthash.SHA256Hex("x"))
	require.Error(t, checkErr)
}
