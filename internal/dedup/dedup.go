// Package dedup decides whether collected content was seen before. The
// authoritative check is the unique content-hash lookup in the store; a
// Redis seen-hash cache in front of it is advisory only and degrades to
// the store check on any cache miss or error.
package dedup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/texthash"
)

// DefaultCacheTTL bounds how long a seen hash stays cached.
const DefaultCacheTTL = 24 * time.Hour

// cacheKeyPrefix namespaces seen-hash keys in Redis.
const cacheKeyPrefix = "newsfang:seen:"

// HashChecker is the authoritative store-side duplicate check.
type HashChecker interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}

// Detector answers exact-match duplicate checks over content hashes.
type Detector struct {
	store  HashChecker
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option tunes a Detector.
type Option func(*Detector)

// WithCache attaches the advisory Redis seen-hash cache.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(d *Detector) {
		d.cache = client

		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// New creates a detector over the authoritative store check. A nil logger
// discards output.
func New(store HashChecker, logger *slog.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Detector{
		store:  store,
		ttl:    DefaultCacheTTL,
		logger: logger,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// IsDuplicate reports whether the hash was seen before. A cache hit
// shortcuts the store lookup; everything else falls through to the store.
func (d *Detector) IsDuplicate(ctx context.Context, hash string) (bool, error) {
	if !texthash.Valid(hash) {
		return false, fault.Newf(fault.KindValidation, "content hash %q is not a 64-hex SHA-256 digest", hash)
	}

	if d.cacheHit(ctx, hash) {
		return true, nil
	}

	exists, existsErr := d.store.ExistsByHash(ctx, hash)
	if existsErr != nil {
		return false, fmt.Errorf("authoritative duplicate check: %w", existsErr)
	}

	return exists, nil
}

// MarkSeen records a freshly persisted hash in the advisory cache. Cache
// failures are logged and swallowed: the store's unique index stays the
// source of truth.
func (d *Detector) MarkSeen(ctx context.Context, hash string) {
	if d.cache == nil {
		return
	}

	if setErr := d.cache.Set(ctx, cacheKeyPrefix+hash, 1, d.ttl).Err(); setErr != nil {
		d.logger.WarnContext(ctx, "seen-hash cache write failed",
			slog.String("content_hash", hash),
			slog.String("error", setErr.Error()),
		)
	}
}

// cacheHit consults the advisory cache. Errors count as misses.
func (d *Detector) cacheHit(ctx context.Context, hash string) bool {
	if d.cache == nil {
		return false
	}

	n, existsErr := d.cache.Exists(ctx, cacheKeyPrefix+hash).Result()
	if existsErr != nil {
		d.logger.WarnContext(ctx, "seen-hash cache read failed",
			slog.String("content_hash", hash),
			slog.String("error", existsErr.Error()),
		)

		return false
	}

	return n > 0
}
