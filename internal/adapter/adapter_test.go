package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/adapter"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/breaker"
	"github.com/Sumatoshi-tech/newsfang/pkg/retry"
)

func staticSource(t *testing.T, items []any) *source.Source {
	t.Helper()

	src, newErr := source.New("src-static", adapter.TypeStatic, "Inline", map[string]any{"items": items}, "")
	require.NoError(t, newErr)

	return src
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry()
	first := adapter.NewStatic()
	second := adapter.NewStatic()

	reg.Register(adapter.TypeStatic, first)
	reg.Register(adapter.TypeStatic, second)

	got, getErr := reg.Get(adapter.TypeStatic)
	require.NoError(t, getErr)
	assert.Same(t, second, got)
	assert.Equal(t, []string{adapter.TypeStatic}, reg.Types())
}

func TestRegistryGetUnknownType(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry()

	_, getErr := reg.Get("RSS")
	require.Error(t, getErr)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(getErr))
}

func TestValidateConfigAgainstSchema(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry()
	reg.Register(adapter.TypeStatic, adapter.NewStatic())

	valid, validateErr := reg.ValidateConfig(adapter.TypeStatic, map[string]any{
		"items": []any{map[string]any{"content": "hello"}},
	})
	require.NoError(t, validateErr)
	assert.True(t, valid.IsValid)
	assert.Empty(t, valid.Errors)

	invalid, validateErr := reg.ValidateConfig(adapter.TypeStatic, map[string]any{
		"items": []any{},
	})
	require.NoError(t, validateErr)
	assert.False(t, invalid.IsValid)
	assert.NotEmpty(t, invalid.Errors)
}

func TestStaticCollect(t *testing.T) {
	t.Parallel()

	src := staticSource(t, []any{
		map[string]any{
			"content":     "Bitcoin hits $50,000",
			"title":       "BTC rally",
			"publishedAt": "2026-08-20T12:00:00Z",
		},
		map[string]any{"content": "Ethereum upgrade shipped"},
	})

	items, collectErr := adapter.NewStatic().Collect(context.Background(), src)
	require.NoError(t, collectErr)
	require.Len(t, items, 2)

	assert.Equal(t, "Bitcoin hits $50,000", items[0].RawContent)
	assert.Equal(t, "BTC rally", items[0].Metadata.Title)
	require.NotNil(t, items[0].Metadata.PublishedAt)
	assert.Equal(t, adapter.TypeStatic, items[0].SourceType)
}

func TestStaticCollectRejectsMalformedConfig(t *testing.T) {
	t.Parallel()

	src, newErr := source.New("src-bad", adapter.TypeStatic, "Broken", map[string]any{"items": "nope"}, "")
	require.NoError(t, newErr)

	_, collectErr := adapter.NewStatic().Collect(context.Background(), src)
	require.Error(t, collectErr)
	assert.Equal(t, fault.ErrorTypeParsing, fault.TypeFromError(collectErr))
}

// flakyAdapter fails a fixed number of times before serving one item.
type flakyAdapter struct {
	failures int
	calls    int
}

func (a *flakyAdapter) Collect(_ context.Context, _ *source.Source) ([]adapter.RawItem, error) {
	a.calls++

	if a.calls <= a.failures {
		return nil, fault.OfType(fault.ErrorTypeNetwork, "connection reset")
	}

	return []adapter.RawItem{{RawContent: "recovered", SourceType: "FLAKY", CollectedAt: time.Now()}}, nil
}

func (a *flakyAdapter) Supports(sourceType string) bool { return sourceType == "FLAKY" }

func (a *flakyAdapter) ConfigSchema() string { return `{"type": "object"}` }

func fastFetcherConfig() adapter.FetcherConfig {
	cfg := adapter.DefaultFetcherConfig()
	cfg.RateLimit = 1000
	cfg.RateBurst = 1000
	cfg.Retry = retry.Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		MaxDelay:     5 * time.Millisecond,
	}

	return cfg
}

func TestFetcherRecoversFromTransientFailures(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry()
	flaky := &flakyAdapter{failures: 4}
	reg.Register("FLAKY", flaky)

	cfg := fastFetcherConfig()
	cfg.Breaker = breaker.Settings{FailureThreshold: 10, SuccessThreshold: 1, OpenDuration: time.Minute}

	f := adapter.NewFetcher(reg, cfg, nil)

	src, newErr := source.New("src-flaky", "FLAKY", "Flaky", nil, "")
	require.NoError(t, newErr)

	outcome, fetchErr := f.Fetch(context.Background(), src)
	require.NoError(t, fetchErr)
	require.Len(t, outcome.Items, 1)
	assert.Equal(t, 5, outcome.Attempts)
	assert.Equal(t, breaker.StateClosed, f.BreakerState(src.ID))
}

func TestFetcherStopsRetryingPermanentErrors(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry()
	// Permanent failures must not burn the retry budget.
	perm := &permanentAdapter{}
	reg.Register("PERM", perm)

	f := adapter.NewFetcher(reg, fastFetcherConfig(), nil)

	src, newErr := source.New("src-perm", "PERM", "Broken feed", nil, "")
	require.NoError(t, newErr)

	outcome, fetchErr := f.Fetch(context.Background(), src)
	require.Error(t, fetchErr)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, fault.ErrorTypeParsing, fault.TypeFromError(fetchErr))
}

type permanentAdapter struct{}

func (a *permanentAdapter) Collect(_ context.Context, _ *source.Source) ([]adapter.RawItem, error) {
	return nil, fault.OfType(fault.ErrorTypeParsing, "malformed feed")
}

func (a *permanentAdapter) Supports(sourceType string) bool { return sourceType == "PERM" }

func (a *permanentAdapter) ConfigSchema() string { return `{"type": "object"}` }

func TestFetcherShortCircuitsWhenCircuitOpens(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry()
	failing := &flakyAdapter{failures: 100}
	reg.Register("FLAKY", failing)

	cfg := fastFetcherConfig()
	cfg.Breaker = breaker.Settings{FailureThreshold: 2, SuccessThreshold: 1, OpenDuration: time.Hour}

	f := adapter.NewFetcher(reg, cfg, nil)

	src, newErr := source.New("src-open", "FLAKY", "Dead", nil, "")
	require.NoError(t, newErr)

	_, fetchErr := f.Fetch(context.Background(), src)
	require.Error(t, fetchErr)

	// Two real attempts tripped the breaker; the remaining retries were
	// rejected without reaching the adapter.
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, breaker.StateOpen, f.BreakerState(src.ID))
}
