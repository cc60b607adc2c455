package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/pkg/breaker"
	"github.com/Sumatoshi-tech/newsfang/pkg/retry"
)

// Fetcher defaults.
const (
	// DefaultFetchTimeout caps one collection attempt.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultRateLimit is the per-source collection rate in fetches per
	// second.
	DefaultRateLimit = 1.0

	// DefaultRateBurst is the per-source burst allowance.
	DefaultRateBurst = 3
)

// FetcherConfig tunes the resilient collection path.
type FetcherConfig struct {
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
	Retry     retry.Policy
	Breaker   breaker.Settings
}

// DefaultFetcherConfig returns the standard tuning.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:   DefaultFetchTimeout,
		RateLimit: DefaultRateLimit,
		RateBurst: DefaultRateBurst,
		Retry:     retry.DefaultPolicy(),
		Breaker:   breaker.DefaultSettings(),
	}
}

// Fetcher drives adapter collection under a per-source rate limiter, a
// per-source circuit breaker, and retry with exponential backoff. The
// breaker sits inside the retry loop, so retries during an open circuit
// short-circuit without touching the source.
type Fetcher struct {
	registry *Registry
	cfg      FetcherConfig
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a fetcher over the registry. A nil logger discards
// output.
func NewFetcher(registry *Registry, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}

	return &Fetcher{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*breaker.Breaker),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Outcome reports one collection run with its retry accounting.
type Outcome struct {
	Items     []RawItem
	Attempts  int
	TotalTime time.Duration
}

// Fetch collects the source's items. The returned error is classified:
// deadline expiry surfaces as TIMEOUT, an open circuit as NETWORK, and
// adapter errors keep the type the adapter assigned.
func (f *Fetcher) Fetch(ctx context.Context, src *source.Source) (Outcome, error) {
	a, getErr := f.registry.Get(src.Type)
	if getErr != nil {
		return Outcome{}, getErr
	}

	brk := f.breakerFor(src.ID)
	limiter := f.limiterFor(src.ID)

	policy := f.cfg.Retry
	if policy.Retryable == nil {
		policy.Retryable = fault.IsRetryable
	}

	res := retry.Execute(ctx, policy, func(ctx context.Context) ([]RawItem, error) {
		if waitErr := limiter.Wait(ctx); waitErr != nil {
			return nil, fault.WrapType(fault.ErrorTypeTimeout, "rate limit wait", waitErr)
		}

		var items []RawItem

		execErr := brk.Execute(ctx, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
			defer cancel()

			collected, collectErr := a.Collect(attemptCtx, src)
			if collectErr != nil {
				return classify(collectErr)
			}

			items = collected

			return nil
		})
		if execErr != nil {
			if errors.Is(execErr, breaker.ErrCircuitOpen) {
				return nil, fault.WrapType(fault.ErrorTypeNetwork, "source circuit open", execErr)
			}

			return nil, execErr
		}

		return items, nil
	})

	outcome := Outcome{Items: res.Value, Attempts: res.Attempts, TotalTime: res.TotalTime}

	if !res.Success {
		f.logger.WarnContext(ctx, "collection failed",
			slog.String("source_id", src.ID),
			slog.Int("attempts", res.Attempts),
			slog.String("error", res.Err.Error()),
		)

		return outcome, res.Err
	}

	return outcome, nil
}

// BreakerState exposes the source's circuit state for status reporting.
func (f *Fetcher) BreakerState(sourceID string) breaker.State {
	return f.breakerFor(sourceID).State()
}

// breakerFor returns the source's breaker, creating it on first use.
func (f *Fetcher) breakerFor(sourceID string) *breaker.Breaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	brk, ok := f.breakers[sourceID]
	if !ok {
		brk = breaker.New(f.cfg.Breaker)
		f.breakers[sourceID] = brk
	}

	return brk
}

// limiterFor returns the source's rate limiter, creating it on first use.
func (f *Fetcher) limiterFor(sourceID string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	limiter, ok := f.limiters[sourceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.RateLimit), f.cfg.RateBurst)
		f.limiters[sourceID] = limiter
	}

	return limiter
}

// classify maps raw adapter failures onto the error taxonomy. Errors the
// adapter already classified pass through; deadline expiry becomes
// TIMEOUT; the rest default to NETWORK so transient infrastructure noise
// stays retryable.
func classify(err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fault.WrapType(fault.ErrorTypeTimeout, "collection deadline expired", err)
	}

	return fault.WrapType(fault.ErrorTypeNetwork, "collection failed", err)
}
