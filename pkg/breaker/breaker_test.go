package breaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/pkg/breaker"
)

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// failN returns an op that fails its first n calls and counts invocations.
func failN(n int, calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= n {
			return errors.New("downstream failure")
		}

		return nil
	}
}

func settingsForTest() breaker.Settings {
	return breaker.Settings{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenDuration:     10 * time.Second,
	}
}

func TestOpensAfterFailureThreshold(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	b := breaker.NewWithClock(settingsForTest(), clock.Now)

	calls := 0
	op := failN(100, &calls)

	for range 3 {
		execErr := b.Execute(context.Background(), op)
		require.Error(t, execErr)
		require.NotErrorIs(t, execErr, breaker.ErrCircuitOpen)
	}

	require.Equal(t, breaker.StateOpen, b.State())

	// The next call is rejected without invoking the operation.
	rejectErr := b.Execute(context.Background(), op)

	assert.ErrorIs(t, rejectErr, breaker.ErrCircuitOpen)
	assert.Equal(t, 3, calls)
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	b := breaker.NewWithClock(settingsForTest(), clock.Now)

	calls := 0
	for range 3 {
		_ = b.Execute(context.Background(), failN(100, &calls))
	}

	require.Equal(t, breaker.StateOpen, b.State())

	clock.Advance(10 * time.Second)
	require.Equal(t, breaker.StateHalfOpen, b.State())

	// Hold one probe in flight; a second call must be rejected.
	probeStarted := make(chan struct{})
	release := make(chan struct{})
	probeDone := make(chan error, 1)

	go func() {
		probeDone <- b.Execute(context.Background(), func(context.Context) error {
			close(probeStarted)
			<-release

			return nil
		})
	}()

	<-probeStarted

	secondErr := b.Execute(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, secondErr, breaker.ErrCircuitOpen)

	close(release)
	require.NoError(t, <-probeDone)
}

func TestClosesAfterSuccessThreshold(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	b := breaker.NewWithClock(settingsForTest(), clock.Now)

	calls := 0
	for range 3 {
		_ = b.Execute(context.Background(), failN(100, &calls))
	}

	clock.Advance(10 * time.Second)

	ok := func(context.Context) error { return nil }

	require.NoError(t, b.Execute(context.Background(), ok))
	require.Equal(t, breaker.StateHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestProbeFailureReopensAndResetsTimer(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	b := breaker.NewWithClock(settingsForTest(), clock.Now)

	calls := 0
	for range 3 {
		_ = b.Execute(context.Background(), failN(100, &calls))
	}

	clock.Advance(10 * time.Second)
	require.Equal(t, breaker.StateHalfOpen, b.State())

	probeErr := b.Execute(context.Background(), func(context.Context) error {
		return errors.New("probe fails")
	})
	require.Error(t, probeErr)
	require.Equal(t, breaker.StateOpen, b.State())

	// The cooldown restarted at the probe failure: half the window is
	// not enough to re-enter half-open.
	clock.Advance(5 * time.Second)
	assert.Equal(t, breaker.StateOpen, b.State())

	clock.Advance(5 * time.Second)
	assert.Equal(t, breaker.StateHalfOpen, b.State())
}

func TestClosedStateResetsFailureCountOnSuccess(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	b := breaker.NewWithClock(settingsForTest(), clock.Now)

	fail := func(context.Context) error { return errors.New("fail") }
	ok := func(context.Context) error { return nil }

	// Two failures, then a success, then two more failures: the success
	// interrupts the streak so the circuit stays closed.
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	require.NoError(t, b.Execute(context.Background(), ok))
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)

	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", breaker.StateClosed.String())
	assert.Equal(t, "open", breaker.StateOpen.String())
	assert.Equal(t, "half_open", breaker.StateHalfOpen.String())
}
