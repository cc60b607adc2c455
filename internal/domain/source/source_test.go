package source_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

func newSource(t *testing.T) *source.Source {
	t.Helper()

	s, newErr := source.New("source-1", "RSS", "crypto feed", map[string]any{"url": "https://example.test/feed"}, "")
	require.NoError(t, newErr)

	return s
}

func TestNewSourceIsActiveAtVersionZero(t *testing.T) {
	t.Parallel()

	s := newSource(t)

	assert.True(t, s.IsActive)
	assert.Zero(t, s.Version)
	assert.Zero(t, s.Health.TotalJobs)
	assert.InDelta(t, 100.0, s.Health.SuccessRate, 1e-9)
}

func TestNewSourceValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         string
		sourceType string
		srcName    string
	}{
		{name: "missing id", id: "", sourceType: "RSS", srcName: "x"},
		{name: "missing type", id: "s1", sourceType: "", srcName: "x"},
		{name: "missing name", id: "s1", sourceType: "RSS", srcName: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, newErr := source.New(tt.id, tt.sourceType, tt.srcName, nil, "")

			assert.Equal(t, fault.KindValidation, fault.KindOf(newErr))
		})
	}
}

func TestRecordSuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	now := time.Now()

	s.RecordFailure(now)
	s.RecordFailure(now)
	require.Equal(t, 2, s.Health.ConsecutiveFailures)

	s.RecordSuccess(now)

	assert.Zero(t, s.Health.ConsecutiveFailures)
	assert.Equal(t, int64(3), s.Health.TotalJobs)
	assert.NotNil(t, s.Health.LastSuccessAt)
}

func TestRecordFailureIncrementsStreakByOne(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	now := time.Now()

	for i := 1; i <= 3; i++ {
		s.RecordFailure(now)
		assert.Equal(t, i, s.Health.ConsecutiveFailures)
	}

	assert.NotNil(t, s.Health.LastFailureAt)
}

func TestSuccessRateMatchesRatio(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	now := time.Now()

	for range 3 {
		s.RecordSuccess(now)
	}

	s.RecordFailure(now)

	// 3 successes over 4 jobs.
	assert.InDelta(t, 75.0, s.Health.SuccessRate, 1e-9)
}

func TestIsUnhealthyOnFailureStreak(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	th := source.DefaultThresholds()
	now := time.Now()

	for range 4 {
		s.RecordFailure(now)
	}

	require.False(t, s.IsUnhealthy(th))

	s.RecordFailure(now)

	assert.True(t, s.IsUnhealthy(th))
}

func TestIsUnhealthyOnLowRateNeedsHistory(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	th := source.DefaultThresholds()
	now := time.Now()

	// Alternating outcomes keep the failure streak short so only the
	// rate check can trip.
	for range 4 {
		s.RecordFailure(now)
		s.RecordSuccess(now)
	}

	s.RecordFailure(now)
	s.RecordSuccess(now)

	// 5 successes over 10 jobs = 50%, not below the floor.
	require.Equal(t, int64(10), s.Health.TotalJobs)
	require.False(t, s.IsUnhealthy(th))

	s.RecordFailure(now)
	s.RecordSuccess(now)

	// 6/12 = 50% still not below; push under the floor.
	s.RecordFailure(now)

	assert.Less(t, s.Health.SuccessRate, 50.0)
	assert.True(t, s.IsUnhealthy(th))
}

func TestLatchUnhealthyFiresOncePerCrossing(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	th := source.DefaultThresholds()
	now := time.Now()

	for range 5 {
		s.RecordFailure(now)
	}

	assert.True(t, s.LatchUnhealthy(th), "first crossing must latch")
	assert.False(t, s.LatchUnhealthy(th), "latched crossing must not fire again")

	s.RecordFailure(now)
	assert.False(t, s.LatchUnhealthy(th), "still unhealthy, still latched")

	// Recovery clears the latch; the next degradation alerts again.
	s.RecordSuccess(now)
	require.False(t, s.LatchUnhealthy(th))

	for range 5 {
		s.RecordFailure(now)
	}

	assert.True(t, s.LatchUnhealthy(th))
}

func TestDisableIsSoftAndIdempotent(t *testing.T) {
	t.Parallel()

	s := newSource(t)

	require.True(t, s.Disable("Automatic disable due to health issues"))
	assert.False(t, s.IsActive)
	assert.Equal(t, "Automatic disable due to health issues", s.DisabledReason)

	versionAfterDisable := s.Version

	assert.False(t, s.Disable("second call"), "disabling an inactive source must be a no-op")
	assert.Equal(t, versionAfterDisable, s.Version)
}

func TestEnableReactivates(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	require.True(t, s.Disable("maintenance"))

	require.True(t, s.Enable())
	assert.True(t, s.IsActive)
	assert.Empty(t, s.DisabledReason)

	assert.False(t, s.Enable(), "enabling an active source must be a no-op")
}

func TestUpdateReplacesSettings(t *testing.T) {
	t.Parallel()

	s := newSource(t)
	before := s.Version

	require.NoError(t, s.Update("renamed", map[string]any{"url": "https://example.test/v2"}, "sealed-credentials"))

	assert.Equal(t, "renamed", s.Name)
	assert.Equal(t, "sealed-credentials", s.Credentials)
	assert.Equal(t, before+1, s.Version)

	updateErr := s.Update("", nil, "")
	assert.Equal(t, fault.KindValidation, fault.KindOf(updateErr))
}
