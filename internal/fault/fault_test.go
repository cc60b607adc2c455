package fault_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want fault.Kind
	}{
		{name: "classified error", err: fault.New(fault.KindValidation, "empty hash"), want: fault.KindValidation},
		{name: "wrapped classified error", err: fmt.Errorf("save item: %w", fault.Concurrency("job", "j1", 3)), want: fault.KindConcurrency},
		{name: "plain error", err: errors.New("boom"), want: fault.KindUnknown},
		{name: "not found helper", err: fault.NotFound("source", "s1"), want: fault.KindNotFound},
		{name: "invariant helper", err: fault.Invariant("job %s is terminal", "j1"), want: fault.KindInvariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, fault.KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transient", err: fault.New(fault.KindTransient, "connection reset"), want: true},
		{name: "concurrency", err: fault.Concurrency("job", "j1", 1), want: true},
		{name: "validation", err: fault.New(fault.KindValidation, "bad symbol"), want: false},
		{name: "permanent", err: fault.New(fault.KindPermanent, "bad credentials"), want: false},
		{name: "unclassified", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, fault.IsRetryable(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	wrapped := fault.Wrap(fault.KindTransient, "fetch feed", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "transient")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestErrorTypeRetryable(t *testing.T) {
	t.Parallel()

	retryable := []fault.ErrorType{fault.ErrorTypeNetwork, fault.ErrorTypeRateLimit, fault.ErrorTypeTimeout}
	for _, et := range retryable {
		assert.True(t, et.Retryable(), "%s should be retryable", et)
	}

	permanent := []fault.ErrorType{fault.ErrorTypeParsing, fault.ErrorTypeValidation, fault.ErrorTypeAuth, fault.ErrorTypeUnknown}
	for _, et := range permanent {
		assert.False(t, et.Retryable(), "%s should not be retryable", et)
	}
}

func TestTypeFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want fault.ErrorType
	}{
		{
			name: "explicit type survives wrapping",
			err:  fmt.Errorf("collect: %w", fault.OfType(fault.ErrorTypeRateLimit, "429 from source")),
			want: fault.ErrorTypeRateLimit,
		},
		{
			name: "deadline maps to timeout",
			err:  fmt.Errorf("collect: %w", context.DeadlineExceeded),
			want: fault.ErrorTypeTimeout,
		},
		{
			name: "transient kind maps to network",
			err:  fault.New(fault.KindTransient, "flaky upstream"),
			want: fault.ErrorTypeNetwork,
		},
		{
			name: "plain error maps to unknown",
			err:  errors.New("boom"),
			want: fault.ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, fault.TypeFromError(tt.err))
		})
	}
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	rec := fault.NewRecord(fault.ErrorTypeNetwork, "connection reset")

	require.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Equal(t, fault.ErrorTypeNetwork, rec.Type)
	assert.True(t, rec.Retryable())
	assert.Zero(t, rec.RetryCount)
}

func TestRecordFromError(t *testing.T) {
	t.Parallel()

	rec := fault.RecordFromError(fault.WrapType(fault.ErrorTypeAuth, "login", errors.New("401")))

	assert.Equal(t, fault.ErrorTypeAuth, rec.Type)
	assert.False(t, rec.Retryable())
	assert.Contains(t, rec.Message, "401")
}
