package job_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

func newPendingJob(t *testing.T) *job.Job {
	t.Helper()

	j, newErr := job.New("job-1", "source-1", time.Now(), job.SourceSnapshot{SourceType: "RSS"})
	require.NoError(t, newErr)

	return j
}

func TestNewJobStartsPendingAtVersionZero(t *testing.T) {
	t.Parallel()

	j := newPendingJob(t)

	assert.Equal(t, job.StatusPending, j.Status)
	assert.Zero(t, j.Version)
	assert.Nil(t, j.ExecutedAt)
	assert.Nil(t, j.CompletedAt)
	assert.Empty(t, j.Errors)
}

func TestNewJobValidatesIdentity(t *testing.T) {
	t.Parallel()

	_, noIDErr := job.New("", "source-1", time.Now(), job.SourceSnapshot{})
	assert.Equal(t, fault.KindValidation, fault.KindOf(noIDErr))

	_, noSourceErr := job.New("job-1", "", time.Now(), job.SourceSnapshot{})
	assert.Equal(t, fault.KindValidation, fault.KindOf(noSourceErr))
}

func TestJobLifecycleHappyPath(t *testing.T) {
	t.Parallel()

	j := newPendingJob(t)
	startedAt := time.Now()

	require.NoError(t, j.Start(startedAt))
	assert.Equal(t, job.StatusRunning, j.Status)
	assert.Equal(t, int64(1), j.Version)
	require.NotNil(t, j.ExecutedAt)

	require.NoError(t, j.UpdateMetrics(job.Metrics{ItemsCollected: 3, BytesProcessed: 1024}))
	require.NoError(t, j.UpdateMetrics(job.Metrics{ItemsPersisted: 2, DuplicatesDetected: 1}))
	assert.Equal(t, int64(3), j.Metrics.ItemsCollected)
	assert.Equal(t, int64(2), j.Metrics.ItemsPersisted)
	assert.Equal(t, int64(1), j.Metrics.DuplicatesDetected)

	require.NoError(t, j.Complete(startedAt.Add(1500*time.Millisecond)))
	assert.Equal(t, job.StatusCompleted, j.Status)
	require.NotNil(t, j.CompletedAt)
	assert.Equal(t, int64(1500), j.Metrics.DurationMs)
	assert.Equal(t, int64(4), j.Version)
}

func TestJobStartRequiresPending(t *testing.T) {
	t.Parallel()

	j := newPendingJob(t)
	require.NoError(t, j.Start(time.Now()))

	startErr := j.Start(time.Now())

	assert.Equal(t, fault.KindInvariant, fault.KindOf(startErr))
}

func TestJobCompleteRequiresRunning(t *testing.T) {
	t.Parallel()

	j := newPendingJob(t)

	completeErr := j.Complete(time.Now())

	assert.Equal(t, fault.KindInvariant, fault.KindOf(completeErr))
}

func TestJobFailAppendsRecord(t *testing.T) {
	t.Parallel()

	j := newPendingJob(t)
	require.NoError(t, j.Start(time.Now()))

	rec := fault.NewRecord(fault.ErrorTypeNetwork, "connection reset")
	require.NoError(t, j.Fail(time.Now(), rec))

	assert.Equal(t, job.StatusFailed, j.Status)
	require.Len(t, j.Errors, 1)
	assert.Equal(t, fault.ErrorTypeNetwork, j.Errors[0].Type)
}

func TestJobTerminalStatesRefuseMutation(t *testing.T) {
	t.Parallel()

	j := newPendingJob(t)
	require.NoError(t, j.Start(time.Now()))
	require.NoError(t, j.Complete(time.Now()))

	metricsErr := j.UpdateMetrics(job.Metrics{ItemsCollected: 1})
	assert.Equal(t, fault.KindInvariant, fault.KindOf(metricsErr))

	recordErr := j.RecordError(fault.NewRecord(fault.ErrorTypeUnknown, "late"))
	assert.Equal(t, fault.KindInvariant, fault.KindOf(recordErr))

	cancelErr := j.Cancel(time.Now())
	assert.Equal(t, fault.KindInvariant, fault.KindOf(cancelErr))
}

func TestJobCancelFromPendingAndRunning(t *testing.T) {
	t.Parallel()

	pending := newPendingJob(t)
	require.NoError(t, pending.Cancel(time.Now()))
	assert.Equal(t, job.StatusCancelled, pending.Status)

	running := newPendingJob(t)
	require.NoError(t, running.Start(time.Now()))
	require.NoError(t, running.Cancel(time.Now()))
	assert.Equal(t, job.StatusCancelled, running.Status)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, job.StatusPending.Terminal())
	assert.False(t, job.StatusRunning.Terminal())
	assert.True(t, job.StatusCompleted.Terminal())
	assert.True(t, job.StatusFailed.Terminal())
	assert.True(t, job.StatusCancelled.Terminal())
}

func TestMetricsAddIsFieldWise(t *testing.T) {
	t.Parallel()

	m := job.Metrics{ItemsCollected: 1, BytesProcessed: 10}
	m.Add(job.Metrics{ItemsCollected: 2, ItemsPersisted: 5, BytesProcessed: 90})

	assert.Equal(t, int64(3), m.ItemsCollected)
	assert.Equal(t, int64(5), m.ItemsPersisted)
	assert.Equal(t, int64(100), m.BytesProcessed)
}
