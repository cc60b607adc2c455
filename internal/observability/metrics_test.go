package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/newsfang/internal/observability"
)

func TestPipelineMetricsRecord(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	pm, newErr := observability.NewPipelineMetrics(provider.Meter("test"))
	require.NoError(t, newErr)

	ctx := context.Background()

	done := pm.TrackJob(ctx)
	pm.RecordCollected(ctx, "RSS", 3)
	pm.RecordIngested(ctx)
	pm.RecordDuplicate(ctx)
	pm.RecordRejected(ctx, "validation")
	pm.RecordChunk(ctx, true, 0.8)
	pm.RecordRefinement(ctx, "completed")
	done()
	pm.RecordJob(ctx, "completed", 120*time.Millisecond)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}

	assert.True(t, names["newsfang.jobs.total"])
	assert.True(t, names["newsfang.items.collected.total"])
	assert.True(t, names["newsfang.duplicates.total"])
	assert.True(t, names["newsfang.chunk.quality"])
}

func TestNopPipelineMetricsIsSafe(t *testing.T) {
	t.Parallel()

	pm := observability.NewNopPipelineMetrics()
	require.NotNil(t, pm)

	pm.RecordJob(context.Background(), "failed", time.Second)
	pm.RecordChunk(context.Background(), false, 0.1)
}
