package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

const (
	metricJobsTotal        = "newsfang.jobs.total"
	metricJobDuration      = "newsfang.job.duration.seconds"
	metricItemsCollected   = "newsfang.items.collected.total"
	metricItemsIngested    = "newsfang.items.ingested.total"
	metricItemsRejected    = "newsfang.items.rejected.total"
	metricDuplicatesTotal  = "newsfang.duplicates.total"
	metricChunksProcessed  = "newsfang.chunks.processed.total"
	metricChunkQuality     = "newsfang.chunk.quality"
	metricRefinementsTotal = "newsfang.refinements.total"
	metricJobsInflight     = "newsfang.jobs.inflight"

	attrStatus     = "status"
	attrSourceType = "source_type"
	attrReason     = "reason"
	attrValid      = "valid"
)

// jobDurationBoundaries covers sub-second inline collections up to
// multi-minute slow feeds.
var jobDurationBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// qualityBoundaries splits the [0,1] quality range into even deciles.
var qualityBoundaries = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

// PipelineMetrics holds the OTel instruments both pipelines record into.
type PipelineMetrics struct {
	jobsTotal        metric.Int64Counter
	jobDuration      metric.Float64Histogram
	itemsCollected   metric.Int64Counter
	itemsIngested    metric.Int64Counter
	itemsRejected    metric.Int64Counter
	duplicatesTotal  metric.Int64Counter
	chunksProcessed  metric.Int64Counter
	chunkQuality     metric.Float64Histogram
	refinementsTotal metric.Int64Counter
	jobsInflight     metric.Int64UpDownCounter
}

// NewPipelineMetrics creates the pipeline instruments from the given
// meter. Creation errors are joined so every bad instrument reports at
// once instead of one per restart.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	var errs []error

	pm := &PipelineMetrics{
		jobsTotal:        newCounter(mt, &errs, metricJobsTotal, "Ingestion jobs finished by terminal status", "{job}"),
		jobDuration:      newHistogram(mt, &errs, metricJobDuration, "Ingestion job duration in seconds", "s", jobDurationBoundaries),
		itemsCollected:   newCounter(mt, &errs, metricItemsCollected, "Raw items collected from sources", "{item}"),
		itemsIngested:    newCounter(mt, &errs, metricItemsIngested, "Content items persisted", "{item}"),
		itemsRejected:    newCounter(mt, &errs, metricItemsRejected, "Content items rejected before persistence", "{item}"),
		duplicatesTotal:  newCounter(mt, &errs, metricDuplicatesTotal, "Duplicate content items dropped", "{item}"),
		chunksProcessed:  newCounter(mt, &errs, metricChunksProcessed, "Refinement chunks enriched", "{chunk}"),
		chunkQuality:     newHistogram(mt, &errs, metricChunkQuality, "Per-chunk overall quality score", "1", qualityBoundaries),
		refinementsTotal: newCounter(mt, &errs, metricRefinementsTotal, "Refinements finished by terminal status", "{refinement}"),
		jobsInflight:     newGauge(mt, &errs, metricJobsInflight, "Ingestion jobs currently running", "{job}"),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return pm, nil
}

func newCounter(mt metric.Meter, errs *[]error, name, desc, unit string) metric.Int64Counter {
	c, createErr := mt.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if createErr != nil {
		*errs = append(*errs, fmt.Errorf("create %s: %w", name, createErr))
	}

	return c
}

func newHistogram(mt metric.Meter, errs *[]error, name, desc, unit string, bounds []float64) metric.Float64Histogram {
	h, createErr := mt.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	if createErr != nil {
		*errs = append(*errs, fmt.Errorf("create %s: %w", name, createErr))
	}

	return h
}

func newGauge(mt metric.Meter, errs *[]error, name, desc, unit string) metric.Int64UpDownCounter {
	g, createErr := mt.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if createErr != nil {
		*errs = append(*errs, fmt.Errorf("create %s: %w", name, createErr))
	}

	return g
}

// NewNopPipelineMetrics creates instruments on the no-op meter. Handy for
// tests and for wiring before telemetry is initialized.
func NewNopPipelineMetrics() *PipelineMetrics {
	pm, _ := NewPipelineMetrics(noopmetric.NewMeterProvider().Meter(meterName))

	return pm
}

// RecordJob records one finished job with its terminal status and duration.
func (pm *PipelineMetrics) RecordJob(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	pm.jobsTotal.Add(ctx, 1, attrs)
	pm.jobDuration.Record(ctx, duration.Seconds(), attrs)
}

// TrackJob increments the in-flight gauge and returns a function to decrement it.
func (pm *PipelineMetrics) TrackJob(ctx context.Context) func() {
	pm.jobsInflight.Add(ctx, 1)

	return func() {
		pm.jobsInflight.Add(ctx, -1)
	}
}

// RecordCollected records raw items collected from one source type.
func (pm *PipelineMetrics) RecordCollected(ctx context.Context, sourceType string, count int) {
	pm.itemsCollected.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String(attrSourceType, sourceType),
	))
}

// RecordIngested records one persisted content item.
func (pm *PipelineMetrics) RecordIngested(ctx context.Context) {
	pm.itemsIngested.Add(ctx, 1)
}

// RecordRejected records one item dropped before persistence, tagged with
// the rejection reason.
func (pm *PipelineMetrics) RecordRejected(ctx context.Context, reason string) {
	pm.itemsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// RecordDuplicate records one duplicate drop.
func (pm *PipelineMetrics) RecordDuplicate(ctx context.Context) {
	pm.duplicatesTotal.Add(ctx, 1)
}

// RecordChunk records one enriched chunk and its quality score.
func (pm *PipelineMetrics) RecordChunk(ctx context.Context, valid bool, quality float64) {
	pm.chunksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.Bool(attrValid, valid)))
	pm.chunkQuality.Record(ctx, quality)
}

// RecordRefinement records one finished refinement with its terminal status.
func (pm *PipelineMetrics) RecordRefinement(ctx context.Context, status string) {
	pm.refinementsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}
