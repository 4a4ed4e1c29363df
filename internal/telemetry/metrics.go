// Package telemetry provides OpenTelemetry instrumentation for the sync
// pipeline.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter.
const SyncMetricsMeterName = "github.com/smill0791/data-integration-platform/sync"

// SyncMetrics holds the OpenTelemetry instruments for sync pipeline metrics.
type SyncMetrics struct {
	jobsTotal        metric.Int64Counter
	recordsProcessed metric.Int64Counter
	recordsFailed    metric.Int64Counter
	syncDuration     metric.Float64Histogram
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	jobsTotal, err := meter.Int64Counter(
		"dip_sync_jobs_total",
		metric.WithDescription("Number of sync jobs reaching each status"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	recordsProcessed, err := meter.Int64Counter(
		"dip_sync_records_processed_total",
		metric.WithDescription("Number of records successfully loaded"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	recordsFailed, err := meter.Int64Counter(
		"dip_sync_records_failed_total",
		metric.WithDescription("Number of records that failed the pipeline"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	syncDuration, err := meter.Float64Histogram(
		"dip_sync_duration_seconds",
		metric.WithDescription("Duration of sync jobs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		jobsTotal:        jobsTotal,
		recordsProcessed: recordsProcessed,
		recordsFailed:    recordsFailed,
		syncDuration:     syncDuration,
	}, nil
}

// RecordJobStatus counts a job reaching the given status.
func (m *SyncMetrics) RecordJobStatus(ctx context.Context, source, status string) {
	if m == nil || m.jobsTotal == nil {
		return
	}
	m.jobsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
}

// RecordCounts records the processed/failed record totals for one job.
func (m *SyncMetrics) RecordCounts(ctx context.Context, source string, processed, failed int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	if m.recordsProcessed != nil && processed > 0 {
		m.recordsProcessed.Add(ctx, processed, attrs)
	}
	if m.recordsFailed != nil && failed > 0 {
		m.recordsFailed.Add(ctx, failed, attrs)
	}
}

// RecordSyncDuration records the wall-clock duration of one sync job.
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, source string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}
	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}
