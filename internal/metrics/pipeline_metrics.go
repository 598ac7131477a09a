package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

var meter = otel.Meter("pipeline-metrics")

// PipelineMetrics provides metrics collection for procurement pipelines
type PipelineMetrics struct {
	requestsCreatedCounter metric.Int64Counter
	requestsDoneCounter    metric.Int64Counter
	stageDurationHistogram metric.Float64Histogram
	pipelinesActiveGauge   metric.Int64UpDownCounter
}

// NewPipelineMetrics creates a new pipeline metrics collector
func NewPipelineMetrics() (*PipelineMetrics, error) {
	requestsCreatedCounter, err := meter.Int64Counter(
		"procurement.requests.created",
		metric.WithDescription("Total number of procurement requests started"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsDoneCounter, err := meter.Int64Counter(
		"procurement.requests.finished",
		metric.WithDescription("Total number of requests that reached a terminal stage"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	stageDurationHistogram, err := meter.Float64Histogram(
		"procurement.stage.duration",
		metric.WithDescription("Duration of pipeline stage execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pipelinesActiveGauge, err := meter.Int64UpDownCounter(
		"procurement.pipelines.active",
		metric.WithDescription("Number of pipelines not yet in a terminal stage"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		requestsCreatedCounter: requestsCreatedCounter,
		requestsDoneCounter:    requestsDoneCounter,
		stageDurationHistogram: stageDurationHistogram,
		pipelinesActiveGauge:   pipelinesActiveGauge,
	}, nil
}

// RecordRequestCreated records a new pipeline start
func (pm *PipelineMetrics) RecordRequestCreated(ctx context.Context, role string) {
	if pm == nil {
		return
	}
	pm.requestsCreatedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("requester.role", role),
		),
	)
	pm.pipelinesActiveGauge.Add(ctx, 1)
}

// RecordRequestFinished records a pipeline reaching a terminal stage
func (pm *PipelineMetrics) RecordRequestFinished(ctx context.Context, stage models.Stage) {
	if pm == nil {
		return
	}
	pm.requestsDoneCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", string(stage)),
		),
	)
	pm.pipelinesActiveGauge.Add(ctx, -1)
}

// RecordStageDuration records how long one automated stage took
func (pm *PipelineMetrics) RecordStageDuration(ctx context.Context, stage models.Stage, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.stageDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", string(stage)),
		),
	)
}
