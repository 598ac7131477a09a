package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

func TestPipelineMetrics_Creation(t *testing.T) {
	t.Run("successfully create pipeline metrics", func(t *testing.T) {
		metrics, err := NewPipelineMetrics()
		require.NoError(t, err)
		assert.NotNil(t, metrics)
		assert.NotNil(t, metrics.requestsCreatedCounter)
		assert.NotNil(t, metrics.requestsDoneCounter)
		assert.NotNil(t, metrics.stageDurationHistogram)
		assert.NotNil(t, metrics.pipelinesActiveGauge)
	})
}

func TestPipelineMetrics_RecordRequestCreated(t *testing.T) {
	metrics, err := NewPipelineMetrics()
	require.NoError(t, err)

	t.Run("record request creation", func(t *testing.T) {
		ctx := context.Background()

		assert.NotPanics(t, func() {
			metrics.RecordRequestCreated(ctx, "junior")
		})
	})

	t.Run("record creation for each role", func(t *testing.T) {
		ctx := context.Background()

		for _, role := range []string{"junior", "senior", "manager", "director"} {
			metrics.RecordRequestCreated(ctx, role)
		}
	})
}

func TestPipelineMetrics_RecordRequestFinished(t *testing.T) {
	metrics, err := NewPipelineMetrics()
	require.NoError(t, err)

	t.Run("record each terminal stage", func(t *testing.T) {
		ctx := context.Background()
		terminal := []models.Stage{
			models.StageCompleted,
			models.StageFailed,
			models.StageCancelled,
		}

		for _, stage := range terminal {
			metrics.RecordRequestCreated(ctx, "senior")
			assert.NotPanics(t, func() {
				metrics.RecordRequestFinished(ctx, stage)
			})
		}
	})
}

func TestPipelineMetrics_RecordStageDuration(t *testing.T) {
	metrics, err := NewPipelineMetrics()
	require.NoError(t, err)

	t.Run("record durations for automated stages", func(t *testing.T) {
		ctx := context.Background()
		durations := []time.Duration{
			100 * time.Millisecond,
			1 * time.Second,
			10 * time.Second,
		}

		for i, duration := range durations {
			stage := []models.Stage{
				models.StageIntake,
				models.StageResearching,
				models.StageRanking,
			}[i]
			assert.NotPanics(t, func() {
				metrics.RecordStageDuration(ctx, stage, duration)
			})
		}
	})
}

func TestPipelineMetrics_NilReceiver(t *testing.T) {
	t.Run("nil metrics are safe to call", func(t *testing.T) {
		var metrics *PipelineMetrics
		ctx := context.Background()

		assert.NotPanics(t, func() {
			metrics.RecordRequestCreated(ctx, "junior")
			metrics.RecordRequestFinished(ctx, models.StageCompleted)
			metrics.RecordStageDuration(ctx, models.StageRanking, time.Second)
		})
	})
}

func TestPipelineMetrics_ConcurrentRecording(t *testing.T) {
	metrics, err := NewPipelineMetrics()
	require.NoError(t, err)

	t.Run("handle concurrent metric recording", func(t *testing.T) {
		ctx := context.Background()
		done := make(chan bool)

		for i := 0; i < 10; i++ {
			go func(id int) {
				metrics.RecordRequestCreated(ctx, "senior")

				duration := time.Duration(id) * 100 * time.Millisecond
				metrics.RecordStageDuration(ctx, models.StageResearching, duration)
				if id%2 == 0 {
					metrics.RecordRequestFinished(ctx, models.StageCompleted)
				} else {
					metrics.RecordRequestFinished(ctx, models.StageFailed)
				}

				done <- true
			}(i)
		}

		for i := 0; i < 10; i++ {
			<-done
		}
	})
}
