package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMetricsExists(t *testing.T) {
	require := require.New(t)

	require.NotNil(DefaultMetrics)
	require.NotNil(DefaultMetrics.PendingCount)
	require.NotNil(DefaultMetrics.InFlight)
	require.NotNil(DefaultMetrics.ProcessedTotal)
	require.NotNil(DefaultMetrics.HandlerErrorsTotal)
	require.NotNil(DefaultMetrics.RetryTotal)
	require.NotNil(DefaultMetrics.ProcessingDuration)
	require.NotNil(DefaultMetrics.BatchSize)
	require.NotNil(DefaultMetrics.DLQTotal)
}

func TestMetricsOperations(t *testing.T) {
	metrics := NewMetrics("outbox_metrics_test")

	metrics.PendingCount.Set(100)
	metrics.PendingCount.Add(10)
	metrics.PendingCount.Sub(5)

	metrics.InFlight.Set(3)

	metrics.ProcessedTotal.Add(50)
	metrics.HandlerErrorsTotal.Inc()
	metrics.RetryTotal.Inc()
	metrics.DLQTotal.Inc()

	metrics.ProcessingDuration.Observe(0.5)
	metrics.BatchSize.Observe(100)
}
