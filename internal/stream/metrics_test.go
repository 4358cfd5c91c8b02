package stream

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestSessionRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	opener := &fakeOpener{body: &chunkReader{chunks: []string{
		frame("a") + "data: {bad\n" + frame("b") + "data: [DONE]\n",
	}}}
	c := newTestController(t, opener,
		WithMetrics(NewMetrics(provider.Meter("test"))),
		WithTracer(tracenoop.NewTracerProvider().Tracer("test")),
	)

	s := c.SubmitTurn(context.Background(), newTurn(newConversation(), "hi"), nil, &recorder{})
	require.Equal(t, StateCompleted, s.Wait())

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["stream.frames.data"])
	assert.Equal(t, int64(1), sums["stream.frames.malformed"])
	assert.Equal(t, int64(1), sums["stream.turns"])
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.dataFrame(ctx)
		m.malformedFrame(ctx)
		m.turn(ctx, StateCompleted)
		m.timeToFirstDelta(ctx, 0)
	})
}
