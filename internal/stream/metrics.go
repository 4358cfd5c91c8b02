package stream

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records stream-level counters. A nil *Metrics records nothing.
type Metrics struct {
	dataFrames      metric.Int64Counter
	malformedFrames metric.Int64Counter
	turns           metric.Int64Counter
	firstDelta      metric.Float64Histogram
}

// NewMetrics creates the stream instruments on meter
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	var err error

	if m.dataFrames, err = meter.Int64Counter(
		"stream.frames.data",
		metric.WithDescription("Data frames decoded from assistant streams"),
	); err != nil {
		slog.Warn("failed to create counter", "name", "stream.frames.data", "error", err)
	}
	if m.malformedFrames, err = meter.Int64Counter(
		"stream.frames.malformed",
		metric.WithDescription("Stream frames skipped because their payload did not parse"),
	); err != nil {
		slog.Warn("failed to create counter", "name", "stream.frames.malformed", "error", err)
	}
	if m.turns, err = meter.Int64Counter(
		"stream.turns",
		metric.WithDescription("Finished stream sessions by outcome"),
	); err != nil {
		slog.Warn("failed to create counter", "name", "stream.turns", "error", err)
	}
	if m.firstDelta, err = meter.Float64Histogram(
		"stream.time_to_first_delta",
		metric.WithDescription("Milliseconds from request to first data frame"),
	); err != nil {
		slog.Warn("failed to create histogram", "name", "stream.time_to_first_delta", "error", err)
	}
	return m
}

func (m *Metrics) dataFrame(ctx context.Context) {
	if m == nil || m.dataFrames == nil {
		return
	}
	m.dataFrames.Add(ctx, 1)
}

func (m *Metrics) malformedFrame(ctx context.Context) {
	if m == nil || m.malformedFrames == nil {
		return
	}
	m.malformedFrames.Add(ctx, 1)
}

func (m *Metrics) turn(ctx context.Context, outcome State) {
	if m == nil || m.turns == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))
}

func (m *Metrics) timeToFirstDelta(ctx context.Context, d time.Duration) {
	if m == nil || m.firstDelta == nil {
		return
	}
	m.firstDelta.Record(ctx, float64(d.Milliseconds()))
}
