// Package observability provides OpenTelemetry metric instruments for the
// activity tracking engine.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for the engine.
type Metrics struct {
	// Recorder metrics
	RecordingsTotal  metric.Int64Counter
	HandlersFinished metric.Int64Counter
	CommandsFinished metric.Int64Counter

	// Status store metrics
	StatusEvictions metric.Int64Counter

	// Bus metrics
	BusMessages metric.Int64Counter
}

// NewMetrics creates all metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RecordingsTotal, err = meter.Int64Counter(
		"sagaflow.activity.recordings",
		metric.WithDescription("Total activity record operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating activity.recordings: %w", err)
	}

	m.HandlersFinished, err = meter.Int64Counter(
		"sagaflow.activity.handlers.finished",
		metric.WithDescription("Total handler invocations finished"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating activity.handlers.finished: %w", err)
	}

	m.CommandsFinished, err = meter.Int64Counter(
		"sagaflow.activity.commands.finished",
		metric.WithDescription("Total commands reaching a terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating activity.commands.finished: %w", err)
	}

	m.StatusEvictions, err = meter.Int64Counter(
		"sagaflow.status.evictions",
		metric.WithDescription("Command statuses dropped by retention eviction"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating status.evictions: %w", err)
	}

	m.BusMessages, err = meter.Int64Counter(
		"sagaflow.bus.messages",
		metric.WithDescription("Pipeline messages published and received"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bus.messages: %w", err)
	}

	return m, nil
}

// RecordOperation records one recorder operation and whether it was
// accepted.
func (m *Metrics) RecordOperation(ctx context.Context, op string, err error) {
	m.RecordingsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("accepted", err == nil),
	))
}

// RecordHandler records one handler invocation finishing.
func (m *Metrics) RecordHandler(ctx context.Context, handlerType string, failed bool) {
	m.HandlersFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("handler", handlerType),
		attribute.Bool("failed", failed),
	))
}

// RecordTerminal records a command reaching a terminal status.
func (m *Metrics) RecordTerminal(ctx context.Context, status string) {
	m.CommandsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// AddEvictions records statuses dropped by a retention pass.
func (m *Metrics) AddEvictions(ctx context.Context, n int) {
	m.StatusEvictions.Add(ctx, int64(n))
}

// AddBusMessages records pipeline messages moving through the bus.
func (m *Metrics) AddBusMessages(ctx context.Context, subject, direction string, n int) {
	m.BusMessages.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("subject", subject),
		attribute.String("direction", direction),
	))
}
