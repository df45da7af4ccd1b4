package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "flowspace"

// Metrics holds the realtime and move-protocol instruments.
type Metrics struct {
	Moves         metric.Int64Counter
	MoveConflicts metric.Int64Counter
	MoveDuration  metric.Float64Histogram
	Connections   metric.Int64UpDownCounter
	EventsRelayed metric.Int64Counter
	EventsDropped metric.Int64Counter
	SlowEvictions metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Moves, err = meter.Int64Counter("flowspace.task.moves",
		metric.WithDescription("Number of persisted task moves"))
	if err != nil {
		return nil, err
	}

	m.MoveConflicts, err = meter.Int64Counter("flowspace.task.move_conflicts",
		metric.WithDescription("Version conflicts hit while persisting a move"))
	if err != nil {
		return nil, err
	}

	m.MoveDuration, err = meter.Float64Histogram("flowspace.task.move.duration_seconds",
		metric.WithDescription("Move protocol latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.Connections, err = meter.Int64UpDownCounter("flowspace.realtime.connections",
		metric.WithDescription("Open realtime connections"))
	if err != nil {
		return nil, err
	}

	m.EventsRelayed, err = meter.Int64Counter("flowspace.realtime.events_relayed",
		metric.WithDescription("Events fanned out to rooms"))
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("flowspace.realtime.events_dropped",
		metric.WithDescription("Events not delivered because a send buffer was full"))
	if err != nil {
		return nil, err
	}

	m.SlowEvictions, err = meter.Int64Counter("flowspace.realtime.slow_evictions",
		metric.WithDescription("Connections closed for not keeping up"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
