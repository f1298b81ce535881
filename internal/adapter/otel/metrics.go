package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "hooktrace"

// Metrics holds all hooktrace metric instruments.
type Metrics struct {
	EventsIngested  metric.Int64Counter
	EventsEvicted   metric.Int64Counter
	ForwardFailures metric.Int64Counter
	QueryDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsIngested, err = meter.Int64Counter("hooktrace.events.ingested",
		metric.WithDescription("Number of events admitted to the fact store"))
	if err != nil {
		return nil, err
	}

	m.EventsEvicted, err = meter.Int64Counter("hooktrace.events.evicted",
		metric.WithDescription("Number of events evicted by the capacity bound"))
	if err != nil {
		return nil, err
	}

	m.ForwardFailures, err = meter.Int64Counter("hooktrace.forward.failures",
		metric.WithDescription("Number of failed best-effort forwards to the sink"))
	if err != nil {
		return nil, err
	}

	m.QueryDuration, err = meter.Float64Histogram("hooktrace.query.duration_seconds",
		metric.WithDescription("Aggregation query duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
