package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/phonex/session"

// renderBuckets covers synthesis of short utterances up to long passages.
var renderBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics are the instruments an Engine reports through.
type Metrics struct {
	// RenderDuration is the wall time of Render, with attribute "status".
	RenderDuration metric.Float64Histogram
	// Renders counts renders with attribute "status".
	Renders metric.Int64Counter
	// Playbacks counts finished playbacks with attribute "status".
	Playbacks metric.Int64Counter

	meter   metric.Meter
	samples metric.Int64ObservableGauge
	active  metric.Int64ObservableGauge
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(instrumentationName)
	met := &Metrics{meter: m}
	var err error
	if met.RenderDuration, err = m.Float64Histogram("phonex.render.duration",
		metric.WithDescription("Latency of bytecode rendering including synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(renderBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Renders, err = m.Int64Counter("phonex.render.total",
		metric.WithDescription("Render attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Playbacks, err = m.Int64Counter("phonex.playback.total",
		metric.WithDescription("Finished playbacks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.samples, err = m.Int64ObservableGauge("phonex.cache.samples",
		metric.WithDescription("Samples held in the rendered audio cache."),
	); err != nil {
		return nil, err
	}
	if met.active, err = m.Int64ObservableGauge("phonex.playback.active",
		metric.WithDescription("1 while a playback worker is running."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// observe registers the gauge callback reading e.
func (m *Metrics) observe(e *Engine) error {
	_, err := m.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		samples, playing := e.gaugeCounts()
		obs.ObserveInt64(m.samples, samples)
		obs.ObserveInt64(m.active, playing)
		return nil
	}, m.samples, m.active)
	return err
}

func statusAttr(err error) metric.MeasurementOption {
	status := "ok"
	if err != nil {
		status = "error"
	}
	return playbackStatus(status)
}

func playbackStatus(status string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("status", status))
}
