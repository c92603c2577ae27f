package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metricMirror records every accepted sample into an OpenTelemetry meter as
// well, using the instrument that matches the metric's registered type.
// Instruments are created once per name and cached.
type metricMirror struct {
	meter metric.Meter

	mu         sync.RWMutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

func newMetricMirror(meter metric.Meter) *metricMirror {
	if meter == nil {
		return nil
	}
	return &metricMirror{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (m *metricMirror) record(ctx context.Context, d MetricDescriptor, value float64, tags map[string]string) error {
	if m == nil {
		return nil
	}
	opt := metric.WithAttributeSet(tagSet(tags))

	switch d.Type {
	case MetricCounter:
		counter, err := cachedInstrument(&m.mu, m.counters, d.Name, func() (metric.Float64Counter, error) {
			return m.meter.Float64Counter(d.Name, metric.WithDescription(d.Description), metric.WithUnit(d.Unit))
		})
		if err != nil {
			return err
		}
		if value >= 0 {
			counter.Add(ctx, value, opt)
		}
	case MetricHistogram, MetricSummary:
		hist, err := cachedInstrument(&m.mu, m.histograms, d.Name, func() (metric.Float64Histogram, error) {
			return m.meter.Float64Histogram(d.Name, metric.WithDescription(d.Description), metric.WithUnit(d.Unit))
		})
		if err != nil {
			return err
		}
		hist.Record(ctx, value, opt)
	default:
		gauge, err := cachedInstrument(&m.mu, m.gauges, d.Name, func() (metric.Float64Gauge, error) {
			return m.meter.Float64Gauge(d.Name, metric.WithDescription(d.Description), metric.WithUnit(d.Unit))
		})
		if err != nil {
			return err
		}
		gauge.Record(ctx, value, opt)
	}
	return nil
}

// cachedInstrument returns cache[name], creating it with create on a miss.
func cachedInstrument[T any](mu *sync.RWMutex, cache map[string]T, name string, create func() (T, error)) (T, error) {
	mu.RLock()
	inst, ok := cache[name]
	mu.RUnlock()
	if ok {
		return inst, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if inst, ok = cache[name]; ok {
		return inst, nil
	}
	inst, err := create()
	if err != nil {
		return inst, fmt.Errorf("failed to create instrument %s: %w", name, err)
	}
	cache[name] = inst
	return inst, nil
}

func tagSet(tags map[string]string) attribute.Set {
	if len(tags) == 0 {
		return *attribute.EmptySet()
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, attribute.String(k, tags[k]))
	}
	return attribute.NewSet(kvs...)
}
