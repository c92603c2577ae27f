package telemetry

import "context"

// Metrics the client records on its own behalf. They are registered with
// their real type the first time they are written, instead of the generic
// gauge an unknown name gets.
var builtinMetrics = map[string]MetricDescriptor{
	"operation_duration_ms": {
		Name:        "operation_duration_ms",
		Description: "Duration of a monitored operation",
		Unit:        "ms",
		Type:        MetricHistogram,
	},
	"api_call_duration_ms": {
		Name:        "api_call_duration_ms",
		Description: "Duration of an API call",
		Unit:        "ms",
		Type:        MetricHistogram,
	},
	"cpu_usage_percent": {
		Name:        "cpu_usage_percent",
		Description: "Reported CPU usage of a service",
		Unit:        "percent",
		Type:        MetricGauge,
	},
	"memory_usage_percent": {
		Name:        "memory_usage_percent",
		Description: "Reported memory usage of a service",
		Unit:        "percent",
		Type:        MetricGauge,
	},
	"memory_rss_bytes": {
		Name:        "memory_rss_bytes",
		Description: "Reported resident set size of a service",
		Unit:        "bytes",
		Type:        MetricGauge,
	},
}

// recordBuiltin is RecordMetric for a name in builtinMetrics.
func (c *Client) recordBuiltin(ctx context.Context, name string, value float64, tags map[string]string) {
	if d, ok := builtinMetrics[name]; ok {
		c.buf.registerMetricIfAbsent(d)
	}
	c.RecordMetric(ctx, name, value, tags)
}
