package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcontracts/core"
)

func TestRegisterMetric_Validation(t *testing.T) {
	c, _ := newTestClient(t, nil)

	tests := []struct {
		name    string
		desc    MetricDescriptor
		wantErr bool
	}{
		{"valid counter", MetricDescriptor{Name: "jobs.total", Type: MetricCounter}, false},
		{"valid summary", MetricDescriptor{Name: "latency", Unit: "ms", Type: MetricSummary}, false},
		{"missing name", MetricDescriptor{Type: MetricGauge}, true},
		{"unknown type", MetricDescriptor{Name: "x", Type: "meter"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.RegisterMetric(tt.desc)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsConfigurationError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGetMetrics(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	assert.Empty(t, c.GetMetrics(nil))

	c.RecordMetric(ctx, "zeta", 1, nil)
	c.RecordMetric(ctx, "alpha", 1, nil)
	require.NoError(t, c.RegisterMetric(MetricDescriptor{Name: "beta", Unit: "ms", Type: MetricHistogram}))

	all := c.GetMetrics(nil)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, []string{all[0].Name, all[1].Name, all[2].Name})
	assert.Equal(t, MetricDescriptor{
		Name:        "alpha",
		Description: "Auto-registered metric: alpha",
		Unit:        "unspecified",
		Type:        MetricGauge,
	}, all[0])

	gauges := c.GetMetrics(map[string]string{"type": "gauge"})
	assert.Len(t, gauges, 2)
	assert.Equal(t, []MetricDescriptor{all[1]}, c.GetMetrics(map[string]string{"unit": "ms", "type": "histogram"}))
	assert.Empty(t, c.GetMetrics(map[string]string{"owner": "me"}), "unknown filter keys match nothing")

	// Recording does not overwrite an explicit registration.
	c.RecordMetric(ctx, "beta", 4, nil)
	assert.Equal(t, "ms", c.GetMetrics(map[string]string{"name": "beta"})[0].Unit)
}

func TestMetricFilter(t *testing.T) {
	f, err := newMetricFilter([]string{"debug.*", "*.tmp"})
	require.NoError(t, err)

	assert.True(t, f.drop("debug.alloc"))
	assert.True(t, f.drop("cache.tmp"))
	assert.False(t, f.drop("debug.gc.pauses"), "* does not cross the '.' separator")
	assert.False(t, f.drop("requests.total"))

	var none *metricFilter
	assert.False(t, none.drop("anything"))
}
