package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcontracts/core"
)

func TestRecordHealthStatus(t *testing.T) {
	tests := []struct {
		status HealthState
		level  LogLevel
	}{
		{HealthHealthy, LevelInfo},
		{HealthDegraded, LevelWarning},
		{HealthUnhealthy, LevelError},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			c, rt := newTestClient(t, nil)
			ctx := context.Background()

			c.RecordHealthStatus(ctx, ServiceHealthStatus{
				ServiceID:     "planner-1",
				ServiceName:   "planner",
				Status:        tt.status,
				Message:       "probe",
				Version:       "1.4.0",
				UptimeSeconds: 3600,
				Checks:        map[string]bool{"db": true, "cache": false},
			})
			require.True(t, c.Flush(ctx))

			e := findEntry(t, rt.allLogs(), "Health status: "+string(tt.status)+" - probe")
			assert.Equal(t, tt.level, e.Level)
			assert.Equal(t, ComponentSystem, e.Component)
			assert.Equal(t, EventSystem, e.EventType)
			assert.Equal(t, "planner-1", e.Data["service_id"])
			assert.Equal(t, map[string]interface{}{"db": true, "cache": false}, e.Data["checks"])
			assert.Empty(t, rt.metricBatches(), "no resource usage, no metrics")
		})
	}
}

func TestRecordHealthStatus_ResourceMetrics(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	c.RecordHealthStatus(ctx, ServiceHealthStatus{
		ServiceID: "planner-1",
		Status:    HealthHealthy,
		ResourceUsage: &ResourceUsage{
			CPUPercent:    42.5,
			MemoryPercent: 12,
			MemoryRSS:     64 << 20,
		},
	})
	require.True(t, c.Flush(ctx))

	want := map[string]float64{
		"cpu_usage_percent":    42.5,
		"memory_usage_percent": 12,
		"memory_rss_bytes":     float64(64 << 20),
	}
	for name, value := range want {
		samples := metricsNamed(rt.metricBatches(), name)
		require.Len(t, samples, 1, name)
		assert.Equal(t, value, samples[0].Value, name)
		assert.Equal(t, "planner-1", samples[0].Tags["service_id"], name)
	}

	gauges := c.GetMetrics(map[string]string{"type": "gauge", "unit": "percent"})
	require.Len(t, gauges, 2)
	assert.Equal(t, "cpu_usage_percent", gauges[0].Name)
	assert.Equal(t, "memory_usage_percent", gauges[1].Name)
}

func TestCollectorOwnedOperations(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()
	alert := NewAlertConfig("a-1", "high-latency", ComponentAPIGateway, "p99 > 500", LevelWarning)

	ops := []struct {
		name    string
		message string
		call    func() error
	}{
		{"GetHealthStatus", "Health status requested: planner-1", func() error {
			_, err := c.GetHealthStatus(ctx, "planner-1")
			return err
		}},
		{"CreateAlert", "Alert created: high-latency", func() error {
			_, err := c.CreateAlert(ctx, alert)
			return err
		}},
		{"UpdateAlert", "Alert updated: a-1", func() error {
			_, err := c.UpdateAlert(ctx, alert)
			return err
		}},
		{"DeleteAlert", "Alert deleted: a-1", func() error {
			return c.DeleteAlert(ctx, "a-1")
		}},
		{"GetAlerts", "Alerts requested", func() error {
			_, err := c.GetAlerts(ctx, ComponentAPIGateway)
			return err
		}},
		{"GetAlertInstances", "Alert instances requested: a-1", func() error {
			_, err := c.GetAlertInstances(ctx, "a-1", AlertActive)
			return err
		}},
		{"AcknowledgeAlert", "Alert acknowledged: i-1", func() error {
			_, err := c.AcknowledgeAlert(ctx, "i-1", "oncall")
			return err
		}},
		{"ResolveAlert", "Alert resolved: i-1", func() error {
			_, err := c.ResolveAlert(ctx, "i-1", "scaled up")
			return err
		}},
	}

	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			err := op.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrNotImplemented)
			assert.True(t, core.IsNotImplemented(err))
			assert.Contains(t, err.Error(), "Client."+op.name)
		})
	}

	require.True(t, c.Flush(ctx))
	for _, op := range ops {
		e := findEntry(t, rt.allLogs(), op.message)
		assert.Equal(t, LevelInfo, e.Level, op.name)
		assert.Equal(t, EventSystem, e.EventType, op.name)
	}
}

func TestNewAlertConfig_Defaults(t *testing.T) {
	a := NewAlertConfig("a-1", "errors", ComponentDatabase, "rate > 5", LevelError)
	assert.Equal(t, 300, a.CooldownSeconds)
	assert.True(t, a.Enabled)
	assert.Equal(t, LevelError, a.Severity)
}

func TestClientHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c, _ := newTestClient(t, nil)
		c.Info(context.Background(), "buffered")
		c.RecordMetric(context.Background(), "queue.depth", 3, nil)
		_, span := c.StartSpan(context.Background(), "open", ComponentSystem, EventSystem)
		defer c.EndSpan(span, StatusOK)

		h := c.Health()
		assert.Equal(t, HealthHealthy, h.Status)
		assert.Equal(t, "test-service", h.Service)
		assert.Equal(t, "test", h.Environment)
		assert.Equal(t, CircuitDisabled, h.Circuit)
		assert.Equal(t, 2, h.BufferedLogs, "the entry and the span start")
		assert.Equal(t, 1, h.BufferedMetrics)
		assert.Equal(t, 1, h.ActiveSpans)
		assert.False(t, h.Closed)
	})

	t.Run("degraded while circuit is open", func(t *testing.T) {
		c, rt := newTestClient(t, func(cfg *Config) {
			cfg.CircuitBreaker = CircuitConfig{Enabled: true, MaxFailures: 1, RecoveryTime: time.Hour}
		})
		rt.setLogError(errCollectorDown)
		c.Info(context.Background(), "lost")
		assert.False(t, c.Flush(context.Background()))

		h := c.Health()
		assert.Equal(t, CircuitOpen, h.Circuit)
		assert.Equal(t, HealthDegraded, h.Status)
		assert.Equal(t, int64(1), h.Stats.BatchesFailed)
	})

	t.Run("unhealthy after shutdown", func(t *testing.T) {
		c, _ := newTestClient(t, nil)
		require.NoError(t, c.Shutdown(context.Background()))

		h := c.Health()
		assert.True(t, h.Closed)
		assert.Equal(t, HealthUnhealthy, h.Status)
	})
}

func TestHealthHandler(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) {
		cfg.CircuitBreaker = CircuitConfig{Enabled: true, MaxFailures: 1, RecoveryTime: time.Hour}
	})
	srv := httptest.NewServer(HealthHandler(c))
	defer srv.Close()

	get := func() (int, ClientHealth) {
		t.Helper()
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var h ClientHealth
		require.NoError(t, jsonCodec.NewDecoder(resp.Body).Decode(&h))
		return resp.StatusCode, h
	}

	code, h := get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, HealthHealthy, h.Status)

	rt.setLogError(errCollectorDown)
	c.Info(context.Background(), "lost")
	c.Flush(context.Background())

	code, h = get()
	assert.Equal(t, http.StatusPartialContent, code)
	assert.Equal(t, HealthDegraded, h.Status)
	assert.Equal(t, CircuitOpen, h.Circuit)

	require.NoError(t, c.Shutdown(context.Background()))
	code, h = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, h.Closed)
}
