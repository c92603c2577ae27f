package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/itsneelabh/agentcontracts/core"
)

// RecordHealthStatus logs a service's self-reported health and records its
// resource usage as cpu_usage_percent, memory_usage_percent and
// memory_rss_bytes tagged with service_id.
func (c *Client) RecordHealthStatus(ctx context.Context, status ServiceHealthStatus) {
	level := LevelInfo
	switch status.Status {
	case HealthDegraded:
		level = LevelWarning
	case HealthUnhealthy:
		level = LevelError
	}

	data := map[string]interface{}{
		"service_id":     status.ServiceID,
		"status":         string(status.Status),
		"message":        status.Message,
		"version":        status.Version,
		"uptime_seconds": status.UptimeSeconds,
	}
	if len(status.Checks) > 0 {
		checks := make(map[string]interface{}, len(status.Checks))
		for k, v := range status.Checks {
			checks[k] = v
		}
		data["checks"] = checks
	}
	if ru := status.ResourceUsage; ru != nil {
		data["resource_usage"] = map[string]interface{}{
			"cpu_percent":    ru.CPUPercent,
			"memory_percent": ru.MemoryPercent,
			"memory_rss":     ru.MemoryRSS,
		}
	}

	c.Log(ctx, level, fmt.Sprintf("Health status: %s - %s", status.Status, status.Message),
		WithComponent(ComponentSystem),
		WithEventType(EventSystem),
		WithData(data),
	)

	if ru := status.ResourceUsage; ru != nil {
		tags := map[string]string{"service_id": status.ServiceID}
		c.recordBuiltin(ctx, "cpu_usage_percent", ru.CPUPercent, tags)
		c.recordBuiltin(ctx, "memory_usage_percent", ru.MemoryPercent, tags)
		c.recordBuiltin(ctx, "memory_rss_bytes", float64(ru.MemoryRSS), tags)
	}
}

// The collector owns health history and alert state. The operations below
// log the request so it is visible in the event stream and then report
// core.ErrNotImplemented.

// GetHealthStatus would query the collector for a service's last reported health.
func (c *Client) GetHealthStatus(ctx context.Context, serviceID string) (ServiceHealthStatus, error) {
	c.passThrough(ctx, "Health status requested: "+serviceID, map[string]interface{}{
		"service_id": serviceID,
	})
	return ServiceHealthStatus{}, notImplemented("Client.GetHealthStatus", serviceID)
}

func (c *Client) CreateAlert(ctx context.Context, alert AlertConfig) (AlertConfig, error) {
	c.passThrough(ctx, "Alert created: "+alert.Name, map[string]interface{}{
		"alert_id":  alert.AlertID,
		"name":      alert.Name,
		"component": string(alert.Component),
		"condition": alert.Condition,
		"severity":  string(alert.Severity),
		"enabled":   alert.Enabled,
	})
	return AlertConfig{}, notImplemented("Client.CreateAlert", alert.AlertID)
}

func (c *Client) UpdateAlert(ctx context.Context, alert AlertConfig) (AlertConfig, error) {
	c.passThrough(ctx, "Alert updated: "+alert.AlertID, map[string]interface{}{
		"alert_id":  alert.AlertID,
		"name":      alert.Name,
		"condition": alert.Condition,
		"severity":  string(alert.Severity),
		"enabled":   alert.Enabled,
	})
	return AlertConfig{}, notImplemented("Client.UpdateAlert", alert.AlertID)
}

func (c *Client) DeleteAlert(ctx context.Context, alertID string) error {
	c.passThrough(ctx, "Alert deleted: "+alertID, map[string]interface{}{
		"alert_id": alertID,
	})
	return notImplemented("Client.DeleteAlert", alertID)
}

// GetAlerts would list alert rules, optionally restricted to component.
func (c *Client) GetAlerts(ctx context.Context, component Component) ([]AlertConfig, error) {
	c.passThrough(ctx, "Alerts requested", map[string]interface{}{
		"component": string(component),
	})
	return nil, notImplemented("Client.GetAlerts", string(component))
}

// GetAlertInstances would list firings of alertID, optionally by status.
func (c *Client) GetAlertInstances(ctx context.Context, alertID string, status AlertStatus) ([]AlertInstance, error) {
	c.passThrough(ctx, "Alert instances requested: "+alertID, map[string]interface{}{
		"alert_id": alertID,
		"status":   string(status),
	})
	return nil, notImplemented("Client.GetAlertInstances", alertID)
}

func (c *Client) AcknowledgeAlert(ctx context.Context, instanceID, acknowledgedBy string) (AlertInstance, error) {
	c.passThrough(ctx, "Alert acknowledged: "+instanceID, map[string]interface{}{
		"instance_id":     instanceID,
		"acknowledged_by": acknowledgedBy,
	})
	return AlertInstance{}, notImplemented("Client.AcknowledgeAlert", instanceID)
}

func (c *Client) ResolveAlert(ctx context.Context, instanceID, resolutionMessage string) (AlertInstance, error) {
	c.passThrough(ctx, "Alert resolved: "+instanceID, map[string]interface{}{
		"instance_id":        instanceID,
		"resolution_message": resolutionMessage,
	})
	return AlertInstance{}, notImplemented("Client.ResolveAlert", instanceID)
}

func (c *Client) passThrough(ctx context.Context, message string, data map[string]interface{}) {
	c.Info(ctx, message, WithComponent(ComponentSystem), WithEventType(EventSystem), WithData(data))
}

func notImplemented(op, id string) error {
	return &core.ContractError{
		Op:      op,
		Kind:    "remote",
		ID:      id,
		Message: "handled by the collector",
		Err:     core.ErrNotImplemented,
	}
}

// ClientHealth is the client's own health: buffer depth, delivery counters
// and the collector circuit.
type ClientHealth struct {
	Status          HealthState  `json:"status"`
	Service         string       `json:"service"`
	Environment     string       `json:"environment"`
	Circuit         CircuitState `json:"circuit_state"`
	BufferedLogs    int          `json:"buffered_logs"`
	BufferedMetrics int          `json:"buffered_metrics"`
	ActiveSpans     int          `json:"active_spans"`
	Cardinality     int          `json:"cardinality"`
	Uptime          string       `json:"uptime"`
	UptimeSeconds   float64      `json:"uptime_seconds"`
	Closed          bool         `json:"closed"`
	Stats           Stats        `json:"stats"`
}

// Health reports unhealthy after Shutdown, degraded while the collector
// circuit is not closed or when more batches failed than were sent, and
// healthy otherwise.
func (c *Client) Health() ClientHealth {
	c.mu.RLock()
	service, environment := c.cfg.ServiceName, c.cfg.Environment
	cardinality := c.cardinality
	c.mu.RUnlock()

	logs, metrics := c.buf.pending()
	uptime := time.Since(c.startTime)
	h := ClientHealth{
		Service:         service,
		Environment:     environment,
		Circuit:         c.currentBreaker().State(),
		BufferedLogs:    logs,
		BufferedMetrics: metrics,
		ActiveSpans:     c.spans.len(),
		Cardinality:     cardinality.Cardinality(),
		Uptime:          uptime.Round(time.Second).String(),
		UptimeSeconds:   uptime.Seconds(),
		Closed:          c.closed.Load(),
		Stats:           c.stats.snapshot(),
	}

	switch {
	case h.Closed:
		h.Status = HealthUnhealthy
	case h.Circuit == CircuitOpen || h.Circuit == CircuitHalfOpen:
		h.Status = HealthDegraded
	case h.Stats.BatchesFailed > h.Stats.BatchesSent:
		h.Status = HealthDegraded
	default:
		h.Status = HealthHealthy
	}
	return h
}

// HealthHandler serves Client.Health as JSON: 200 when healthy, 206 when
// degraded and 503 when unhealthy.
func HealthHandler(c *Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := c.Health()
		w.Header().Set("Content-Type", "application/json")

		switch health.Status {
		case HealthUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		case HealthDegraded:
			w.WriteHeader(http.StatusPartialContent)
		default:
			w.WriteHeader(http.StatusOK)
		}
		_ = jsonCodec.NewEncoder(w).Encode(health)
	})
}
