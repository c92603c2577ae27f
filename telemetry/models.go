package telemetry

import (
	"slices"
	"time"
)

// MetricType is the aggregation kind a collector should apply to a metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
	MetricSummary   MetricType = "summary"
)

// MetricDescriptor describes a metric name known to the client.
type MetricDescriptor struct {
	Name        string     `json:"name" yaml:"name" validate:"required"`
	Description string     `json:"description" yaml:"description"`
	Unit        string     `json:"unit" yaml:"unit"`
	Type        MetricType `json:"metric_type" yaml:"metric_type" validate:"oneof=counter gauge histogram summary"`
}

// ResourceUsage is a point-in-time view of a process's resource consumption.
type ResourceUsage struct {
	CPUPercent          float64   `json:"cpu_percent"`
	MemoryPercent       float64   `json:"memory_percent"`
	MemoryRSS           uint64    `json:"memory_rss"`
	DiskIORead          uint64    `json:"disk_io_read,omitempty"`
	DiskIOWrite         uint64    `json:"disk_io_write,omitempty"`
	NetworkRecv         uint64    `json:"network_recv,omitempty"`
	NetworkSent         uint64    `json:"network_sent,omitempty"`
	OpenFileDescriptors int32     `json:"open_file_descriptors,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// HealthState is the coarse health of a service.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// ServiceHealthStatus is a service's self-reported health.
type ServiceHealthStatus struct {
	ServiceID     string          `json:"service_id"`
	ServiceName   string          `json:"service_name"`
	Status        HealthState     `json:"status"`
	Message       string          `json:"message,omitempty"`
	Version       string          `json:"version,omitempty"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	ResourceUsage *ResourceUsage  `json:"resource_usage,omitempty"`
	Checks        map[string]bool `json:"checks,omitempty"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// AlertSeverity mirrors log levels for alerts.
type AlertSeverity = LogLevel

// AlertConfig defines an alert rule evaluated by the remote collector.
type AlertConfig struct {
	AlertID              string            `json:"alert_id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description,omitempty"`
	Component            Component         `json:"component"`
	Condition            string            `json:"condition"`
	Severity             AlertSeverity     `json:"severity"`
	NotificationChannels []string          `json:"notification_channels,omitempty"`
	CooldownSeconds      int               `json:"cooldown_seconds"`
	Enabled              bool              `json:"enabled"`
	Tags                 map[string]string `json:"tags,omitempty"`
}

// NewAlertConfig returns an AlertConfig with the collector's defaults applied.
func NewAlertConfig(id, name string, component Component, condition string, severity AlertSeverity) AlertConfig {
	return AlertConfig{
		AlertID:         id,
		Name:            name,
		Component:       component,
		Condition:       condition,
		Severity:        severity,
		CooldownSeconds: 300,
		Enabled:         true,
	}
}

// AlertStatus is the lifecycle state of a fired alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// AlertInstance is one firing of an alert rule.
type AlertInstance struct {
	AlertID           string                 `json:"alert_id"`
	InstanceID        string                 `json:"instance_id"`
	TriggeredAt       time.Time              `json:"triggered_at"`
	ResolvedAt        *time.Time             `json:"resolved_at,omitempty"`
	Status            AlertStatus            `json:"status"`
	Value             float64                `json:"value"`
	Message           string                 `json:"message"`
	Component         Component              `json:"component"`
	Severity          AlertSeverity          `json:"severity"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	AcknowledgedBy    string                 `json:"acknowledged_by,omitempty"`
	AcknowledgedAt    *time.Time             `json:"acknowledged_at,omitempty"`
	ResolutionMessage string                 `json:"resolution_message,omitempty"`
}

// LogConfig controls which entries a client accepts before sampling.
// Empty include lists accept everything; exclude lists always win.
type LogConfig struct {
	ServiceName       string            `json:"service_name" yaml:"service_name"`
	Environment       string            `json:"environment" yaml:"environment"`
	MinLevel          LogLevel          `json:"min_level" yaml:"min_level"`
	IncludeComponents []Component       `json:"include_components,omitempty" yaml:"include_components,omitempty"`
	ExcludeComponents []Component       `json:"exclude_components,omitempty" yaml:"exclude_components,omitempty"`
	IncludeEventTypes []EventType       `json:"include_event_types,omitempty" yaml:"include_event_types,omitempty"`
	ExcludeEventTypes []EventType       `json:"exclude_event_types,omitempty" yaml:"exclude_event_types,omitempty"`
	AdditionalFields  map[string]string `json:"additional_fields,omitempty" yaml:"additional_fields,omitempty"`
}

// accepts reports whether an entry with the given component and event type
// passes the include/exclude lists.
func (lc LogConfig) accepts(component Component, eventType EventType) bool {
	if slices.Contains(lc.ExcludeComponents, component) || slices.Contains(lc.ExcludeEventTypes, eventType) {
		return false
	}
	if len(lc.IncludeComponents) > 0 && !slices.Contains(lc.IncludeComponents, component) {
		return false
	}
	if len(lc.IncludeEventTypes) > 0 && !slices.Contains(lc.IncludeEventTypes, eventType) {
		return false
	}
	return true
}

// APICall describes an outbound or inbound API call for RecordAPICall.
type APICall struct {
	Name       string
	Method     string
	URL        string
	StatusCode int
	DurationMS float64
	Component  Component
	Request    map[string]interface{}
	Response   map[string]interface{}
	Error      string
	TraceID    string
}

// Success reports whether the call finished with a 2xx code and no error.
func (a APICall) Success() bool {
	return a.Error == "" && a.StatusCode >= 200 && a.StatusCode < 300
}

// ModelValidation is the outcome of validating a model's output or config.
type ModelValidation struct {
	ModelID   string
	Valid     bool
	Errors    []string
	Warnings  []string
	Component Component
	Details   map[string]interface{}
}
