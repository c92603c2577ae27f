package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarning  LogLevel = "warning"
	LevelError    LogLevel = "error"
	LevelCritical LogLevel = "critical"
)

var levelRanks = map[LogLevel]int{
	LevelDebug:    0,
	LevelInfo:     1,
	LevelWarning:  2,
	LevelError:    3,
	LevelCritical: 4,
}

// Rank orders levels from debug (0) to critical (4). Unknown levels rank as info.
func (l LogLevel) Rank() int {
	if r, ok := levelRanks[l]; ok {
		return r
	}
	return levelRanks[LevelInfo]
}

// Valid reports whether l is one of the five known levels.
func (l LogLevel) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// ParseLogLevel accepts any casing and the "warn" alias.
func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if l == "warn" {
		l = LevelWarning
	}
	if !l.Valid() {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Component identifies the platform service that produced an event.
type Component string

const (
	ComponentAgentCore      Component = "agent_core"
	ComponentModelService   Component = "model_service"
	ComponentToolService    Component = "tool_service"
	ComponentAPIGateway     Component = "api_gateway"
	ComponentInfrastructure Component = "infrastructure"
	ComponentDatabase       Component = "database"
	ComponentMessaging      Component = "messaging"
	ComponentSystem         Component = "system"
)

// EventType classifies what kind of event an entry describes.
type EventType string

const (
	EventRequest        EventType = "request"
	EventResponse       EventType = "response"
	EventException      EventType = "exception"
	EventMetric         EventType = "metric"
	EventLifecycle      EventType = "lifecycle"
	EventValidation     EventType = "validation"
	EventAuthentication EventType = "authentication"
	EventSystem         EventType = "system"
)

// LogEntry is one structured event as sent to the collector's /logs endpoint.
// Entries are built once by the client and never modified afterwards.
type LogEntry struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       LogLevel               `json:"level"`
	Component   Component              `json:"component"`
	EventType   EventType              `json:"event_type"`
	Message     string                 `json:"message"`
	Service     string                 `json:"service"`
	Environment string                 `json:"environment"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	TraceID     string                 `json:"trace_id,omitempty"`
	SpanID      string                 `json:"span_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// MetricSample is one point as sent to the collector's /metrics endpoint.
type MetricSample struct {
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// logsPayload and metricsPayload are the two wire envelopes.
type logsPayload struct {
	Logs []LogEntry `json:"logs"`
}

type metricsPayload struct {
	Metrics []MetricSample `json:"metrics"`
}
