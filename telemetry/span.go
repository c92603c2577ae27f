package telemetry

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// SpanStatus is the terminal state of a span. A span starts unset and moves
// to ok or error exactly once.
type SpanStatus string

const (
	StatusUnset SpanStatus = "unset"
	StatusOK    SpanStatus = "ok"
	StatusError SpanStatus = "error"
)

// Span is a timed unit of work within a trace. Spans are created by
// Client.StartSpan and closed by Client.EndSpan; all accessors are safe for
// concurrent use.
type Span struct {
	traceID       string
	spanID        string
	parentSpanID  string
	serviceName   string
	operationName string
	component     Component
	eventType     EventType
	startTime     time.Time

	mu           sync.Mutex
	endTime      time.Time
	durationMS   float64
	status       SpanStatus
	errorMessage string
	attributes   map[string]interface{}
	tags         []string

	otelSpan trace.Span
	logger   *TelemetryLogger
}

// SpanData is an immutable snapshot of a span, suitable for JSON.
type SpanData struct {
	TraceID       string                 `json:"trace_id"`
	SpanID        string                 `json:"span_id"`
	ParentSpanID  string                 `json:"parent_span_id,omitempty"`
	ServiceName   string                 `json:"service_name"`
	OperationName string                 `json:"operation_name"`
	Component     Component              `json:"component"`
	EventType     EventType              `json:"event_type"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
	DurationMS    *float64               `json:"duration_ms,omitempty"`
	Status        SpanStatus             `json:"status"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
}

func newSpan(traceID, parentSpanID, service, operation string, component Component, eventType EventType) *Span {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return &Span{
		traceID:       traceID,
		spanID:        uuid.NewString(),
		parentSpanID:  parentSpanID,
		serviceName:   service,
		operationName: operation,
		component:     component,
		eventType:     eventType,
		startTime:     time.Now().UTC(),
		status:        StatusUnset,
		attributes:    make(map[string]interface{}),
	}
}

func (s *Span) TraceID() string { return s.traceID }
func (s *Span) SpanID() string { return s.spanID }
func (s *Span) ParentSpanID() string { return s.parentSpanID }
func (s *Span) ServiceName() string { return s.serviceName }
func (s *Span) OperationName() string { return s.operationName }
func (s *Span) Component() Component { return s.component }
func (s *Span) EventType() EventType { return s.eventType }
func (s *Span) StartTime() time.Time { return s.startTime }

// Status returns the current status; unset while the span is open.
func (s *Span) Status() SpanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ended reports whether EndSpan has closed the span.
func (s *Span) Ended() bool {
	return s.Status() != StatusUnset
}

// EndTime returns the end time and whether the span has ended.
func (s *Span) EndTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime, s.status != StatusUnset
}

// DurationMS returns the duration in milliseconds and whether it is known.
func (s *Span) DurationMS() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationMS, s.status != StatusUnset
}

func (s *Span) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMessage
}

// Attributes returns a copy of the accumulated attributes.
func (s *Span) Attributes() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.attributes)
}

// Tags returns a copy of the span tags.
func (s *Span) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tags...)
}

// SetAttribute records a key/value on an open span. On a closed span it is
// a no-op that logs a warning and returns false.
func (s *Span) SetAttribute(key string, value interface{}) bool {
	s.mu.Lock()
	if s.status != StatusUnset {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Warn("Ignoring attribute on ended span", map[string]interface{}{
				"span_id":   s.spanID,
				"operation": s.operationName,
				"attribute": key,
			})
		}
		return false
	}
	s.attributes[key] = value
	otelSpan := s.otelSpan
	s.mu.Unlock()

	setOTelAttribute(otelSpan, key, value)
	return true
}

// SetAttributes is SetAttribute for several keys.
func (s *Span) SetAttributes(attrs map[string]interface{}) bool {
	ok := true
	for k, v := range attrs {
		ok = s.SetAttribute(k, v) && ok
	}
	return ok
}

// finish moves the span to its terminal state. It returns false when the
// span had already been finished.
func (s *Span) finish(status SpanStatus, errorMessage string, data map[string]interface{}, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusUnset {
		return false
	}
	maps.Copy(s.attributes, data)
	s.endTime = now
	s.durationMS = float64(now.Sub(s.startTime)) / float64(time.Millisecond)
	if s.durationMS < 0 {
		s.durationMS = 0
	}
	s.status = status
	s.errorMessage = errorMessage
	return true
}

// Snapshot copies the span's current state.
func (s *Span) Snapshot() SpanData {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := SpanData{
		TraceID:       s.traceID,
		SpanID:        s.spanID,
		ParentSpanID:  s.parentSpanID,
		ServiceName:   s.serviceName,
		OperationName: s.operationName,
		Component:     s.component,
		EventType:     s.eventType,
		StartTime:     s.startTime,
		Status:        s.status,
		ErrorMessage:  s.errorMessage,
		Attributes:    maps.Clone(s.attributes),
		Tags:          append([]string(nil), s.tags...),
	}
	if s.status != StatusUnset {
		end, dur := s.endTime, s.durationMS
		d.EndTime = &end
		d.DurationMS = &dur
	}
	return d
}

// spanRegistry tracks open spans by id.
type spanRegistry struct {
	mu     sync.Mutex
	active map[string]*Span
}

func newSpanRegistry() *spanRegistry {
	return &spanRegistry{active: make(map[string]*Span)}
}

func (r *spanRegistry) add(s *Span) {
	r.mu.Lock()
	r.active[s.spanID] = s
	r.mu.Unlock()
}

func (r *spanRegistry) contains(s *Span) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.active[s.spanID]
	return ok && cur == s
}

// remove deletes the span and reports whether this call removed it.
func (r *spanRegistry) remove(s *Span) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[s.spanID]; !ok || cur != s {
		return false
	}
	delete(r.active, s.spanID)
	return true
}

func (r *spanRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
