package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Headers that carry LogFire trace identity between services.
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// TraceContext identifies the current position in a trace.
type TraceContext struct {
	TraceID      string `json:"trace_id,omitempty"`
	SpanID       string `json:"span_id,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
}

// IsZero reports whether no trace is active.
func (tc TraceContext) IsZero() bool {
	return tc.TraceID == ""
}

// CurrentTrace returns the ids of the span carried by ctx. Without a
// LogFire span it falls back to the OpenTelemetry span context, so log
// lines written inside otelhttp handlers still correlate.
func CurrentTrace(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}
	if s := SpanFromContext(ctx); s != nil {
		return TraceContext{TraceID: s.traceID, SpanID: s.spanID, ParentSpanID: s.parentSpanID}
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceContext{}
	}
	return TraceContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()}
}

// InjectHeaders writes the current trace identity into h, both as
// X-Trace-ID/X-Span-ID and through the global OpenTelemetry propagator.
func InjectHeaders(ctx context.Context, h http.Header) {
	if tc := CurrentTrace(ctx); !tc.IsZero() {
		h.Set(HeaderTraceID, tc.TraceID)
		if tc.SpanID != "" {
			h.Set(HeaderSpanID, tc.SpanID)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractTraceContext reads the identity written by InjectHeaders. SpanID
// is the caller's span, which becomes the parent of spans started here.
func ExtractTraceContext(h http.Header) TraceContext {
	return TraceContext{
		TraceID: h.Get(HeaderTraceID),
		SpanID:  h.Get(HeaderSpanID),
	}
}

// ContextWithRemoteTrace makes a span from another process the current
// span, so StartSpan continues its trace. The placeholder is never
// registered with a client; ending it returns ErrSpanNotFound.
func ContextWithRemoteTrace(ctx context.Context, tc TraceContext) context.Context {
	if tc.IsZero() {
		return ctx
	}
	return ContextWithSpan(ctx, &Span{
		traceID:      tc.TraceID,
		spanID:       tc.SpanID,
		parentSpanID: tc.ParentSpanID,
		status:       StatusUnset,
		attributes:   map[string]interface{}{},
	})
}
