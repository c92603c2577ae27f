package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MonitoringMiddlewareConfig configures MonitoringMiddleware.
type MonitoringMiddlewareConfig struct {
	// ExcludedPaths are served untouched: no span, no API call entry.
	// Example: []string{"/health", "/metrics", "/ready"}
	ExcludedPaths []string

	// SpanNameFormatter names the request span. The default is
	// "HTTP {method} {path}".
	SpanNameFormatter func(operation string, r *http.Request) string

	// Component is recorded on the request entries; the default is
	// api_gateway.
	Component Component
}

// MonitoringMiddleware wraps a handler so each request runs inside a
// LogFire span and is recorded with RecordAPICall. Requests carrying
// X-Trace-ID/X-Span-ID continue the caller's trace. The handler is also
// wrapped with otelhttp, so W3C trace context is honored when the client
// mirrors into OpenTelemetry.
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/api/tools", toolsHandler)
//	handler := telemetry.MonitoringMiddleware(client, &telemetry.MonitoringMiddlewareConfig{
//	    ExcludedPaths: []string{"/health"},
//	})(mux)
func MonitoringMiddleware(c *Client, config *MonitoringMiddlewareConfig) func(http.Handler) http.Handler {
	var cfg MonitoringMiddlewareConfig
	if config != nil {
		cfg = *config
	}
	if cfg.Component == "" {
		cfg.Component = ComponentAPIGateway
	}
	if cfg.SpanNameFormatter == nil {
		cfg.SpanNameFormatter = func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}
	}

	excluded := make(map[string]bool, len(cfg.ExcludedPaths))
	for _, path := range cfg.ExcludedPaths {
		excluded[path] = true
	}

	opts := []otelhttp.Option{otelhttp.WithSpanNameFormatter(cfg.SpanNameFormatter)}
	if len(excluded) > 0 {
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !excluded[r.URL.Path]
		}))
	}

	return func(next http.Handler) http.Handler {
		monitored := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excluded[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			name := cfg.SpanNameFormatter(r.URL.Path, r)
			ctx := ContextWithRemoteTrace(r.Context(), ExtractTraceContext(r.Header))
			ctx, span := c.StartSpan(ctx, name, cfg.Component, EventRequest, WithSpanData(map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			}))

			started := time.Now()
			defer func() {
				if rec := recover(); rec != nil {
					msg := fmt.Sprint(rec)
					c.RecordAPICall(ctx, APICall{
						Name:       name,
						Method:     r.Method,
						URL:        r.URL.Path,
						StatusCode: http.StatusInternalServerError,
						DurationMS: msSince(started),
						Component:  cfg.Component,
						TraceID:    span.TraceID(),
						Error:      msg,
					})
					_ = c.EndSpan(span, StatusError,
						WithErrorMessage(msg),
						WithEndData(map[string]interface{}{"error_type": "panic"}),
					)
					panic(rec)
				}
			}()

			m := httpsnoop.CaptureMetricsFn(w, func(ww http.ResponseWriter) {
				ww.Header().Set(HeaderTraceID, span.TraceID())
				next.ServeHTTP(ww, r.WithContext(ctx))
			})

			c.RecordAPICall(ctx, APICall{
				Name:       name,
				Method:     r.Method,
				URL:        r.URL.Path,
				StatusCode: m.Code,
				DurationMS: float64(m.Duration) / float64(time.Millisecond),
				Component:  cfg.Component,
				TraceID:    span.TraceID(),
			})

			end := []EndOption{WithEndData(map[string]interface{}{
				"status_code":   m.Code,
				"bytes_written": m.Written,
			})}
			status := StatusOK
			if m.Code >= http.StatusInternalServerError {
				status = StatusError
				end = append(end, WithErrorMessage(http.StatusText(m.Code)))
			}
			_ = c.EndSpan(span, status, end...)
		})
		return otelhttp.NewHandler(monitored, c.ServiceName(), opts...)
	}
}

// NewTracedHTTPClient returns an HTTP client that forwards the current
// trace to downstream services, both as X-Trace-ID/X-Span-ID and as W3C
// traceparent/tracestate. A nil base uses http.DefaultTransport.
//
//	client := telemetry.NewTracedHTTPClient(nil)
//	req, _ := http.NewRequestWithContext(ctx, "POST", toolURL, body)
//	resp, err := client.Do(req)
func NewTracedHTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(&traceHeaderRoundTripper{next: base}),
	}
}

// NewTracedHTTPClientWithTransport is NewTracedHTTPClient with a pooled
// transport tuned for service-to-service calls when transport is nil.
func NewTracedHTTPClientWithTransport(transport *http.Transport) *http.Client {
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}
	return NewTracedHTTPClient(transport)
}

type traceHeaderRoundTripper struct {
	next http.RoundTripper
}

func (rt *traceHeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	tc := CurrentTrace(req.Context())
	if tc.IsZero() {
		return rt.next.RoundTrip(req)
	}
	r := cloneRequest(req)
	r.Header.Set(HeaderTraceID, tc.TraceID)
	if tc.SpanID != "" {
		r.Header.Set(HeaderSpanID, tc.SpanID)
	}
	return rt.next.RoundTrip(r)
}
