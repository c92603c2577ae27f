package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"

	"github.com/itsneelabh/agentcontracts/core"
)

// jsonCodec encodes wire payloads; it is drop-in compatible with encoding/json.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Transport ships batches to a collector. Implementations must be safe for
// concurrent use: logs and metrics of one batch are sent in parallel.
type Transport interface {
	SendLogs(ctx context.Context, logs []LogEntry) error
	SendMetrics(ctx context.Context, metrics []MetricSample) error
	Close() error
}

// CollectorError is returned for a non-2xx collector response.
type CollectorError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *CollectorError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("collector %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("collector %s returned %d", e.Endpoint, e.StatusCode)
}

func (e *CollectorError) Unwrap() error { return core.ErrRequestFailed }

// Retryable reports whether the status is worth retrying (5xx and 429).
func (e *CollectorError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPTransportConfig configures an HTTPTransport.
type HTTPTransportConfig struct {
	Endpoint    string
	APIKey      string
	ProjectID   string
	Timeout     time.Duration
	Compression string // "none" or "gzip"

	// Base is the underlying round tripper; nil uses a pooled http.Transport.
	Base http.RoundTripper
}

// HTTPTransport posts JSON batches to {endpoint}/logs and {endpoint}/metrics.
type HTTPTransport struct {
	endpoint  string
	projectID string
	timeout   time.Duration
	gzip      bool
	client    *http.Client
}

// NewHTTPTransport builds a transport that authenticates every request with
// a bearer token.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	base := cfg.Base
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}
	var rt http.RoundTripper = base
	if cfg.APIKey != "" {
		rt = NewBearerTokenRoundTripper(cfg.APIKey, rt)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		projectID: cfg.ProjectID,
		timeout:   timeout,
		gzip:      strings.EqualFold(cfg.Compression, "gzip"),
		client:    &http.Client{Transport: rt, Timeout: timeout},
	}
}

func (t *HTTPTransport) SendLogs(ctx context.Context, logs []LogEntry) error {
	return t.post(ctx, "/logs", logsPayload{Logs: logs})
}

func (t *HTTPTransport) SendMetrics(ctx context.Context, metrics []MetricSample) error {
	return t.post(ctx, "/metrics", metricsPayload{Metrics: metrics})
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload interface{}) error {
	url := t.endpoint + path

	body, err := t.encode(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if t.projectID != "" {
		req.Header.Set("X-LogFire-Project", t.projectID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &CollectorError{
			StatusCode: resp.StatusCode,
			Endpoint:   url,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *HTTPTransport) encode(payload interface{}) ([]byte, error) {
	raw, err := jsonCodec.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if !t.gzip {
		return raw, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// classifyTransportError maps client errors onto the core sentinels so
// retry decorators can tell timeouts and connection failures apart.
func classifyTransportError(url string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("post %s: %w: %w", url, core.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("post %s: %w: %w", url, core.ErrContextCanceled, err)
	}
	return fmt.Errorf("post %s: %w: %w", url, core.ErrConnectionFailed, err)
}

type bearerTokenRoundTripper struct {
	token string
	rt    http.RoundTripper
}

// NewBearerTokenRoundTripper returns a RoundTripper that adds the bearer
// token to requests that do not already carry an Authorization header.
func NewBearerTokenRoundTripper(token string, rt http.RoundTripper) http.RoundTripper {
	return &bearerTokenRoundTripper{token: token, rt: rt}
}

func (rt *bearerTokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" {
		req = cloneRequest(req)
		req.Header.Set("Authorization", "Bearer "+rt.token)
	}
	return rt.rt.RoundTrip(req)
}

// cloneRequest returns a shallow copy of r with a deep copy of the headers,
// since a RoundTripper must not modify the caller's request.
func cloneRequest(r *http.Request) *http.Request {
	return r.Clone(r.Context())
}

// LoggerTransport writes batch summaries to the local logger. It backs
// LocalOnly mode and never fails.
type LoggerTransport struct {
	logger *TelemetryLogger
}

func NewLoggerTransport(logger *TelemetryLogger) *LoggerTransport {
	if logger == nil {
		logger = GetLogger()
	}
	return &LoggerTransport{logger: logger}
}

func (t *LoggerTransport) SendLogs(_ context.Context, logs []LogEntry) error {
	for _, e := range logs {
		fields := map[string]interface{}{
			"entry_level": string(e.Level),
			"event_type":  string(e.EventType),
			"source":      string(e.Component),
		}
		if e.TraceID != "" {
			fields["trace_id"] = e.TraceID
		}
		for k, v := range e.Data {
			fields["data."+k] = v
		}
		t.logger.Info(e.Message, fields)
	}
	return nil
}

func (t *LoggerTransport) SendMetrics(_ context.Context, metrics []MetricSample) error {
	for _, m := range metrics {
		fields := map[string]interface{}{"metric": m.Name, "value": m.Value}
		for k, v := range m.Tags {
			fields["tag."+k] = v
		}
		t.logger.Info("metric", fields)
	}
	return nil
}

func (t *LoggerTransport) Close() error { return nil }
