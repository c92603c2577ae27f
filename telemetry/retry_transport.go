package telemetry

import (
	"context"

	"github.com/itsneelabh/agentcontracts/core"
	"github.com/itsneelabh/agentcontracts/resilience"
)

// RetryTransport retries failed sends with exponential backoff. Only errors
// that core.IsRetryable accepts are retried; a 4xx from the collector fails
// at once.
type RetryTransport struct {
	next   Transport
	config resilience.RetryConfig
}

// NewRetryTransport wraps next. A nil config uses resilience defaults.
func NewRetryTransport(next Transport, config *resilience.RetryConfig) *RetryTransport {
	if config == nil {
		config = resilience.DefaultRetryConfig()
	}
	cfg := *config
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = core.IsRetryable
	}
	return &RetryTransport{next: next, config: cfg}
}

func (t *RetryTransport) SendLogs(ctx context.Context, logs []LogEntry) error {
	return resilience.Retry(ctx, &t.config, func() error {
		return t.next.SendLogs(ctx, logs)
	})
}

func (t *RetryTransport) SendMetrics(ctx context.Context, metrics []MetricSample) error {
	return resilience.Retry(ctx, &t.config, func() error {
		return t.next.SendMetrics(ctx, metrics)
	})
}

func (t *RetryTransport) Close() error {
	return t.next.Close()
}
