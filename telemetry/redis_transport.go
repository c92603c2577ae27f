package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/agentcontracts/core"
)

// RedisTransport pushes batches onto two Redis lists, "<key>:logs" and
// "<key>:metrics", for a collector sidecar to drain. Each list element is
// the same JSON envelope the HTTP collector accepts.
type RedisTransport struct {
	client  *redis.Client
	logsKey string
	metKey  string
	timeout time.Duration
}

// NewRedisTransport connects to addr and verifies the connection.
func NewRedisTransport(ctx context.Context, addr, key string, timeout time.Duration) (*RedisTransport, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required: %w", core.ErrInvalidConfiguration)
	}
	if key == "" {
		key = "logfire"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w: %w", addr, core.ErrConnectionFailed, err)
	}

	return &RedisTransport{
		client:  client,
		logsKey: key + ":logs",
		metKey:  key + ":metrics",
		timeout: timeout,
	}, nil
}

func (t *RedisTransport) SendLogs(ctx context.Context, logs []LogEntry) error {
	return t.push(ctx, t.logsKey, logsPayload{Logs: logs})
}

func (t *RedisTransport) SendMetrics(ctx context.Context, metrics []MetricSample) error {
	return t.push(ctx, t.metKey, metricsPayload{Metrics: metrics})
}

func (t *RedisTransport) push(ctx context.Context, key string, payload interface{}) error {
	body, err := jsonCodec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.client.RPush(ctx, key, body).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w: %w", key, core.ErrConnectionFailed, err)
	}
	return nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
