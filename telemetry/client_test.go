package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcontracts/core"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing service name", func(c *Config) { c.ServiceName = "" }, core.ErrMissingConfiguration},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, core.ErrInvalidConfiguration},
		{"sample rate above one", func(c *Config) { c.SampleRate = 1.5 }, core.ErrInvalidConfiguration},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, core.ErrInvalidConfiguration},
		{"unknown level", func(c *Config) { c.MinLevel = "verbose" }, core.ErrInvalidConfiguration},
		{"bad drop pattern", func(c *Config) { c.DropMetrics = []string{"[unclosed"} }, core.ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			c, err := New(cfg, WithTransport(&recordingTransport{}), WithLogger(quietLogger()))
			require.Error(t, err)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, core.IsConfigurationError(err))
		})
	}
}

func TestNew_RequiresAPIKeyForNetworkTransport(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""

	_, err := New(cfg, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)

	cfg.LocalOnly = true
	c, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestClient_BatchSizeTriggersOneFlush(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) { cfg.BatchSize = 3 })
	ctx := context.Background()

	c.Info(ctx, "a")
	c.Info(ctx, "b")
	assert.Empty(t, rt.logBatches(), "no send before the batch is full")

	c.Info(ctx, "c")
	logs, metrics := c.buf.pending()
	assert.Zero(t, logs, "buffer is swapped out when full")
	assert.Zero(t, metrics)

	require.Eventually(t, func() bool { return len(rt.logBatches()) == 1 }, time.Second, 5*time.Millisecond)
	batches := rt.logBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"a", "b", "c"}, messages(batches[0]))
	assert.Empty(t, rt.metricBatches(), "an empty metric stream is not sent")
}

func TestClient_CriticalFlushesSynchronously(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) { cfg.BatchSize = 100 })
	ctx := context.Background()

	c.Info(ctx, "before")
	c.Critical(ctx, "disk full", WithField("mount", "/var"))

	// No Eventually: the send must have happened before Critical returned.
	batches := rt.logBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"before", "disk full"}, messages(batches[0]))
	assert.Equal(t, LevelCritical, batches[0][1].Level)
}

func TestClient_CriticalBypassesSampling(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) {
		cfg.SampleRate = 0
		cfg.MinLevel = LevelCritical
	})
	ctx := context.Background()

	c.Error(ctx, "dropped")
	c.Critical(ctx, "kept")

	assert.Equal(t, []string{"kept"}, messages(rt.allLogs()))
	assert.Equal(t, int64(1), c.Stats().LogsSampledOut)
}

func TestClient_FlushEmptyMakesNoCall(t *testing.T) {
	c, rt := newTestClient(t, nil)

	assert.True(t, c.Flush(context.Background()))
	assert.Empty(t, rt.logBatches())
	assert.Empty(t, rt.metricBatches())
	assert.Zero(t, c.Stats().BatchesSent)
}

func TestClient_FlushReportsSendFailure(t *testing.T) {
	c, rt := newTestClient(t, nil)
	rt.setLogError(fmt.Errorf("post: %w", core.ErrConnectionFailed))
	ctx := context.Background()

	c.Info(ctx, "lost")
	assert.False(t, c.Flush(ctx))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.BatchesFailed)

	// Failed data is dropped, not re-queued.
	rt.setLogError(nil)
	assert.True(t, c.Flush(ctx))
	assert.Len(t, rt.logBatches(), 1)
}

func TestClient_LogAndMetricStreamsFailIndependently(t *testing.T) {
	c, rt := newTestClient(t, nil)
	rt.setLogError(errCollectorDown)
	ctx := context.Background()

	c.Info(ctx, "entry")
	c.RecordMetric(ctx, "queue.depth", 4, nil)

	assert.False(t, c.Flush(ctx))
	require.Len(t, rt.metricBatches(), 1)
	assert.Equal(t, "queue.depth", rt.metricBatches()[0][0].Name)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.BatchesSent)
	assert.Equal(t, int64(1), stats.BatchesFailed)
}

func TestClient_EntryFields(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) {
		cfg.Tags = map[string]string{"team": "core"}
	})
	ctx := WithBaggage(context.Background(), "request_id", "r-1")

	c.Warning(ctx, "slow upstream",
		WithComponent(ComponentToolService),
		WithEventType(EventResponse),
		WithData(map[string]interface{}{"latency_ms": 812, "api_key": "sk-live"}),
		WithEntryTags("upstream:search"),
	)
	require.True(t, c.Flush(ctx))

	e := findEntry(t, rt.allLogs(), "slow upstream")
	assert.Equal(t, LevelWarning, e.Level)
	assert.Equal(t, ComponentToolService, e.Component)
	assert.Equal(t, EventResponse, e.EventType)
	assert.Equal(t, "test-service", e.Service)
	assert.Equal(t, "test", e.Environment)
	assert.Equal(t, 812, e.Data["latency_ms"])
	assert.Equal(t, RedactedValue, e.Data["api_key"])
	assert.Equal(t, []string{"upstream:search", "team:core", "request_id:r-1"}, e.Tags)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestClient_DataIsNotAliased(t *testing.T) {
	c, rt := newTestClient(t, nil)
	data := map[string]interface{}{"step": 1}

	c.Info(context.Background(), "step", WithData(data))
	data["step"] = 2
	require.True(t, c.Flush(context.Background()))

	assert.Equal(t, 1, findEntry(t, rt.allLogs(), "step").Data["step"])
}

func TestClient_MinLevelFilters(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) { cfg.MinLevel = LevelWarning })
	ctx := context.Background()

	c.Debug(ctx, "debug")
	c.Info(ctx, "info")
	c.Warning(ctx, "warning")
	c.Error(ctx, "error")
	require.True(t, c.Flush(ctx))

	assert.Equal(t, []string{"warning", "error"}, messages(rt.allLogs()))
}

func TestClient_UpdateLogConfig(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	updated, err := c.UpdateLogConfig(LogConfig{
		MinLevel:          "WARN",
		ExcludeComponents: []Component{ComponentDatabase},
		AdditionalFields:  map[string]string{"region": "eu-west-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, LevelWarning, updated.MinLevel)
	assert.Equal(t, "test-service", updated.ServiceName)
	assert.Equal(t, LevelWarning, c.GetLogConfig().MinLevel)
	assert.Equal(t, LevelWarning, c.Config().MinLevel)

	c.Error(ctx, "db error", WithComponent(ComponentDatabase))
	c.Error(ctx, "tool error", WithComponent(ComponentToolService))
	c.Info(ctx, "below threshold")
	require.True(t, c.Flush(ctx))

	entries := rt.allLogs()
	assert.Equal(t, []string{"tool error"}, messages(entries))
	assert.Equal(t, "eu-west-1", entries[0].Data["region"])
	assert.Equal(t, int64(1), c.Stats().LogsFiltered)

	_, err = c.UpdateLogConfig(LogConfig{MinLevel: "loud"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestClient_CriticalBypassesLogConfigFilters(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	_, err := c.UpdateLogConfig(LogConfig{
		MinLevel:          "WARN",
		ExcludeComponents: []Component{ComponentDatabase},
	})
	require.NoError(t, err)

	c.Error(ctx, "db error", WithComponent(ComponentDatabase))
	c.Critical(ctx, "db down", WithComponent(ComponentDatabase))

	assert.Equal(t, []string{"db down"}, messages(rt.allLogs()))
	assert.Equal(t, int64(1), c.Stats().LogsFiltered)
}

func TestSpan_CallerDataCannotOverrideIdentifiers(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	_, span := c.StartSpan(ctx, "op", ComponentAgentCore, EventRequest, WithSpanData(map[string]interface{}{
		"span_id":  "forged",
		"trace_id": "forged",
		"step":     1,
	}))
	require.NoError(t, c.EndSpan(span, StatusOK, WithEndData(map[string]interface{}{
		"status":      "error",
		"duration_ms": -1,
		"span_id":     "forged",
	})))
	require.True(t, c.Flush(ctx))

	entries := rt.allLogs()
	start := findEntry(t, entries, "Start span: op")
	assert.Equal(t, span.SpanID(), start.Data["span_id"])
	assert.Equal(t, span.TraceID(), start.Data["trace_id"])
	assert.Equal(t, 1, start.Data["step"])

	end := findEntry(t, entries, "End span: op")
	assert.Equal(t, span.SpanID(), end.Data["span_id"])
	assert.Equal(t, "ok", end.Data["status"])
	assert.GreaterOrEqual(t, end.Data["duration_ms"].(float64), 0.0)
}

func TestClient_GetLogConfigReturnsCopy(t *testing.T) {
	c, _ := newTestClient(t, nil)
	_, err := c.UpdateLogConfig(LogConfig{IncludeComponents: []Component{ComponentAgentCore}})
	require.NoError(t, err)

	lc := c.GetLogConfig()
	lc.IncludeComponents[0] = ComponentDatabase

	assert.Equal(t, ComponentAgentCore, c.GetLogConfig().IncludeComponents[0])
}

func TestClient_ConfigureKeepsBufferedEntries(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	c.Info(ctx, "before")
	require.NoError(t, c.Configure("renamed-service", "staging", WithBatchSize(50), WithTags(map[string]string{"v": "2"})))
	c.Info(ctx, "after")
	require.True(t, c.Flush(ctx))

	entries := rt.allLogs()
	assert.Equal(t, []string{"before", "after"}, messages(entries))
	assert.Equal(t, "test-service", entries[0].Service)
	assert.Equal(t, "renamed-service", entries[1].Service)
	assert.Equal(t, "staging", entries[1].Environment)
	assert.Contains(t, entries[1].Tags, "v:2")

	assert.Equal(t, "renamed-service", c.ServiceName())
	assert.Equal(t, "staging", c.Environment())
	assert.Equal(t, 50, c.Config().BatchSize)
	assert.Zero(t, rt.closeCount(), "an injected transport is never replaced")
}

func TestClient_ConfigureInvalidLeavesConfigUnchanged(t *testing.T) {
	c, _ := newTestClient(t, nil)
	before := c.Config()

	err := c.Configure("", "prod")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)

	err = c.Configure("svc", "prod", WithSampleRate(2))
	require.Error(t, err)

	assert.Equal(t, before, c.Config())
}

func TestClient_ConfigureRebuildsOwnedTransport(t *testing.T) {
	cfg := testConfig()
	cfg.LocalOnly = true
	c, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	first := c.currentTransport()
	require.IsType(t, &LoggerTransport{}, first)

	require.NoError(t, c.Configure("test-service", "test", WithMinLevel("error")))
	assert.Same(t, first, c.currentTransport(), "unchanged transport settings keep the transport")

	require.NoError(t, c.Configure("test-service", "test", WithLocalOnly(false), WithAPIKey("k"), WithRetryAttempts(2)))
	assert.IsType(t, &RetryTransport{}, c.currentTransport())
}

func TestClient_ShutdownIsIdempotent(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	c.Info(ctx, "last words")
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx))

	assert.Equal(t, []string{"last words"}, messages(rt.allLogs()))
	assert.Equal(t, 1, rt.closeCount())

	c.Info(ctx, "ignored")
	c.RecordMetric(ctx, "ignored", 1, nil)
	assert.False(t, c.Flush(ctx))
	assert.Equal(t, int64(2), c.Stats().CallsAfterShutdown)

	err := c.Configure("svc", "env")
	assert.ErrorIs(t, err, core.ErrClientClosed)
	assert.True(t, core.IsStateError(err))
}

func TestClient_TimerFlushes(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) { cfg.FlushInterval = 20 * time.Millisecond })

	c.Info(context.Background(), "tick")

	require.Eventually(t, func() bool { return len(rt.allLogs()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_ConcurrentLogging(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) {
		cfg.BatchSize = 7
		cfg.QueueSize = 64
	})
	ctx := context.Background()

	const workers, perWorker = 20, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Info(ctx, fmt.Sprintf("w%d-%d", w, i))
				c.RecordMetric(ctx, "work.items", float64(i), map[string]string{"worker": fmt.Sprint(w)})
			}
		}(w)
	}
	wg.Wait()
	require.True(t, c.Flush(ctx))

	assert.Len(t, rt.allLogs(), workers*perWorker)
	total := 0
	for _, b := range rt.metricBatches() {
		total += len(b)
	}
	assert.Equal(t, workers*perWorker, total)
	assert.Zero(t, c.Stats().BatchesDropped)
}

func TestClient_SlowTransportDropsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.QueueSize = 1
	cfg.EnqueueTimeout = 10 * time.Millisecond
	rt := &recordingTransport{sendDelay: 100 * time.Millisecond}
	logger, out := capturedLogger()
	c, err := New(cfg, WithTransport(rt), WithLogger(logger))
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	start := time.Now()
	for i := 0; i < 5; i++ {
		c.Info(context.Background(), fmt.Sprint(i))
	}

	assert.Less(t, time.Since(start), 400*time.Millisecond, "producers are not held behind the transport")
	assert.Positive(t, c.Stats().BatchesDropped)
	assert.Contains(t, out.String(), core.ErrQueueFull.Error())
}

func TestClient_EnqueueAfterQueueClosedDrops(t *testing.T) {
	c, rt := newTestClient(t, nil)

	c.closeQueue()
	c.enqueue(batch{logs: []LogEntry{{Message: "late"}}})

	assert.Equal(t, int64(1), c.Stats().BatchesDropped)
	assert.Zero(t, len(c.jobs))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Empty(t, rt.allLogs())
}

func TestClient_LoggingDuringShutdownIsNeverStranded(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) { cfg.BatchSize = 10000 })
	ctx := context.Background()

	const workers, perWorker = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Info(ctx, "busy")
			}
		}()
	}
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Shutdown(ctx))
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, int64(workers*perWorker), stats.LogsAccepted+stats.CallsAfterShutdown)
	assert.Equal(t, int(stats.LogsAccepted), len(rt.allLogs()), "every accepted entry went out in the final flush")
}

func TestClient_FlushHonorsContext(t *testing.T) {
	cfg := testConfig()
	rt := &recordingTransport{sendDelay: 200 * time.Millisecond}
	c, err := New(cfg, WithTransport(rt), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	c.Info(context.Background(), "slow")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, c.Flush(ctx))
	assert.True(t, errors.Is(ctx.Err(), context.DeadlineExceeded))
}
