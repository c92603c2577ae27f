package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingTransport keeps every batch it is given.
type recordingTransport struct {
	mu        sync.Mutex
	logCalls  [][]LogEntry
	metCalls  [][]MetricSample
	failLogs  error
	failMets  error
	closed    int
	sendDelay time.Duration
}

func (t *recordingTransport) SendLogs(ctx context.Context, logs []LogEntry) error {
	if t.sendDelay > 0 {
		time.Sleep(t.sendDelay)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logCalls = append(t.logCalls, append([]LogEntry(nil), logs...))
	return t.failLogs
}

func (t *recordingTransport) SendMetrics(ctx context.Context, metrics []MetricSample) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metCalls = append(t.metCalls, append([]MetricSample(nil), metrics...))
	return t.failMets
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *recordingTransport) setLogError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failLogs = err
}

func (t *recordingTransport) logBatches() [][]LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]LogEntry(nil), t.logCalls...)
}

func (t *recordingTransport) metricBatches() [][]MetricSample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]MetricSample(nil), t.metCalls...)
}

// allLogs flattens every log batch sent so far.
func (t *recordingTransport) allLogs() []LogEntry {
	var out []LogEntry
	for _, b := range t.logBatches() {
		out = append(out, b...)
	}
	return out
}

func (t *recordingTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

var errCollectorDown = errors.New("collector down")

// quietLogger discards the client's own diagnostics.
func quietLogger() *TelemetryLogger {
	l := NewTelemetryLogger("test")
	l.SetOutput(io.Discard)
	return l
}

// capturedLogger returns a logger writing JSON lines into the returned buffer.
func capturedLogger() (*TelemetryLogger, *syncBuffer) {
	buf := &syncBuffer{}
	l := NewTelemetryLogger("test")
	l.SetFormat("json")
	l.SetLevel("debug")
	l.SetOutput(buf)
	return l, buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig returns a config that never flushes on its own timer during a
// test and keeps every debug entry.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ServiceName = "test-service"
	cfg.Environment = "test"
	cfg.MinLevel = LevelDebug
	cfg.FlushInterval = time.Hour
	cfg.EnableMetadata = false
	cfg.RetryAttempts = 0
	return cfg
}

// newTestClient builds a client on a recording transport and shuts it down
// when the test ends.
func newTestClient(t *testing.T, mutate func(*Config), opts ...ClientOption) (*Client, *recordingTransport) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	rt := &recordingTransport{}
	all := append([]ClientOption{
		WithTransport(rt),
		WithLogger(quietLogger()),
		WithRandSource(rand.NewPCG(1, 2)),
	}, opts...)
	c, err := New(cfg, all...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c, rt
}

// messages returns the messages of entries in order.
func messages(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

// findEntry returns the first entry with message msg.
func findEntry(t *testing.T, entries []LogEntry, msg string) LogEntry {
	t.Helper()
	for _, e := range entries {
		if e.Message == msg {
			return e
		}
	}
	t.Fatalf("no entry with message %q in %v", msg, messages(entries))
	return LogEntry{}
}
