package telemetry

import (
	"sync"
	"time"
)

// batch is what one flush ships: the logs and metrics captured by a single
// buffer swap.
type batch struct {
	logs    []LogEntry
	metrics []MetricSample
}

func (b batch) empty() bool {
	return len(b.logs) == 0 && len(b.metrics) == 0
}

// buffer holds pending logs and metrics plus the metric descriptor registry.
// One mutex guards all of it and is held only for an append or a swap.
type buffer struct {
	mu        sync.Mutex
	batchSize int
	logs      []LogEntry
	metrics   []MetricSample
	lastFlush time.Time
	registry  *metricRegistry
	closed    bool
}

func newBuffer(batchSize int) *buffer {
	return &buffer{
		batchSize: batchSize,
		lastFlush: time.Now(),
		registry:  newMetricRegistry(),
	}
}

// addLog appends e. When the log buffer reaches the batch size, both
// buffers are swapped out and returned so the caller can hand them to the
// flush worker outside the lock.
// A closed buffer refuses e and reports accepted == false.
func (b *buffer) addLog(e LogEntry) (out batch, full, accepted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return batch{}, false, false
	}
	b.logs = append(b.logs, e)
	if len(b.logs) >= b.batchSize {
		return b.swapLocked(), true, true
	}
	return batch{}, false, true
}

// addMetric registers the metric name on first sight and appends s.
func (b *buffer) addMetric(s MetricSample) (out batch, full, accepted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return batch{}, false, false
	}
	b.registry.ensure(s.Name)
	b.metrics = append(b.metrics, s)
	if len(b.metrics) >= b.batchSize {
		return b.swapLocked(), true, true
	}
	return batch{}, false, true
}

// swap takes everything currently buffered.
func (b *buffer) swap() batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.swapLocked()
}

// close takes the final batch. Every later add is refused, so nothing can
// land in the buffer after it.
func (b *buffer) close() batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.swapLocked()
}

func (b *buffer) swapLocked() batch {
	out := batch{logs: b.logs, metrics: b.metrics}
	b.logs = nil
	b.metrics = nil
	b.lastFlush = time.Now()
	return out
}

// due reports whether the timer should flush: something is buffered and at
// least interval has passed since the last swap.
func (b *buffer) due(now time.Time, interval time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.logs) == 0 && len(b.metrics) == 0 {
		return false
	}
	return now.Sub(b.lastFlush) >= interval
}

func (b *buffer) setBatchSize(n int) {
	b.mu.Lock()
	b.batchSize = n
	b.mu.Unlock()
}

// pending returns the number of buffered logs and metrics.
func (b *buffer) pending() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.logs), len(b.metrics)
}

func (b *buffer) registerMetric(d MetricDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry.register(d)
}

func (b *buffer) metricDescriptors(filter map[string]string) []MetricDescriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.list(filter)
}

// descriptor returns the registered descriptor for name.
func (b *buffer) descriptor(name string) (MetricDescriptor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.registry.descriptors[name]
	return d, ok
}

// registerMetricIfAbsent stores d unless name is already known, so a
// descriptor registered by the caller is never overwritten.
func (b *buffer) registerMetricIfAbsent(d MetricDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.registry.descriptors[d.Name]; !ok {
		b.registry.register(d)
	}
}
