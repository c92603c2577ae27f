package telemetry

import (
	"sync"
	"time"
)

// OverflowTagValue replaces a tag value once its key has reached its limit.
const OverflowTagValue = "other"

const (
	cardinalitySweepInterval = 5 * time.Minute
	cardinalityIdleTTL       = 10 * time.Minute
)

// CardinalityLimiter caps the number of distinct values each metric tag key
// may take per metric name. Values seen before the cap keep passing; new
// values beyond it are rewritten to OverflowTagValue. Values idle for
// longer than the TTL are forgotten so long-running clients recover slots.
type CardinalityLimiter struct {
	limits map[string]int

	mu   sync.Mutex
	seen map[string]map[string]time.Time // "<metric>.<tag>" -> value -> last use

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCardinalityLimiter starts a limiter with a background sweep. It returns
// nil for an empty limit set; a nil limiter passes everything.
func NewCardinalityLimiter(limits map[string]int) *CardinalityLimiter {
	if len(limits) == 0 {
		return nil
	}
	c := &CardinalityLimiter{
		limits: limits,
		seen:   make(map[string]map[string]time.Time),
		stop:   make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Limit returns the value to record for tag on metric.
func (c *CardinalityLimiter) Limit(metric, tag, value string) string {
	if c == nil {
		return value
	}
	limit, ok := c.limits[tag]
	if !ok {
		return value
	}

	key := metric + "." + tag
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	values := c.seen[key]
	if values == nil {
		values = make(map[string]time.Time)
		c.seen[key] = values
	}
	if _, known := values[value]; !known && len(values) >= limit {
		return OverflowTagValue
	}
	values[value] = now
	return value
}

// LimitTags applies Limit to every tag. The input map is not modified.
func (c *CardinalityLimiter) LimitTags(metric string, tags map[string]string) map[string]string {
	if c == nil || len(tags) == 0 {
		return tags
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = c.Limit(metric, k, v)
	}
	return out
}

// Cardinality returns the number of distinct values currently tracked.
func (c *CardinalityLimiter) Cardinality() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, values := range c.seen {
		total += len(values)
	}
	return total
}

func (c *CardinalityLimiter) sweepLoop() {
	ticker := time.NewTicker(cardinalitySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.sweep(now.Add(-cardinalityIdleTTL))
		case <-c.stop:
			return
		}
	}
}

// sweep forgets values last used before cutoff.
func (c *CardinalityLimiter) sweep(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, values := range c.seen {
		for v, last := range values {
			if last.Before(cutoff) {
				delete(values, v)
			}
		}
		if len(values) == 0 {
			delete(c.seen, key)
		}
	}
}

// Stop ends the background sweep. Safe to call more than once.
func (c *CardinalityLimiter) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}
