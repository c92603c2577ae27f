package telemetry

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itsneelabh/agentcontracts/core"
)

// flushJob is one unit of work for the transport worker. A job either ships
// a batch or retires a transport replaced by Configure; running both on the
// worker keeps a transport from being closed under an in-flight send.
type flushJob struct {
	ctx    context.Context
	batch  batch
	retire Transport

	// done receives the send result; nil for fire-and-forget jobs.
	done chan bool
}

// runWorker is the only goroutine that talks to the transport. It exits
// after quit is closed and the queue is drained.
func (c *Client) runWorker() {
	defer close(c.workerDone)
	for {
		select {
		case job := <-c.jobs:
			c.process(job)
		case <-c.quit:
			for {
				select {
				case job := <-c.jobs:
					c.process(job)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) process(job flushJob) {
	if job.retire != nil {
		if err := job.retire.Close(); err != nil {
			c.logger.Warn("Failed to close replaced transport", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}
	ok := c.send(job.ctx, job.batch)
	if job.done != nil {
		job.done <- ok
	}
}

// send ships logs and metrics concurrently. A failure of one stream never
// cancels the other; both outcomes are logged and the batch is dropped
// either way.
func (c *Client) send(ctx context.Context, b batch) bool {
	transport := c.currentTransport()
	start := time.Now()
	defer c.stats.sendDuration.UpdateSince(start)

	var g errgroup.Group
	if len(b.logs) > 0 {
		g.Go(func() error {
			return c.sendStream(ctx, "logs", len(b.logs), func(ctx context.Context) error {
				return transport.SendLogs(ctx, b.logs)
			})
		})
	}
	if len(b.metrics) > 0 {
		g.Go(func() error {
			return c.sendStream(ctx, "metrics", len(b.metrics), func(ctx context.Context) error {
				return transport.SendMetrics(ctx, b.metrics)
			})
		})
	}
	return g.Wait() == nil
}

func (c *Client) sendStream(ctx context.Context, stream string, count int, fn func(context.Context) error) error {
	err := c.currentBreaker().Execute(ctx, fn)
	if err == nil {
		c.stats.batchesSent.Inc(1)
		return nil
	}

	if errors.Is(err, core.ErrCircuitOpen) {
		c.stats.batchesDropped.Inc(1)
		c.logger.Debug("Dropping batch while collector circuit is open", map[string]interface{}{
			"stream": stream,
			"count":  count,
		})
		return err
	}

	c.stats.batchesFailed.Inc(1)
	c.logger.Error("Failed to send telemetry batch", map[string]interface{}{
		"stream":    stream,
		"count":     count,
		"error":     err.Error(),
		"retryable": core.IsRetryable(err),
		"impact":    "Batch dropped",
	})
	return err
}

// enqueue hands a size- or timer-triggered batch to the worker without
// waiting for the result. If the queue stays full for EnqueueTimeout the
// batch is dropped so producers are never blocked for long.
func (c *Client) enqueue(b batch) {
	c.queueMu.RLock()
	defer c.queueMu.RUnlock()
	if c.queueClosed {
		c.dropBatch(b, core.ErrClientClosed)
		return
	}

	timer := time.NewTimer(c.enqueueTimeout())
	defer timer.Stop()

	select {
	case c.jobs <- flushJob{ctx: context.Background(), batch: b}:
	case <-timer.C:
		c.dropBatch(b, core.ErrQueueFull)
	case <-c.workerDone:
		c.dropBatch(b, core.ErrClientClosed)
	}
}

// submit hands b to the worker and waits for the send result.
func (c *Client) submit(ctx context.Context, b batch) bool {
	done := make(chan bool, 1)
	job := flushJob{ctx: context.WithoutCancel(ctx), batch: b, done: done}
	if err := c.offer(ctx, job); err != nil {
		c.dropBatch(b, err)
		return false
	}

	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	case <-c.workerDone:
		// The worker drains the queue before exiting, so the result is
		// already there unless the job was never picked up.
		select {
		case ok := <-done:
			return ok
		default:
			return false
		}
	}
}

// offer blocks until the worker's queue takes job or ctx ends.
func (c *Client) offer(ctx context.Context, job flushJob) error {
	c.queueMu.RLock()
	defer c.queueMu.RUnlock()
	if c.queueClosed {
		return core.ErrClientClosed
	}
	select {
	case c.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.workerDone:
		return core.ErrClientClosed
	}
}

// retire closes t on the worker once every queued send has finished.
func (c *Client) retire(t Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), c.enqueueTimeout())
	defer cancel()
	if err := c.offer(ctx, flushJob{retire: t}); err != nil {
		_ = t.Close()
	}
}

// closeQueue stops further jobs from being offered. Callers already inside
// offer or enqueue finish first, while the worker is still running.
func (c *Client) closeQueue() {
	c.queueMu.Lock()
	c.queueClosed = true
	c.queueMu.Unlock()
}

func (c *Client) dropBatch(b batch, reason error) {
	c.stats.batchesDropped.Inc(1)
	c.logger.Warn("Dropping telemetry batch", map[string]interface{}{
		"reason":  reason.Error(),
		"logs":    len(b.logs),
		"metrics": len(b.metrics),
	})
}

// startTimer launches the interval flush goroutine, replacing any running
// one.
func (c *Client) startTimer(interval time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.stopTimerLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	c.timerStop, c.timerDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if !c.buf.due(now, interval) {
					continue
				}
				if b := c.buf.swap(); !b.empty() {
					c.enqueue(b)
				}
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.stopTimerLocked()
}

func (c *Client) stopTimerLocked() {
	if c.timerStop == nil {
		return
	}
	close(c.timerStop)
	<-c.timerDone
	c.timerStop, c.timerDone = nil, nil
}

// Flush ships everything buffered and waits for the result. It returns
// true when there was nothing to send or every send succeeded, and false
// when a send failed, ctx ended first, or the client is shut down. Failed
// data is not re-queued.
func (c *Client) Flush(ctx context.Context) bool {
	if c.closed.Load() {
		return false
	}
	return c.flush(ctx)
}

func (c *Client) flush(ctx context.Context) bool {
	b := c.buf.swap()
	if b.empty() {
		return true
	}
	return c.submit(ctx, b)
}

// Shutdown stops the timer, performs a final flush, drains the worker and
// closes the transport. Only the first call does anything; later calls
// return nil.
func (c *Client) Shutdown(ctx context.Context) error {
	var err error
	c.shutdownOnce.Do(func() {
		c.closed.Store(true)
		c.stopTimer()

		if b := c.buf.close(); !b.empty() && !c.submit(ctx, b) {
			c.logger.Warn("Final flush failed", map[string]interface{}{
				"impact": "Buffered telemetry was dropped",
			})
		}

		c.closeQueue()
		close(c.quit)
		select {
		case <-c.workerDone:
		case <-ctx.Done():
			err = ctx.Err()
		}

		c.mu.RLock()
		cardinality := c.cardinality
		c.mu.RUnlock()
		cardinality.Stop()
		if cerr := c.currentTransport().Close(); cerr != nil && err == nil {
			err = cerr
		}

		c.logger.Info("Telemetry client shut down", map[string]interface{}{
			"stats": c.stats.snapshot(),
		})
	})
	return err
}
