package telemetry

import (
	"context"
	"maps"
)

// Future is the result of a traced function running on its own goroutine.
type Future[T any] struct {
	done     chan struct{}
	value    T
	err      error
	panicked interface{}
}

// Go runs fn on a new goroutine inside a span that is a child of the span
// in ctx. The span ends when fn returns, whether or not anyone waits.
//
//	f := telemetry.Go(ctx, client, "fetch-embeddings", telemetry.ComponentModelService, telemetry.EventRequest,
//	    func(ctx context.Context) ([]float32, error) { return model.Embed(ctx, text) })
//	vec, err := f.Wait(ctx)
func Go[T any](ctx context.Context, c *Client, name string, component Component, eventType EventType, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			// runTraced has already ended the span; hand the panic to Wait.
			if r := recover(); r != nil {
				f.panicked = r
			}
		}()
		f.value, f.err = runTraced(ctx, c, name, component, eventType, nil, fn)
	}()
	return f
}

// Done is closed once the function has returned.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the function returns or ctx ends. A panic inside the
// function is re-raised here, on the waiting goroutine.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		if f.panicked != nil {
			panic(f.panicked)
		}
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// StartLinkedSpan resumes a trace across an async boundary such as a task
// queue. traceID and parentSpanID are the values stored with the task when
// it was submitted (see CurrentTrace); the new span joins that trace as a
// child of parentSpanID. With empty ids it starts a new trace.
//
//	ctx, span := telemetry.StartLinkedSpan(context.Background(), client, "task.process",
//	    telemetry.ComponentAgentCore, task.TraceID, task.ParentSpanID,
//	    map[string]interface{}{"task.id": task.ID})
//	defer client.EndSpan(span, telemetry.StatusOK)
func StartLinkedSpan(ctx context.Context, c *Client, name string, component Component, traceID, parentSpanID string, attributes map[string]interface{}) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	data := make(map[string]interface{}, len(attributes)+1)
	maps.Copy(data, attributes)
	if traceID != "" {
		ctx = ContextWithRemoteTrace(ctx, TraceContext{TraceID: traceID, SpanID: parentSpanID})
		data["link.type"] = "async_task"
	}
	return c.StartSpan(ctx, name, component, EventLifecycle, WithSpanData(data))
}
