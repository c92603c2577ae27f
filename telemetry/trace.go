package telemetry

import (
	"context"
	"fmt"
	"reflect"
)

// Trace runs fn inside a span named name. The span ends ok when fn returns
// nil and error otherwise; fn's error is returned unchanged. A panic ends
// the span with error and is re-raised.
//
//	err := telemetry.Trace(ctx, client, "load-profile", telemetry.ComponentDatabase, telemetry.EventRequest,
//	    func(ctx context.Context) error {
//	        return store.Load(ctx, id)
//	    })
func Trace(ctx context.Context, c *Client, name string, component Component, eventType EventType, fn func(context.Context) error) error {
	_, err := runTraced(ctx, c, name, component, eventType, nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// TraceFunc is Trace for functions that return a value.
func TraceFunc[T any](ctx context.Context, c *Client, name string, component Component, eventType EventType, fn func(context.Context) (T, error)) (T, error) {
	return runTraced(ctx, c, name, component, eventType, nil, fn)
}

// TraceMethod traces a method call as "<Type>.<method>". The arguments are
// recorded on the span as arg0..argN in SafeValue form, never verbatim.
func TraceMethod(ctx context.Context, c *Client, receiver interface{}, method string, component Component, fn func(context.Context) error, args ...interface{}) error {
	data := make(map[string]interface{}, len(args))
	for i, a := range args {
		data[fmt.Sprintf("arg%d", i)] = SafeValue(a)
	}
	name := typeName(receiver) + "." + method
	_, err := runTraced(ctx, c, name, component, EventRequest, data, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func runTraced[T any](ctx context.Context, c *Client, name string, component Component, eventType EventType, data map[string]interface{}, fn func(context.Context) (T, error)) (result T, err error) {
	spanCtx, span := c.StartSpan(ctx, name, component, eventType, WithSpanData(data))

	defer func() {
		if r := recover(); r != nil {
			_ = c.EndSpan(span, StatusError,
				WithErrorMessage(fmt.Sprint(r)),
				WithEndData(map[string]interface{}{"error_type": "panic"}),
			)
			panic(r)
		}
	}()

	result, err = fn(spanCtx)
	if err != nil {
		_ = c.EndSpan(span, StatusError,
			WithErrorMessage(err.Error()),
			WithEndData(map[string]interface{}{"error_type": fmt.Sprintf("%T", err)}),
		)
		return result, err
	}
	_ = c.EndSpan(span, StatusOK)
	return result, nil
}

// SafeValue summarizes v for span data: scalars pass through, collections
// become "[kind:len]" and anything else becomes "[TypeName]". Argument
// contents never reach the collector this way.
func SafeValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		return fmt.Sprintf("[slice:%d]", rv.Len())
	case reflect.Array:
		return fmt.Sprintf("[array:%d]", rv.Len())
	case reflect.Map:
		return fmt.Sprintf("[map:%d]", rv.Len())
	}
	return "[" + typeName(v) + "]"
}
