package telemetry

import (
	"context"
	"fmt"
	"maps"
	"time"
)

// RecordPerformance logs an operation timing at INFO and records it as the
// operation_duration_ms metric.
func (c *Client) RecordPerformance(ctx context.Context, operation string, durationMS float64, component Component, success bool, details map[string]interface{}) {
	data := map[string]interface{}{
		"operation":   operation,
		"duration_ms": durationMS,
		"success":     success,
	}
	maps.Copy(data, details)

	c.Info(ctx, fmt.Sprintf("Performance: %s took %.2fms", operation, durationMS),
		WithComponent(component),
		WithEventType(EventMetric),
		WithData(data),
	)
	c.recordBuiltin(ctx, "operation_duration_ms", durationMS, map[string]string{
		"operation": operation,
		"success":   fmt.Sprint(success),
		"component": string(component),
	})
}

// RecordAPICall logs an API call and records api_call_duration_ms. The
// response body is only logged for successful calls, or for failures when
// the client runs at debug level.
func (c *Client) RecordAPICall(ctx context.Context, call APICall) {
	success := call.Success()
	outcome := "succeeded"
	level := LevelInfo
	if !success {
		outcome = "failed"
		level = LevelError
	}

	data := map[string]interface{}{
		"api_name":    call.Name,
		"method":      call.Method,
		"url":         call.URL,
		"status_code": call.StatusCode,
		"duration_ms": call.DurationMS,
		"success":     success,
	}
	if call.Request != nil {
		data["request"] = call.Request
	}
	if call.Response != nil && (success || c.sampler.MinLevel() == LevelDebug) {
		data["response"] = call.Response
	}
	if call.Error != "" {
		data["error"] = call.Error
	}

	component := call.Component
	if component == "" {
		component = ComponentAPIGateway
	}
	opts := []LogOption{WithComponent(component), WithEventType(EventRequest), WithData(data)}
	if call.TraceID != "" {
		opts = append(opts, WithTraceID(call.TraceID))
	}
	c.Log(ctx, level, fmt.Sprintf("API call to %s %s with status %d", call.Name, outcome, call.StatusCode), opts...)

	c.recordBuiltin(ctx, "api_call_duration_ms", call.DurationMS, map[string]string{
		"api_name":    call.Name,
		"status_code": fmt.Sprint(call.StatusCode),
		"success":     fmt.Sprint(success),
		"component":   string(component),
	})
}

// RecordModelValidation logs the outcome of a model validation, at ERROR
// when it failed.
func (c *Client) RecordModelValidation(ctx context.Context, v ModelValidation) {
	data := map[string]interface{}{
		"model_name": v.ModelID,
		"success":    v.Valid,
	}
	maps.Copy(data, v.Details)
	if len(v.Errors) > 0 {
		data["errors"] = v.Errors
	}
	if len(v.Warnings) > 0 {
		data["warnings"] = v.Warnings
	}

	component := v.Component
	if component == "" {
		component = ComponentModelService
	}
	level, outcome := LevelInfo, "succeeded"
	if !v.Valid {
		level, outcome = LevelError, "failed"
	}
	c.Log(ctx, level, fmt.Sprintf("Model validation %s: %s", outcome, v.ModelID),
		WithComponent(component),
		WithEventType(EventValidation),
		WithData(data),
	)
}

// WithMonitoring runs fn inside a span and records its duration with
// RecordPerformance. fn's error is returned unchanged.
func WithMonitoring(ctx context.Context, c *Client, operation string, component Component, fn func(context.Context) error) error {
	spanCtx, span := c.StartSpan(ctx, operation, component, EventMetric)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			c.RecordPerformance(spanCtx, operation, msSince(start), component, false, map[string]interface{}{
				"error":      msg,
				"error_type": "panic",
			})
			_ = c.EndSpan(span, StatusError,
				WithErrorMessage(msg),
				WithEndData(map[string]interface{}{"error_type": "panic"}),
			)
			panic(r)
		}
	}()

	err := fn(spanCtx)
	elapsed := msSince(start)
	if err != nil {
		errType := fmt.Sprintf("%T", err)
		c.RecordPerformance(spanCtx, operation, elapsed, component, false, map[string]interface{}{
			"error":      err.Error(),
			"error_type": errType,
		})
		_ = c.EndSpan(span, StatusError,
			WithErrorMessage(err.Error()),
			WithEndData(map[string]interface{}{"error_type": errType}),
		)
		return err
	}

	c.RecordPerformance(spanCtx, operation, elapsed, component, true, nil)
	_ = c.EndSpan(span, StatusOK)
	return nil
}

// Tracker measures a block of code. Attributes added with AddData are
// reported on both the performance entry and the span.
//
//	ctx, t := telemetry.TrackPerformance(ctx, client, "rank-candidates", telemetry.ComponentAgentCore, nil)
//	t.AddData(map[string]interface{}{"candidates": len(cs)})
//	err := rank(ctx, cs)
//	return t.Done(err)
type Tracker struct {
	client    *Client
	ctx       context.Context
	span      *Span
	operation string
	component Component
	start     time.Time
	data      map[string]interface{}
}

// TrackPerformance opens a metric span and starts the clock. The returned
// context carries the span.
func TrackPerformance(ctx context.Context, c *Client, operation string, component Component, attributes map[string]interface{}) (context.Context, *Tracker) {
	spanCtx, span := c.StartSpan(ctx, operation, component, EventMetric, WithSpanData(attributes))
	t := &Tracker{
		client:    c,
		ctx:       spanCtx,
		span:      span,
		operation: operation,
		component: component,
		start:     time.Now(),
		data:      maps.Clone(attributes),
	}
	if t.data == nil {
		t.data = make(map[string]interface{})
	}
	return spanCtx, t
}

// AddData adds attributes reported when the tracker finishes. Not safe for
// concurrent use.
func (t *Tracker) AddData(data map[string]interface{}) {
	maps.Copy(t.data, data)
}

// Done records the measurement and ends the span, ok when err is nil and
// error otherwise. It returns err unchanged so it can close a function.
func (t *Tracker) Done(err error) error {
	elapsed := msSince(t.start)
	details := maps.Clone(t.data)

	if err != nil {
		errType := fmt.Sprintf("%T", err)
		details["error"] = err.Error()
		details["error_type"] = errType
		t.client.RecordPerformance(t.ctx, t.operation, elapsed, t.component, false, details)
		_ = t.client.EndSpan(t.span, StatusError, WithErrorMessage(err.Error()), WithEndData(details))
		return err
	}

	t.client.RecordPerformance(t.ctx, t.operation, elapsed, t.component, true, details)
	_ = t.client.EndSpan(t.span, StatusOK, WithEndData(details))
	return nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
