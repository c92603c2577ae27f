package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsNamed(batches [][]MetricSample, name string) []MetricSample {
	var out []MetricSample
	for _, b := range batches {
		for _, m := range b {
			if m.Name == name {
				out = append(out, m)
			}
		}
	}
	return out
}

func TestRecordPerformance(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	c.RecordPerformance(ctx, "embed", 12.345, ComponentModelService, true, map[string]interface{}{"tokens_in": 128})
	require.True(t, c.Flush(ctx))

	e := findEntry(t, rt.allLogs(), "Performance: embed took 12.35ms")
	assert.Equal(t, LevelInfo, e.Level)
	assert.Equal(t, EventMetric, e.EventType)
	assert.Equal(t, ComponentModelService, e.Component)
	assert.Equal(t, true, e.Data["success"])

	samples := metricsNamed(rt.metricBatches(), "operation_duration_ms")
	require.Len(t, samples, 1)
	assert.Equal(t, 12.345, samples[0].Value)
	assert.Equal(t, map[string]string{
		"operation": "embed",
		"success":   "true",
		"component": "model_service",
	}, samples[0].Tags)

	descs := c.GetMetrics(map[string]string{"name": "operation_duration_ms"})
	require.Len(t, descs, 1)
	assert.Equal(t, MetricHistogram, descs[0].Type)
	assert.Equal(t, "ms", descs[0].Unit)
}

func TestRecordAPICall(t *testing.T) {
	tests := []struct {
		name         string
		minLevel     LogLevel
		call         APICall
		wantLevel    LogLevel
		wantMessage  string
		wantResponse bool
	}{
		{
			name:         "success includes response",
			minLevel:     LevelInfo,
			call:         APICall{Name: "search", Method: "GET", StatusCode: 200, DurationMS: 30, Response: map[string]interface{}{"hits": 3}},
			wantLevel:    LevelInfo,
			wantMessage:  "API call to search succeeded with status 200",
			wantResponse: true,
		},
		{
			name:         "failure hides response",
			minLevel:     LevelInfo,
			call:         APICall{Name: "search", Method: "GET", StatusCode: 502, DurationMS: 30, Response: map[string]interface{}{"body": "bad gateway"}},
			wantLevel:    LevelError,
			wantMessage:  "API call to search failed with status 502",
			wantResponse: false,
		},
		{
			name:         "failure shows response at debug",
			minLevel:     LevelDebug,
			call:         APICall{Name: "search", Method: "GET", StatusCode: 404, DurationMS: 5, Response: map[string]interface{}{"body": "missing"}},
			wantLevel:    LevelError,
			wantMessage:  "API call to search failed with status 404",
			wantResponse: true,
		},
		{
			name:        "redirect is not success",
			minLevel:    LevelInfo,
			call:        APICall{Name: "auth", StatusCode: 302},
			wantLevel:   LevelError,
			wantMessage: "API call to auth failed with status 302",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rt := newTestClient(t, func(cfg *Config) { cfg.MinLevel = tt.minLevel })
			ctx := context.Background()

			c.RecordAPICall(ctx, tt.call)
			require.True(t, c.Flush(ctx))

			e := findEntry(t, rt.allLogs(), tt.wantMessage)
			assert.Equal(t, tt.wantLevel, e.Level)
			assert.Equal(t, EventRequest, e.EventType)
			assert.Equal(t, ComponentAPIGateway, e.Component)
			_, hasResponse := e.Data["response"]
			assert.Equal(t, tt.wantResponse, hasResponse)

			samples := metricsNamed(rt.metricBatches(), "api_call_duration_ms")
			require.Len(t, samples, 1)
			assert.Equal(t, tt.call.Name, samples[0].Tags["api_name"])
		})
	}
}

func TestRecordAPICall_SanitizesRequest(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	c.RecordAPICall(ctx, APICall{
		Name:       "billing",
		StatusCode: 201,
		Request:    map[string]interface{}{"headers": map[string]interface{}{"Authorization": "Bearer abc"}, "amount": 10},
		TraceID:    "trace-from-caller",
	})
	require.True(t, c.Flush(ctx))

	e := findEntry(t, rt.allLogs(), "API call to billing succeeded with status 201")
	req := e.Data["request"].(map[string]interface{})
	assert.Equal(t, RedactedValue, req["headers"].(map[string]interface{})["Authorization"])
	assert.Equal(t, 10, req["amount"])
	assert.Equal(t, "trace-from-caller", e.TraceID)
}

func TestRecordModelValidation(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	c.RecordModelValidation(ctx, ModelValidation{ModelID: "gpt-router", Valid: true})
	c.RecordModelValidation(ctx, ModelValidation{
		ModelID: "ranker",
		Valid:   false,
		Errors:  []string{"missing field: score"},
		Details: map[string]interface{}{"schema": "v2"},
	})
	require.True(t, c.Flush(ctx))

	ok := findEntry(t, rt.allLogs(), "Model validation succeeded: gpt-router")
	assert.Equal(t, LevelInfo, ok.Level)
	assert.Equal(t, EventValidation, ok.EventType)
	assert.Equal(t, ComponentModelService, ok.Component)

	bad := findEntry(t, rt.allLogs(), "Model validation failed: ranker")
	assert.Equal(t, LevelError, bad.Level)
	assert.Equal(t, "ranker", bad.Data["model_name"])
	assert.Equal(t, false, bad.Data["success"])
	assert.Equal(t, "v2", bad.Data["schema"])
	assert.Equal(t, []string{"missing field: score"}, bad.Data["errors"])
}

func TestWithMonitoring(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, WithMonitoring(ctx, c, "index", ComponentDatabase, func(ctx context.Context) error {
		assert.NotNil(t, SpanFromContext(ctx))
		return nil
	}))
	err := WithMonitoring(ctx, c, "reindex", ComponentDatabase, func(ctx context.Context) error {
		return boom
	})
	assert.Same(t, boom, err)
	require.True(t, c.Flush(ctx))

	entries := rt.allLogs()
	assert.Equal(t, LevelDebug, findEntry(t, entries, "End span: index").Level)
	failed := findEntry(t, entries, "End span: reindex")
	assert.Equal(t, LevelError, failed.Level)
	assert.Equal(t, "*errors.errorString", failed.Data["error_type"])

	samples := metricsNamed(rt.metricBatches(), "operation_duration_ms")
	require.Len(t, samples, 2)
	assert.Equal(t, "true", samples[0].Tags["success"])
	assert.Equal(t, "false", samples[1].Tags["success"])
	assert.Zero(t, c.ActiveSpans())
}

func TestTrackPerformance(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	spanCtx, tracker := TrackPerformance(ctx, c, "rank", ComponentAgentCore, map[string]interface{}{"model": "m1"})
	assert.NotNil(t, SpanFromContext(spanCtx))
	tracker.AddData(map[string]interface{}{"candidates": 12})
	require.NoError(t, tracker.Done(nil))

	_, failing := TrackPerformance(ctx, c, "rerank", ComponentAgentCore, nil)
	boom := errors.New("timeout")
	assert.Same(t, boom, failing.Done(boom))
	require.True(t, c.Flush(ctx))

	entries := rt.allLogs()
	end := findEntry(t, entries, "End span: rank")
	assert.Equal(t, EventMetric, end.EventType)
	assert.Equal(t, 12, end.Data["candidates"])
	assert.Equal(t, "m1", end.Data["model"])

	failed := findEntry(t, entries, "End span: rerank")
	assert.Equal(t, LevelError, failed.Level)
	assert.Equal(t, "timeout", failed.Data["error"])
	assert.Zero(t, c.ActiveSpans())
}

func TestWithMonitoring_PanicEndsSpan(t *testing.T) {
	c, rt := newTestClient(t, nil)
	ctx := context.Background()

	assert.PanicsWithValue(t, "index corrupted", func() {
		_ = WithMonitoring(ctx, c, "compact", ComponentDatabase, func(ctx context.Context) error {
			panic("index corrupted")
		})
	})
	assert.Zero(t, c.ActiveSpans())
	require.True(t, c.Flush(ctx))

	end := findEntry(t, rt.allLogs(), "End span: compact")
	assert.Equal(t, LevelError, end.Level)
	assert.Equal(t, "panic", end.Data["error_type"])
	assert.Equal(t, "index corrupted", end.Data["error_message"])

	samples := metricsNamed(rt.metricBatches(), "operation_duration_ms")
	require.Len(t, samples, 1)
	assert.Equal(t, "false", samples[0].Tags["success"])
}
