package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBaggage(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() context.Context
		labels   []string
		expected map[string]string
	}{
		{
			name:     "add labels to empty context",
			setup:    context.Background,
			labels:   []string{"request_id", "123", "user_id", "456"},
			expected: map[string]string{"request_id": "123", "user_id": "456"},
		},
		{
			name: "add labels to existing baggage",
			setup: func() context.Context {
				return WithBaggage(context.Background(), "existing", "value")
			},
			labels:   []string{"new_key", "new_value"},
			expected: map[string]string{"existing": "value", "new_key": "new_value"},
		},
		{
			name: "override existing label",
			setup: func() context.Context {
				return WithBaggage(context.Background(), "tenant", "old")
			},
			labels:   []string{"tenant", "new"},
			expected: map[string]string{"tenant": "new"},
		},
		{
			name:     "odd label count ignores the dangling key",
			setup:    context.Background,
			labels:   []string{"a", "1", "dangling"},
			expected: map[string]string{"a": "1"},
		},
		{
			name:     "empty key is dropped",
			setup:    context.Background,
			labels:   []string{"", "v", "k", "v"},
			expected: map[string]string{"k": "v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithBaggage(tt.setup(), tt.labels...)
			assert.Equal(t, tt.expected, GetBaggage(ctx))
		})
	}
}

func TestWithBaggage_ParentUnchanged(t *testing.T) {
	parent := WithBaggage(context.Background(), "a", "1")
	child := WithBaggage(parent, "b", "2")

	assert.Equal(t, map[string]string{"a": "1"}, GetBaggage(parent))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, GetBaggage(child))
	assert.Nil(t, GetBaggage(context.Background()))
}

func TestWithBaggage_Limits(t *testing.T) {
	t.Run("oversized key and value", func(t *testing.T) {
		ctx := WithBaggage(context.Background(),
			strings.Repeat("k", MaxBaggageKeyLength+1), "v",
			"big", strings.Repeat("v", MaxBaggageValueLength+1),
			"ok", "v",
		)
		assert.Equal(t, map[string]string{"ok": "v"}, GetBaggage(ctx))
	})

	t.Run("item count", func(t *testing.T) {
		labels := make([]string, 0, 2*(MaxBaggageItems+10))
		for i := 0; i < MaxBaggageItems+10; i++ {
			labels = append(labels, fmt.Sprintf("key%d", i), "v")
		}
		ctx := WithBaggage(context.Background(), labels...)
		bag := GetBaggage(ctx)
		assert.Len(t, bag, MaxBaggageItems)
		assert.Contains(t, bag, "key0")
		assert.NotContains(t, bag, fmt.Sprintf("key%d", MaxBaggageItems))

		// Overriding an existing key still works at the limit.
		ctx = WithBaggage(ctx, "key0", "updated")
		assert.Equal(t, "updated", GetBaggage(ctx)["key0"])
	})

	t.Run("total size", func(t *testing.T) {
		value := strings.Repeat("x", MaxBaggageValueLength)
		var labels []string
		for i := 0; i < 20; i++ {
			labels = append(labels, fmt.Sprintf("k%02d", i), value)
		}
		ctx := WithBaggage(context.Background(), labels...)

		total := 0
		for k, v := range GetBaggage(ctx) {
			total += len(k) + len(v)
		}
		assert.LessOrEqual(t, total, MaxBaggageTotalSize)
		assert.Len(t, GetBaggage(ctx), MaxBaggageTotalSize/(3+MaxBaggageValueLength))
	})
}

func TestBaggageTags_OnEntries(t *testing.T) {
	c, rt := newTestClient(t, func(cfg *Config) {
		cfg.Tags = map[string]string{"region": "eu"}
	})
	ctx := WithBaggage(context.Background(), "tenant", "acme", "request_id", "r-1")

	c.Info(ctx, "tagged", WithEntryTags("explicit"))
	require.True(t, c.Flush(ctx))

	e := findEntry(t, rt.allLogs(), "tagged")
	assert.Equal(t, []string{"explicit", "region:eu", "request_id:r-1", "tenant:acme"}, e.Tags)
}

func TestSpanContext_ConcurrentIsolation(t *testing.T) {
	c, _ := newTestClient(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := WithBaggage(context.Background(), "worker", fmt.Sprint(i))
			ctx, span := c.StartSpan(ctx, "work", ComponentSystem, EventSystem)
			assert.Same(t, span, SpanFromContext(ctx))
			assert.Equal(t, fmt.Sprint(i), GetBaggage(ctx)["worker"])
			assert.NoError(t, c.EndSpan(span, StatusOK))
		}(i)
	}
	wg.Wait()
	assert.Zero(t, c.ActiveSpans())
}
