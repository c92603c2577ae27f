package telemetry

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/baggage"
)

// Limits for request-scoped baggage, following the W3C baggage
// recommendations. Labels over a limit are dropped, never truncated into a
// different meaning.
const (
	// MaxBaggageItems is the maximum number of key-value pairs allowed
	MaxBaggageItems = 64

	// MaxBaggageKeyLength is the maximum bytes for a single key
	MaxBaggageKeyLength = 128

	// MaxBaggageValueLength is the maximum bytes for a single value
	MaxBaggageValueLength = 512

	// MaxBaggageTotalSize is the maximum total size (8KB) for all baggage
	MaxBaggageTotalSize = 8192
)

type spanContextKey struct{}

// ContextWithSpan returns a child context whose current span is s. The
// parent context is not modified, so the caller's current span is restored
// simply by continuing to use the parent context.
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanContextKey{}, s)
}

// SpanFromContext returns the current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(spanContextKey{}).(*Span)
	return s
}

// WithBaggage attaches request-scoped labels that are added as "key:value"
// tags to every entry logged with the returned context. Labels are given as
// key/value pairs and travel in W3C baggage, so an otelhttp client forwards
// them to downstream services.
//
//	ctx = telemetry.WithBaggage(ctx, "request_id", "123", "tenant", "acme")
//
// Later values override earlier ones with the same key.
func WithBaggage(ctx context.Context, labels ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	bag := baggage.FromContext(ctx)
	totalSize := 0
	for _, m := range bag.Members() {
		totalSize += len(m.Key()) + len(m.Value())
	}

	for i := 0; i+1 < len(labels); i += 2 {
		key, value := labels[i], labels[i+1]
		if key == "" || len(key) > MaxBaggageKeyLength || len(value) > MaxBaggageValueLength {
			continue
		}
		if existing := bag.Member(key); existing.Key() == "" {
			if bag.Len() >= MaxBaggageItems || totalSize+len(key)+len(value) > MaxBaggageTotalSize {
				continue
			}
		} else {
			totalSize -= len(existing.Key()) + len(existing.Value())
		}

		member, err := baggage.NewMemberRaw(key, value)
		if err != nil {
			continue
		}
		next, err := bag.SetMember(member)
		if err != nil {
			continue
		}
		bag = next
		totalSize += len(key) + len(value)
	}

	return baggage.ContextWithBaggage(ctx, bag)
}

// GetBaggage returns the request-scoped labels carried by ctx.
func GetBaggage(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	members := baggage.FromContext(ctx).Members()
	if len(members) == 0 {
		return nil
	}
	out := make(map[string]string, len(members))
	for _, m := range members {
		out[m.Key()] = m.Value()
	}
	return out
}

// baggageTags renders the context's labels as sorted "key:value" tags.
func baggageTags(ctx context.Context) []string {
	labels := GetBaggage(ctx)
	if len(labels) == 0 {
		return nil
	}
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return tags
}
