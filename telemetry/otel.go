package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	agentcontracts "github.com/itsneelabh/agentcontracts"
	"github.com/itsneelabh/agentcontracts/core"
)

// instrumentationName names the tracer and meter the client mirrors into.
const instrumentationName = "github.com/itsneelabh/agentcontracts/telemetry"

// OTelProviderConfig configures NewOTelProvider.
type OTelProviderConfig struct {
	ServiceName string
	Environment string

	// Endpoint is an OTLP/gRPC collector address (host:port). When empty
	// OTEL_EXPORTER_OTLP_ENDPOINT is used, and when that is empty too spans
	// are written to Stdout.
	Endpoint string
	Insecure bool

	// Stdout receives pretty-printed spans when no endpoint is configured.
	// nil means os.Stdout.
	Stdout io.Writer

	// MetricsEndpoint is an OTLP/HTTP collector address (host:port) used by
	// NewOTelMeterProvider. When empty OTEL_EXPORTER_OTLP_METRICS_ENDPOINT
	// is used.
	MetricsEndpoint string
	// MetricsInterval is the push period. Zero means one minute.
	MetricsInterval time.Duration
}

func (cfg OTelProviderConfig) resource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(agentcontracts.Version),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// NewOTelProvider builds a batching tracer provider, installs it and the
// W3C propagators as the OpenTelemetry globals, and returns it so the
// caller can Shutdown it on exit. Clients created with Config.OTelEnabled
// mirror their spans into whatever global provider is installed.
func NewOTelProvider(ctx context.Context, cfg OTelProviderConfig) (*sdktrace.TracerProvider, error) {
	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	var exporter sdktrace.SpanExporter
	if endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	} else {
		w := cfg.Stdout
		if w == nil {
			w = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// NewOTelMeterProvider builds a meter provider that pushes over OTLP/HTTP
// and installs it as the global provider. Clients created with
// Config.OTelEnabled mirror every recorded metric into it.
func NewOTelMeterProvider(ctx context.Context, cfg OTelProviderConfig) (*sdkmetric.MeterProvider, error) {
	endpoint := cfg.MetricsEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	}
	if endpoint == "" {
		return nil, &core.ContractError{
			Op:      "NewOTelMeterProvider",
			Kind:    "config",
			Message: "metrics endpoint is required",
			Err:     core.ErrMissingConfiguration,
		}
	}

	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = time.Minute
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// startOTelSpan opens a mirror span for s when the client has a tracer.
func (c *Client) startOTelSpan(ctx context.Context, s *Span) context.Context {
	if c.tracer == nil {
		return ctx
	}
	ctx, otelSpan := c.tracer.Start(ctx, s.operationName,
		trace.WithTimestamp(s.startTime),
		trace.WithAttributes(
			attribute.String("logfire.trace_id", s.traceID),
			attribute.String("logfire.span_id", s.spanID),
			attribute.String("logfire.component", string(s.component)),
			attribute.String("logfire.event_type", string(s.eventType)),
			semconv.ServiceNameKey.String(s.serviceName),
		),
	)
	s.otelSpan = otelSpan
	return ctx
}

// endOTelSpan closes the mirror span with the span's final status.
func endOTelSpan(s *Span, status SpanStatus, errorMessage string, end time.Time) {
	if s.otelSpan == nil {
		return
	}
	if status == StatusError {
		s.otelSpan.SetStatus(codes.Error, errorMessage)
	} else {
		s.otelSpan.SetStatus(codes.Ok, "")
	}
	s.otelSpan.End(trace.WithTimestamp(end))
}

func setOTelAttribute(span trace.Span, key string, value interface{}) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case int32:
		return attribute.Int64(key, int64(v))
	case float64:
		return attribute.Float64(key, v)
	case float32:
		return attribute.Float64(key, float64(v))
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
