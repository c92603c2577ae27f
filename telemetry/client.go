package telemetry

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/agentcontracts/core"
	"github.com/itsneelabh/agentcontracts/resilience"
)

// Client is the LogFire telemetry client. It buffers log entries and metric
// samples, ships them to the collector in batches and tracks open spans.
// All methods are safe for concurrent use. Create one with New and pass it
// to whatever needs it; there is no package-level client.
type Client struct {
	mu            sync.RWMutex
	cfg           Config
	logConfig     LogConfig
	transport     Transport
	ownsTransport bool
	sanitizer     *Sanitizer
	dropFilter    *metricFilter
	cardinality   *CardinalityLimiter
	breaker       *CircuitBreaker
	metadata      map[string]interface{}
	globalTags    []string

	configureMu sync.Mutex

	sampler *Sampler
	buf     *buffer
	spans   *spanRegistry
	logger  *TelemetryLogger
	stats   *clientStats
	tracer  trace.Tracer
	mirror  *metricMirror

	jobs       chan flushJob
	quit       chan struct{}
	workerDone chan struct{}

	// queueMu is held shared while a job is offered to jobs. Shutdown takes
	// it exclusively to set queueClosed before the worker is told to quit.
	queueMu     sync.RWMutex
	queueClosed bool

	timerMu   sync.Mutex
	timerStop chan struct{}
	timerDone chan struct{}

	closed       atomic.Bool
	shutdownOnce sync.Once
	startTime    time.Time
}

// ClientOption customizes a Client beyond what Config describes.
type ClientOption func(*clientOptions)

type clientOptions struct {
	transport      Transport
	logger         *TelemetryLogger
	randSource     rand.Source
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTransport replaces the transport built from Config. The client closes
// it on Shutdown but never replaces it on Configure.
func WithTransport(t Transport) ClientOption {
	return func(o *clientOptions) { o.transport = t }
}

// WithLogger sets the local logger used for the client's own diagnostics.
func WithLogger(l *TelemetryLogger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// WithRandSource makes sampling deterministic.
func WithRandSource(src rand.Source) ClientOption {
	return func(o *clientOptions) { o.randSource = src }
}

// WithTracerProvider mirrors spans into tp, regardless of Config.OTelEnabled.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(o *clientOptions) { o.tracerProvider = tp }
}

// WithMeterProvider mirrors metric samples into mp, regardless of
// Config.OTelEnabled.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) { o.meterProvider = mp }
}

// New validates cfg and starts a client. An invalid config is reported
// here and never at first use.
func New(cfg Config, opts ...ClientOption) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if o.transport == nil {
		if err := cfg.validateCredentials(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	dropFilter, err := newMetricFilter(cfg.DropMetrics)
	if err != nil {
		return nil, fmt.Errorf("invalid drop_metrics pattern: %w: %w", core.ErrInvalidConfiguration, err)
	}

	logger := o.logger
	if logger == nil {
		logger = NewTelemetryLogger(cfg.ServiceName)
	}

	transport, owns := o.transport, false
	if transport == nil {
		transport, err = buildTransport(context.Background(), cfg, logger)
		if err != nil {
			return nil, err
		}
		owns = true
	}

	var sampler *Sampler
	if o.randSource != nil {
		sampler = NewSamplerWithSource(cfg.MinLevel, cfg.SampleRate, o.randSource)
	} else {
		sampler = NewSampler(cfg.MinLevel, cfg.SampleRate)
	}

	c := &Client{
		cfg:           cfg,
		logConfig:     LogConfig{ServiceName: cfg.ServiceName, Environment: cfg.Environment, MinLevel: cfg.MinLevel},
		transport:     transport,
		ownsTransport: owns,
		sanitizer:     NewSanitizer(cfg.ExtraSensitiveKeys...),
		dropFilter:    dropFilter,
		cardinality:   NewCardinalityLimiter(cfg.CardinalityLimits),
		breaker:       NewCircuitBreaker(cfg.CircuitBreaker, logger),
		globalTags:    renderTags(cfg.Tags),
		sampler:       sampler,
		buf:           newBuffer(cfg.BatchSize),
		spans:         newSpanRegistry(),
		logger:        logger,
		stats:         newClientStats(),
		jobs:          make(chan flushJob, cfg.QueueSize),
		quit:          make(chan struct{}),
		workerDone:    make(chan struct{}),
		startTime:     time.Now(),
	}
	if cfg.EnableMetadata {
		c.metadata = buildMetadata(cfg)
	}

	tp, mp := o.tracerProvider, o.meterProvider
	if cfg.OTelEnabled {
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
	}
	if tp != nil {
		c.tracer = tp.Tracer(instrumentationName)
	}
	if mp != nil {
		c.mirror = newMetricMirror(mp.Meter(instrumentationName))
	}

	go c.runWorker()
	c.startTimer(cfg.FlushInterval)

	logger.Info("Telemetry client started", map[string]interface{}{
		"environment":    cfg.Environment,
		"endpoint":       cfg.Endpoint,
		"transport":      fmt.Sprintf("%T", transport),
		"batch_size":     cfg.BatchSize,
		"flush_interval": cfg.FlushInterval.String(),
		"sample_rate":    cfg.SampleRate,
		"min_level":      string(cfg.MinLevel),
	})
	return c, nil
}

// buildTransport picks the transport Config describes: local logger, Redis
// or HTTP, the latter two wrapped in the retry decorator when
// RetryAttempts > 0.
func buildTransport(ctx context.Context, cfg Config, logger *TelemetryLogger) (Transport, error) {
	if cfg.LocalOnly {
		return NewLoggerTransport(logger), nil
	}

	var t Transport
	if cfg.RedisAddr != "" {
		rt, err := NewRedisTransport(ctx, cfg.RedisAddr, cfg.RedisKey, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		t = rt
	} else {
		t = NewHTTPTransport(HTTPTransportConfig{
			Endpoint:    cfg.Endpoint,
			APIKey:      cfg.APIKey,
			ProjectID:   cfg.ProjectID,
			Timeout:     cfg.Timeout,
			Compression: cfg.Compression,
		})
	}

	if cfg.RetryAttempts > 0 {
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.RetryAttempts + 1
		retry.Logger = logger
		t = NewRetryTransport(t, retry)
	}
	return t, nil
}

// transportChanged reports whether moving from a to b needs a new transport.
func transportChanged(a, b Config) bool {
	return a.Endpoint != b.Endpoint ||
		a.APIKey != b.APIKey ||
		a.ProjectID != b.ProjectID ||
		a.Timeout != b.Timeout ||
		a.Compression != b.Compression ||
		a.RetryAttempts != b.RetryAttempts ||
		a.LocalOnly != b.LocalOnly ||
		a.RedisAddr != b.RedisAddr ||
		a.RedisKey != b.RedisKey
}

// Configure retargets the client. The new settings are validated first; on
// error nothing changes. Buffered data is kept and goes out with the next
// flush under the new identity's transport.
func (c *Client) Configure(serviceName, environment string, opts ...Option) error {
	if c.closed.Load() {
		return &core.ContractError{Op: "Client.Configure", Kind: "state", Err: core.ErrClientClosed}
	}

	c.configureMu.Lock()
	defer c.configureMu.Unlock()

	c.mu.RLock()
	prev := c.cfg
	owns := c.ownsTransport
	c.mu.RUnlock()

	next := prev
	next.Tags = maps.Clone(prev.Tags)
	next.DropMetrics = slices.Clone(prev.DropMetrics)
	next.ExtraSensitiveKeys = slices.Clone(prev.ExtraSensitiveKeys)
	next.ServiceName = serviceName
	next.Environment = environment
	if err := next.apply(opts...); err != nil {
		return err
	}
	if err := next.normalize(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if owns {
		if err := next.validateCredentials(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	dropFilter, err := newMetricFilter(next.DropMetrics)
	if err != nil {
		return fmt.Errorf("invalid drop_metrics pattern: %w: %w", core.ErrInvalidConfiguration, err)
	}

	var newTransport Transport
	if owns && transportChanged(prev, next) {
		newTransport, err = buildTransport(context.Background(), next, c.logger)
		if err != nil {
			return err
		}
	}

	var metadata map[string]interface{}
	if next.EnableMetadata {
		metadata = buildMetadata(next)
	}

	c.mu.Lock()
	oldTransport := c.transport
	if newTransport != nil {
		c.transport = newTransport
	}
	var staleCardinality *CardinalityLimiter
	if !maps.Equal(prev.CardinalityLimits, next.CardinalityLimits) {
		staleCardinality = c.cardinality
		c.cardinality = NewCardinalityLimiter(next.CardinalityLimits)
	}
	if prev.CircuitBreaker != next.CircuitBreaker {
		c.breaker = NewCircuitBreaker(next.CircuitBreaker, c.logger)
	}
	c.cfg = next
	c.sanitizer = NewSanitizer(next.ExtraSensitiveKeys...)
	c.dropFilter = dropFilter
	c.metadata = metadata
	c.globalTags = renderTags(next.Tags)
	c.logConfig.ServiceName = next.ServiceName
	c.logConfig.Environment = next.Environment
	c.logConfig.MinLevel = next.MinLevel
	c.mu.Unlock()

	if newTransport != nil {
		c.retire(oldTransport)
	}
	staleCardinality.Stop()
	c.sampler.Update(next.MinLevel, next.SampleRate)
	c.buf.setBatchSize(next.BatchSize)
	c.startTimer(next.FlushInterval)

	c.logger.Info("Telemetry client reconfigured", map[string]interface{}{
		"service_name":      next.ServiceName,
		"environment":       next.Environment,
		"transport_rebuilt": newTransport != nil,
	})
	return nil
}

// Config returns a copy of the active configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg := c.cfg
	cfg.Tags = maps.Clone(c.cfg.Tags)
	return cfg
}

func (c *Client) ServiceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.ServiceName
}

func (c *Client) Environment() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Environment
}

func (c *Client) currentTransport() Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

func (c *Client) currentBreaker() *CircuitBreaker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breaker
}

func (c *Client) enqueueTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.EnqueueTimeout
}

// Stats returns a snapshot of the client's self-metrics.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// LogOption sets optional fields of a log entry.
type LogOption func(*logOptions)

type logOptions struct {
	component Component
	eventType EventType
	data      map[string]interface{}
	tags      []string
	traceID   string
}

// WithComponent sets the entry's component; the default is system.
func WithComponent(component Component) LogOption {
	return func(o *logOptions) { o.component = component }
}

// WithEventType sets the entry's event type; the default is system.
func WithEventType(eventType EventType) LogOption {
	return func(o *logOptions) { o.eventType = eventType }
}

// WithData attaches structured data. It is sanitized before buffering.
func WithData(data map[string]interface{}) LogOption {
	return func(o *logOptions) {
		if o.data == nil {
			o.data = make(map[string]interface{}, len(data))
		}
		maps.Copy(o.data, data)
	}
}

// WithField attaches a single data key.
func WithField(key string, value interface{}) LogOption {
	return func(o *logOptions) {
		if o.data == nil {
			o.data = make(map[string]interface{})
		}
		o.data[key] = value
	}
}

// WithEntryTags appends tags to the entry.
func WithEntryTags(tags ...string) LogOption {
	return func(o *logOptions) { o.tags = append(o.tags, tags...) }
}

// WithTraceID overrides the trace id taken from the context's span.
func WithTraceID(traceID string) LogOption {
	return func(o *logOptions) { o.traceID = traceID }
}

// Log records an entry at level. Entries are filtered by the LogConfig,
// then sampled, then sanitized and buffered. A critical entry also flushes
// synchronously before Log returns.
func (c *Client) Log(ctx context.Context, level LogLevel, message string, opts ...LogOption) {
	o := logOptions{component: ComponentSystem, eventType: EventSystem}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	c.log(ctx, level, message, o)
}

func (c *Client) Debug(ctx context.Context, message string, opts ...LogOption) {
	c.Log(ctx, LevelDebug, message, opts...)
}

func (c *Client) Info(ctx context.Context, message string, opts ...LogOption) {
	c.Log(ctx, LevelInfo, message, opts...)
}

func (c *Client) Warning(ctx context.Context, message string, opts ...LogOption) {
	c.Log(ctx, LevelWarning, message, opts...)
}

func (c *Client) Error(ctx context.Context, message string, opts ...LogOption) {
	c.Log(ctx, LevelError, message, opts...)
}

// Critical is never sampled out and is flushed before it returns.
func (c *Client) Critical(ctx context.Context, message string, opts ...LogOption) {
	c.Log(ctx, LevelCritical, message, opts...)
}

func (c *Client) log(ctx context.Context, level LogLevel, message string, o logOptions) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.closed.Load() {
		c.stats.callsAfterShutdown.Inc(1)
		return
	}
	if !level.Valid() {
		level = LevelInfo
	}
	critical := level == LevelCritical

	c.mu.RLock()
	lc := c.logConfig
	sanitizer := c.sanitizer
	service, environment := c.cfg.ServiceName, c.cfg.Environment
	globalTags := c.globalTags
	metadata := c.metadata
	c.mu.RUnlock()

	if !critical && !lc.accepts(o.component, o.eventType) {
		c.stats.logsFiltered.Inc(1)
		return
	}
	if !c.sampler.ShouldEmit(level, critical) {
		c.stats.logsSampledOut.Inc(1)
		return
	}

	data := o.data
	if len(lc.AdditionalFields) > 0 {
		data = make(map[string]interface{}, len(o.data)+len(lc.AdditionalFields))
		for k, v := range lc.AdditionalFields {
			data[k] = v
		}
		maps.Copy(data, o.data)
	}

	entry := LogEntry{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Component:   o.component,
		EventType:   o.eventType,
		Message:     message,
		Service:     service,
		Environment: environment,
		TraceID:     o.traceID,
		Metadata:    metadata,
	}
	if len(data) > 0 {
		entry.Data = sanitizer.Sanitize(data)
	}
	entry.Tags = joinTags(o.tags, globalTags, baggageTags(ctx))
	if span := SpanFromContext(ctx); span != nil {
		if entry.TraceID == "" {
			entry.TraceID = span.traceID
		}
		entry.SpanID = span.spanID
	}

	b, full, accepted := c.buf.addLog(entry)
	if !accepted {
		c.stats.callsAfterShutdown.Inc(1)
		return
	}
	c.stats.logsAccepted.Inc(1)
	if full {
		if critical {
			c.submit(ctx, b)
		} else {
			c.enqueue(b)
		}
	}
	if critical {
		c.flush(ctx)
	}
}

// SpanOption sets optional fields of a new span.
type SpanOption func(*spanOptions)

type spanOptions struct {
	data map[string]interface{}
	tags []string
}

// WithSpanData sets initial attributes; they are also logged with the
// span start entry.
func WithSpanData(data map[string]interface{}) SpanOption {
	return func(o *spanOptions) { o.data = data }
}

// WithSpanTags tags the span and its start entry.
func WithSpanTags(tags ...string) SpanOption {
	return func(o *spanOptions) { o.tags = append(o.tags, tags...) }
}

// StartSpan opens a span. If ctx carries a span, the new one joins its
// trace as a child; otherwise it starts a new trace. The returned context
// carries the new span and ctx itself is unchanged, so the caller's current
// span is back in effect as soon as it goes on using ctx.
func (c *Client) StartSpan(ctx context.Context, name string, component Component, eventType EventType, opts ...SpanOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	var o spanOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	var traceID, parentID string
	if parent := SpanFromContext(ctx); parent != nil {
		traceID, parentID = parent.traceID, parent.spanID
	}

	c.mu.RLock()
	sanitizer := c.sanitizer
	c.mu.RUnlock()

	s := newSpan(traceID, parentID, c.ServiceName(), name, component, eventType)
	s.logger = c.logger
	s.tags = append([]string(nil), o.tags...)
	if len(o.data) > 0 {
		maps.Copy(s.attributes, sanitizer.Sanitize(o.data))
	}

	ctx = c.startOTelSpan(ctx, s)
	c.spans.add(s)
	spanCtx := ContextWithSpan(ctx, s)

	// Caller data never overrides the span identifiers.
	data := make(map[string]interface{}, len(o.data)+3)
	maps.Copy(data, o.data)
	data["span_id"] = s.spanID
	data["trace_id"] = s.traceID
	if parentID != "" {
		data["parent_span_id"] = parentID
	}

	c.log(spanCtx, LevelDebug, "Start span: "+name, logOptions{
		component: component,
		eventType: eventType,
		data:      data,
		tags:      o.tags,
		traceID:   s.traceID,
	})
	return spanCtx, s
}

// EndOption sets optional fields when ending a span.
type EndOption func(*endOptions)

type endOptions struct {
	data         map[string]interface{}
	errorMessage string
}

// WithEndData merges trailing attributes into the span.
func WithEndData(data map[string]interface{}) EndOption {
	return func(o *endOptions) { o.data = data }
}

// WithErrorMessage records why an errored span failed.
func WithErrorMessage(msg string) EndOption {
	return func(o *endOptions) { o.errorMessage = msg }
}

// EndSpan closes span with status ok or error. It logs "End span: <name>"
// at DEBUG, or ERROR for an errored span, and removes the span from the
// active set. Ending a span twice, or one this client did not start,
// returns an error and logs a local warning; it never panics.
func (c *Client) EndSpan(span *Span, status SpanStatus, opts ...EndOption) error {
	if span == nil {
		return c.spanError("", "", core.ErrSpanNotFound)
	}
	if status != StatusOK && status != StatusError {
		return &core.ContractError{
			Op:      "Client.EndSpan",
			Kind:    "span",
			ID:      span.spanID,
			Message: fmt.Sprintf("status must be ok or error, got %q", status),
			Err:     core.ErrInvalidSpanStatus,
		}
	}

	var o endOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if !c.spans.contains(span) {
		if span.Ended() {
			return c.spanError(span.spanID, span.operationName, core.ErrSpanAlreadyEnded)
		}
		return c.spanError(span.spanID, span.operationName, core.ErrSpanNotFound)
	}

	c.mu.RLock()
	sanitizer := c.sanitizer
	c.mu.RUnlock()
	endData := sanitizer.Sanitize(o.data)

	now := time.Now().UTC()
	if !span.finish(status, o.errorMessage, endData, now) {
		return c.spanError(span.spanID, span.operationName, core.ErrSpanAlreadyEnded)
	}
	c.spans.remove(span)
	endOTelSpan(span, status, o.errorMessage, now)

	duration, _ := span.DurationMS()
	data := make(map[string]interface{}, len(o.data)+5)
	maps.Copy(data, o.data)
	data["span_id"] = span.spanID
	data["trace_id"] = span.traceID
	data["duration_ms"] = duration
	data["status"] = string(status)
	if o.errorMessage != "" {
		data["error_message"] = o.errorMessage
	}

	level := LevelDebug
	if status == StatusError {
		level = LevelError
	}
	c.log(ContextWithSpan(context.Background(), span), level, "End span: "+span.operationName, logOptions{
		component: span.component,
		eventType: span.eventType,
		data:      data,
		traceID:   span.traceID,
	})
	return nil
}

func (c *Client) spanError(spanID, operation string, sentinel error) error {
	c.logger.Warn("Span protocol violation", map[string]interface{}{
		"span_id":   spanID,
		"operation": operation,
		"error":     sentinel.Error(),
	})
	return &core.ContractError{Op: "Client.EndSpan", Kind: "span", ID: spanID, Err: sentinel}
}

// ActiveSpans returns the number of spans started and not yet ended.
func (c *Client) ActiveSpans() int {
	return c.spans.len()
}

// RecordMetric buffers one sample. The name is auto-registered as a gauge
// the first time it is seen. Global tags are merged in (call tags win),
// then sanitized and cardinality-limited.
func (c *Client) RecordMetric(ctx context.Context, name string, value float64, tags map[string]string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.closed.Load() {
		c.stats.callsAfterShutdown.Inc(1)
		return
	}

	c.mu.RLock()
	dropFilter := c.dropFilter
	sanitizer := c.sanitizer
	cardinality := c.cardinality
	service, environment := c.cfg.ServiceName, c.cfg.Environment
	globalTags := c.cfg.Tags
	c.mu.RUnlock()

	if dropFilter.drop(name) {
		c.stats.metricsDropped.Inc(1)
		return
	}

	var merged map[string]string
	if len(globalTags) > 0 || len(tags) > 0 {
		merged = make(map[string]string, len(globalTags)+len(tags))
		maps.Copy(merged, globalTags)
		maps.Copy(merged, tags)
		merged = cardinality.LimitTags(name, sanitizer.SanitizeTags(merged))
	}

	sample := MetricSample{
		Name:        name,
		Value:       value,
		Timestamp:   time.Now().UTC(),
		Service:     service,
		Environment: environment,
		Tags:        merged,
	}
	b, full, accepted := c.buf.addMetric(sample)
	if !accepted {
		c.stats.callsAfterShutdown.Inc(1)
		return
	}
	c.stats.metricsAccepted.Inc(1)

	if c.mirror != nil {
		if d, ok := c.buf.descriptor(name); ok {
			if err := c.mirror.record(ctx, d, value, merged); err != nil {
				c.logger.Debug("Failed to mirror metric", map[string]interface{}{
					"metric": name,
					"error":  err.Error(),
				})
			}
		}
	}

	if full {
		c.enqueue(b)
	}
}

// RegisterMetric registers or replaces a metric descriptor.
func (c *Client) RegisterMetric(desc MetricDescriptor) error {
	if err := configValidator().Struct(desc); err != nil {
		return &core.ContractError{
			Op:      "Client.RegisterMetric",
			Kind:    "metric",
			ID:      desc.Name,
			Message: err.Error(),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	c.buf.registerMetric(desc)
	return nil
}

// GetMetrics returns registered descriptors whose fields equal every filter
// value, sorted by name. A nil or empty filter returns all of them.
func (c *Client) GetMetrics(filter map[string]string) []MetricDescriptor {
	return c.buf.metricDescriptors(filter)
}

// GetLogConfig returns a copy of the active log configuration.
func (c *Client) GetLogConfig() LogConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneLogConfig(c.logConfig)
}

// UpdateLogConfig replaces the include/exclude filters and, when set, the
// minimum level. The change is logged as a system event. CRITICAL entries
// bypass the filters.
func (c *Client) UpdateLogConfig(lc LogConfig) (LogConfig, error) {
	if lc.MinLevel != "" {
		lvl, err := ParseLogLevel(string(lc.MinLevel))
		if err != nil {
			return LogConfig{}, &core.ContractError{
				Op:      "Client.UpdateLogConfig",
				Kind:    "config",
				Message: err.Error(),
				Err:     core.ErrInvalidConfiguration,
			}
		}
		lc.MinLevel = lvl
	}

	c.mu.Lock()
	if lc.ServiceName == "" {
		lc.ServiceName = c.cfg.ServiceName
	}
	if lc.Environment == "" {
		lc.Environment = c.cfg.Environment
	}
	if lc.MinLevel == "" {
		lc.MinLevel = c.logConfig.MinLevel
	} else {
		c.cfg.MinLevel = lc.MinLevel
	}
	c.logConfig = cloneLogConfig(lc)
	rate := c.cfg.SampleRate
	c.mu.Unlock()

	c.sampler.Update(lc.MinLevel, rate)
	c.Info(context.Background(), "Log configuration updated", WithData(map[string]interface{}{
		"service_name": lc.ServiceName,
		"environment":  lc.Environment,
		"min_level":    string(lc.MinLevel),
	}))
	return cloneLogConfig(lc), nil
}

func cloneLogConfig(lc LogConfig) LogConfig {
	lc.IncludeComponents = append([]Component(nil), lc.IncludeComponents...)
	lc.ExcludeComponents = append([]Component(nil), lc.ExcludeComponents...)
	lc.IncludeEventTypes = append([]EventType(nil), lc.IncludeEventTypes...)
	lc.ExcludeEventTypes = append([]EventType(nil), lc.ExcludeEventTypes...)
	lc.AdditionalFields = maps.Clone(lc.AdditionalFields)
	return lc
}

// renderTags turns a tag map into sorted "key:value" strings.
func renderTags(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}

func joinTags(groups ...[]string) []string {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// typeName returns the name used for a receiver in traced method names.
func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
