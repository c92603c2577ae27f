package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/itsneelabh/agentcontracts/core"
)

const (
	DefaultEndpoint       = "https://api.logfire.sh/v1"
	DefaultBatchSize      = 100
	DefaultFlushInterval  = 5 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultRetryAttempts  = 3
	DefaultQueueSize      = 16
	DefaultEnqueueTimeout = time.Second
)

// Config configures a telemetry Client.
//
// Values are resolved in this order (later wins):
//  1. DefaultConfig
//  2. Profile (optional)
//  3. Config file (LoadFromFile)
//  4. Environment variables (LoadFromEnv)
//  5. Functional options
//
// New validates the final result and refuses to build a client from an
// invalid config.
type Config struct {
	// Identity
	ServiceName string `json:"service_name" yaml:"service_name" env:"LOGFIRE_SERVICE_NAME" validate:"required"`
	Environment string `json:"environment" yaml:"environment" env:"ENVIRONMENT" validate:"required"`

	// Collector
	APIKey    string `json:"-" yaml:"api_key" env:"LOGFIRE_WRITE_TOKEN"`
	ProjectID string `json:"project_id,omitempty" yaml:"project_id" env:"LOGFIRE_PROJECT_ID"`
	Endpoint  string `json:"endpoint" yaml:"endpoint" env:"LOGFIRE_ENDPOINT" validate:"required,url"`

	// Filtering and sampling
	MinLevel   LogLevel `json:"min_level" yaml:"min_level" env:"LOGFIRE_MIN_LEVEL" validate:"oneof=debug info warning error critical"`
	SampleRate float64  `json:"sample_rate" yaml:"sample_rate" env:"LOGFIRE_SAMPLE_RATE" validate:"gte=0,lte=1"`

	// Batching
	BatchSize      int           `json:"batch_size" yaml:"batch_size" env:"LOGFIRE_BATCH_SIZE" validate:"min=1"`
	FlushInterval  time.Duration `json:"flush_interval" yaml:"flush_interval" env:"LOGFIRE_FLUSH_INTERVAL" validate:"gt=0"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout" env:"LOGFIRE_TIMEOUT" validate:"gt=0"`
	RetryAttempts  int           `json:"retry_attempts" yaml:"retry_attempts" env:"LOGFIRE_RETRY_ATTEMPTS" validate:"min=0"`
	QueueSize      int           `json:"queue_size" yaml:"queue_size" env:"LOGFIRE_QUEUE_SIZE" validate:"min=1"`
	EnqueueTimeout time.Duration `json:"enqueue_timeout" yaml:"enqueue_timeout" env:"LOGFIRE_ENQUEUE_TIMEOUT" validate:"gt=0"`
	Compression    string        `json:"compression" yaml:"compression" env:"LOGFIRE_COMPRESSION" validate:"oneof=none gzip"`

	// Enrichment
	Tags               map[string]string `json:"tags,omitempty" yaml:"tags" env:"LOGFIRE_TAGS"`
	EnableMetadata     bool              `json:"enable_metadata" yaml:"enable_metadata" env:"LOGFIRE_ENABLE_METADATA"`
	AdditionalMetadata map[string]string `json:"additional_metadata,omitempty" yaml:"additional_metadata"`

	// Privacy and volume control
	ExtraSensitiveKeys []string       `json:"extra_sensitive_keys,omitempty" yaml:"extra_sensitive_keys" env:"LOGFIRE_SENSITIVE_KEYS"`
	DropMetrics        []string       `json:"drop_metrics,omitempty" yaml:"drop_metrics" env:"LOGFIRE_DROP_METRICS"`
	CardinalityLimits  map[string]int `json:"cardinality_limits,omitempty" yaml:"cardinality_limits"`
	CircuitBreaker     CircuitConfig  `json:"circuit_breaker" yaml:"circuit_breaker"`

	// LocalOnly keeps the whole pipeline but writes batches to the local
	// logger instead of the network. No API key is needed.
	LocalOnly bool `json:"local_only" yaml:"local_only" env:"LOGFIRE_LOCAL_ONLY"`

	// Redis transport (used instead of HTTP when RedisAddr is set)
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr" env:"LOGFIRE_REDIS_ADDR"`
	RedisKey  string `json:"redis_key,omitempty" yaml:"redis_key" env:"LOGFIRE_REDIS_KEY"`

	// OTelEnabled mirrors spans and metrics into the global OpenTelemetry providers.
	OTelEnabled bool `json:"otel_enabled" yaml:"otel_enabled" env:"LOGFIRE_OTEL_ENABLED"`
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		Environment:    "development",
		Endpoint:       DefaultEndpoint,
		MinLevel:       LevelInfo,
		SampleRate:     1.0,
		BatchSize:      DefaultBatchSize,
		FlushInterval:  DefaultFlushInterval,
		Timeout:        DefaultTimeout,
		RetryAttempts:  DefaultRetryAttempts,
		QueueSize:      DefaultQueueSize,
		EnqueueTimeout: DefaultEnqueueTimeout,
		Compression:    "none",
		EnableMetadata: true,
		RedisKey:       "logfire",
	}
}

// Profile represents a pre-configured telemetry profile
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileStaging     Profile = "staging"
	ProfileProduction  Profile = "production"
)

// Profiles contains pre-configured telemetry profiles. They only set the
// fields that differ from DefaultConfig.
var Profiles = map[Profile]Config{
	ProfileDevelopment: {
		MinLevel:      LevelDebug,
		SampleRate:    1.0,
		BatchSize:     10,
		FlushInterval: 2 * time.Second,
	},
	ProfileStaging: {
		MinLevel:      LevelInfo,
		SampleRate:    0.5,
		BatchSize:     50,
		FlushInterval: 5 * time.Second,
		CircuitBreaker: CircuitConfig{
			Enabled:      true,
			MaxFailures:  10,
			RecoveryTime: 15 * time.Second,
		},
	},
	ProfileProduction: {
		MinLevel:      LevelInfo,
		SampleRate:    0.1,
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		Compression:   "gzip",
		CircuitBreaker: CircuitConfig{
			Enabled:      true,
			MaxFailures:  10,
			RecoveryTime: 30 * time.Second,
			HalfOpenMax:  5,
		},
		CardinalityLimits: map[string]int{
			"agent_id":   100,
			"api_name":   50,
			"operation":  200,
			"service_id": 100,
		},
	},
}

// UseProfile returns DefaultConfig with the named profile applied.
// Unknown profiles fall back to development.
func UseProfile(profile Profile) Config {
	p, ok := Profiles[profile]
	if !ok {
		p = Profiles[ProfileDevelopment]
	}
	cfg := DefaultConfig().WithOverrides(p)
	cfg.Environment = string(profile)
	if !ok {
		cfg.Environment = string(ProfileDevelopment)
	}
	return cfg
}

// WithOverrides applies the non-zero fields of overrides to a copy of c.
func (c Config) WithOverrides(overrides Config) Config {
	if overrides.ServiceName != "" {
		c.ServiceName = overrides.ServiceName
	}
	if overrides.Environment != "" {
		c.Environment = overrides.Environment
	}
	if overrides.APIKey != "" {
		c.APIKey = overrides.APIKey
	}
	if overrides.ProjectID != "" {
		c.ProjectID = overrides.ProjectID
	}
	if overrides.Endpoint != "" {
		c.Endpoint = overrides.Endpoint
	}
	if overrides.MinLevel != "" {
		c.MinLevel = overrides.MinLevel
	}
	if overrides.SampleRate > 0 {
		c.SampleRate = overrides.SampleRate
	}
	if overrides.BatchSize > 0 {
		c.BatchSize = overrides.BatchSize
	}
	if overrides.FlushInterval > 0 {
		c.FlushInterval = overrides.FlushInterval
	}
	if overrides.Timeout > 0 {
		c.Timeout = overrides.Timeout
	}
	if overrides.RetryAttempts > 0 {
		c.RetryAttempts = overrides.RetryAttempts
	}
	if overrides.QueueSize > 0 {
		c.QueueSize = overrides.QueueSize
	}
	if overrides.EnqueueTimeout > 0 {
		c.EnqueueTimeout = overrides.EnqueueTimeout
	}
	if overrides.Compression != "" {
		c.Compression = overrides.Compression
	}
	if overrides.Tags != nil {
		c.Tags = overrides.Tags
	}
	if overrides.AdditionalMetadata != nil {
		c.AdditionalMetadata = overrides.AdditionalMetadata
	}
	if len(overrides.ExtraSensitiveKeys) > 0 {
		c.ExtraSensitiveKeys = overrides.ExtraSensitiveKeys
	}
	if len(overrides.DropMetrics) > 0 {
		c.DropMetrics = overrides.DropMetrics
	}
	if overrides.CardinalityLimits != nil {
		c.CardinalityLimits = overrides.CardinalityLimits
	}
	if overrides.CircuitBreaker.Enabled {
		c.CircuitBreaker = overrides.CircuitBreaker
	}
	if overrides.LocalOnly {
		c.LocalOnly = true
	}
	if overrides.RedisAddr != "" {
		c.RedisAddr = overrides.RedisAddr
	}
	if overrides.RedisKey != "" {
		c.RedisKey = overrides.RedisKey
	}
	if overrides.OTelEnabled {
		c.OTelEnabled = true
	}
	return c
}

// LoadFromEnv overlays LOGFIRE_* variables (plus ENVIRONMENT) onto c.
// Unset variables leave the current value untouched.
func (c *Config) LoadFromEnv(ctx context.Context) error {
	return c.loadFromLookuper(ctx, envconfig.OsLookuper())
}

func (c *Config) loadFromLookuper(ctx context.Context, l envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           c,
		Lookuper:         l,
		DefaultOverwrite: true,
	}); err != nil {
		return &core.ContractError{
			Op:      "Config.LoadFromEnv",
			Kind:    "config",
			Message: err.Error(),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	return c.normalize()
}

// LoadFromFile overlays a YAML or JSON file onto c. JSON is valid YAML, so
// both go through the YAML decoder.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, core.ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &core.ContractError{
			Op:      "Config.LoadFromFile",
			Kind:    "config",
			ID:      cleanPath,
			Message: err.Error(),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	return c.normalize()
}

// normalize canonicalizes free-form fields after loading.
func (c *Config) normalize() error {
	if c.MinLevel != "" {
		lvl, err := ParseLogLevel(string(c.MinLevel))
		if err != nil {
			return &core.ContractError{
				Op:      "Config.normalize",
				Kind:    "config",
				Message: err.Error(),
				Err:     core.ErrInvalidConfiguration,
			}
		}
		c.MinLevel = lvl
	}
	c.Compression = strings.ToLower(c.Compression)
	return nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks every field rule and reports the first violation.
func (c Config) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("config validation: %w: %v", core.ErrInvalidConfiguration, err)
	}

	fe := verrs[0]
	sentinel := core.ErrInvalidConfiguration
	if fe.Tag() == "required" {
		sentinel = core.ErrMissingConfiguration
	}
	return &core.ContractError{
		Op:      "Config.Validate",
		Kind:    "config",
		Message: validationMessage(fe),
		Err:     sentinel,
	}
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch field {
	case "batch_size":
		return "batch_size must be at least 1"
	case "sample_rate":
		return "sample_rate must be between 0.0 and 1.0"
	case "retry_attempts":
		return "retry_attempts must be non-negative"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be positive"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "url":
		return field + " must be a valid URL"
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

// validateCredentials enforces that a network transport has an API key.
func (c Config) validateCredentials() error {
	if c.LocalOnly || c.RedisAddr != "" || c.APIKey != "" {
		return nil
	}
	return &core.ContractError{
		Op:      "Config.Validate",
		Kind:    "config",
		Message: "api_key is required unless local_only is set",
		Err:     core.ErrMissingConfiguration,
	}
}

// Option configures a Config
type Option func(*Config) error

// WithAPIKey sets the bearer token sent to the collector.
func WithAPIKey(key string) Option {
	return func(c *Config) error {
		c.APIKey = key
		return nil
	}
}

// WithProjectID sets the X-LogFire-Project header value.
func WithProjectID(id string) Option {
	return func(c *Config) error {
		c.ProjectID = id
		return nil
	}
}

// WithEndpoint sets the collector base URL; /logs and /metrics are appended.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Endpoint = strings.TrimRight(endpoint, "/")
		return nil
	}
}

// WithMinLevel sets the lowest level that is kept.
func WithMinLevel(level string) Option {
	return func(c *Config) error {
		lvl, err := ParseLogLevel(level)
		if err != nil {
			return &core.ContractError{Op: "WithMinLevel", Kind: "config", Message: err.Error(), Err: core.ErrInvalidConfiguration}
		}
		c.MinLevel = lvl
		return nil
	}
}

func WithBatchSize(n int) Option {
	return func(c *Config) error {
		c.BatchSize = n
		return nil
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.FlushInterval = d
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.Timeout = d
		return nil
	}
}

// WithRetryAttempts sets how many times a failed send is retried. Zero
// disables the retry wrapper.
func WithRetryAttempts(n int) Option {
	return func(c *Config) error {
		c.RetryAttempts = n
		return nil
	}
}

func WithSampleRate(rate float64) Option {
	return func(c *Config) error {
		c.SampleRate = rate
		return nil
	}
}

// WithTags sets static tags added to every log entry and metric sample.
func WithTags(tags map[string]string) Option {
	return func(c *Config) error {
		c.Tags = tags
		return nil
	}
}

// WithMetadata toggles host/runtime metadata on log entries.
func WithMetadata(enabled bool, additional map[string]string) Option {
	return func(c *Config) error {
		c.EnableMetadata = enabled
		if additional != nil {
			c.AdditionalMetadata = additional
		}
		return nil
	}
}

// WithLocalOnly routes batches to the local logger. Useful in tests and on
// developer machines without collector credentials.
func WithLocalOnly(enabled bool) Option {
	return func(c *Config) error {
		c.LocalOnly = enabled
		return nil
	}
}

// WithQueue sizes the transport job queue and how long a size-triggered
// batch may wait for room in it.
func WithQueue(size int, enqueueTimeout time.Duration) Option {
	return func(c *Config) error {
		c.QueueSize = size
		if enqueueTimeout > 0 {
			c.EnqueueTimeout = enqueueTimeout
		}
		return nil
	}
}

// WithCompression selects "none" or "gzip" request bodies.
func WithCompression(algo string) Option {
	return func(c *Config) error {
		c.Compression = strings.ToLower(algo)
		return nil
	}
}

// WithDropMetrics drops metric samples whose name matches any glob pattern.
func WithDropMetrics(patterns ...string) Option {
	return func(c *Config) error {
		c.DropMetrics = append(c.DropMetrics, patterns...)
		return nil
	}
}

// WithSensitiveKeys adds key substrings to the redaction list.
func WithSensitiveKeys(keys ...string) Option {
	return func(c *Config) error {
		c.ExtraSensitiveKeys = append(c.ExtraSensitiveKeys, keys...)
		return nil
	}
}

func WithCircuitBreaker(cfg CircuitConfig) Option {
	return func(c *Config) error {
		c.CircuitBreaker = cfg
		return nil
	}
}

// WithCardinalityLimits caps distinct values per metric tag key.
func WithCardinalityLimits(limits map[string]int) Option {
	return func(c *Config) error {
		c.CardinalityLimits = limits
		return nil
	}
}

// WithRedis ships batches to a Redis list instead of the HTTP collector.
func WithRedis(addr, key string) Option {
	return func(c *Config) error {
		c.RedisAddr = addr
		if key != "" {
			c.RedisKey = key
		}
		return nil
	}
}

// WithOTel mirrors spans and metrics into the global OpenTelemetry providers.
func WithOTel(enabled bool) Option {
	return func(c *Config) error {
		c.OTelEnabled = enabled
		return nil
	}
}

// WithProfile applies a profile on top of the current values.
func WithProfile(p Profile) Option {
	return func(c *Config) error {
		prof, ok := Profiles[p]
		if !ok {
			return &core.ContractError{
				Op:      "WithProfile",
				Kind:    "config",
				Message: fmt.Sprintf("unknown profile %q", p),
				Err:     core.ErrInvalidConfiguration,
			}
		}
		*c = c.WithOverrides(prof)
		return nil
	}
}

// WithConfigFile loads a YAML or JSON file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig builds a validated Config from defaults, environment and options.
func NewConfig(ctx context.Context, opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(ctx); err != nil {
		return Config{}, fmt.Errorf("failed to load env config: %w", err)
	}
	if err := cfg.apply(opts...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return nil
}
