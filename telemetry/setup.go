package telemetry

import (
	"context"
	"fmt"
)

// Setup builds a client for serviceName in environment. Defaults come from
// DefaultConfig and the LOGFIRE_* environment; opts win over both.
//
//	client, err := telemetry.Setup(ctx, "planner", "production",
//	    telemetry.WithProfile(telemetry.ProfileProduction))
//	if err != nil {
//	    return err
//	}
//	defer client.Shutdown(context.Background())
func Setup(ctx context.Context, serviceName, environment string, opts ...Option) (*Client, error) {
	identity := func(c *Config) error {
		c.ServiceName = serviceName
		c.Environment = environment
		return nil
	}
	return SetupFromEnv(ctx, append([]Option{identity}, opts...)...)
}

// SetupFromEnv builds a client entirely from LOGFIRE_* variables, with opts
// applied on top. LOGFIRE_SERVICE_NAME is required unless an option sets
// the service name.
func SetupFromEnv(ctx context.Context, opts ...Option) (*Client, error) {
	cfg, err := NewConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start telemetry client: %w", err)
	}
	return client, nil
}
