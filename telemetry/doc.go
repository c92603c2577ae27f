/*
Package telemetry is the LogFire client used by agent platform services.

A Client accepts log entries, metric samples and spans, buffers them and
ships them to the LogFire collector in batches. It never blocks a caller on
the network, except for CRITICAL entries, which are flushed before the call
returns.

Pipeline:

 1. Filter - LogConfig include/exclude lists, then the level threshold
 2. Sample - probabilistic sampling; CRITICAL entries always pass
 3. Sanitize - keys that look like secrets are replaced with "***REDACTED***"
 4. Buffer - logs and metrics are buffered separately up to BatchSize
 5. Ship - a single worker sends batches; a failed batch is logged and dropped

Thread Safety:

All Client methods are safe for concurrent use. The current span travels
in context.Context, so concurrent requests never see each other's spans.

Usage:

	client, err := telemetry.Setup(ctx, "planner", "production")
	if err != nil {
	    return err
	}
	defer client.Shutdown(context.Background())

	client.Info(ctx, "Plan accepted", telemetry.WithComponent(telemetry.ComponentAgentCore))
	client.RecordMetric(ctx, "plans.accepted", 1, map[string]string{"tier": "gold"})

	err = telemetry.Trace(ctx, client, "plan.execute", telemetry.ComponentAgentCore, telemetry.EventRequest,
	    func(ctx context.Context) error {
	        return execute(ctx, plan)
	    })

Transports:

The collector is reached over HTTP by default. LocalOnly writes batches to
the local logger instead, and RedisAddr pushes them onto Redis lists for a
sidecar to forward. RetryAttempts wraps either network transport with
retries, and CircuitBreaker stops sending while the collector is down.

Configuration Profiles:

  - ProfileDevelopment: debug level, full sampling, small batches
  - ProfileStaging: half sampling, circuit breaker enabled
  - ProfileProduction: 10% sampling, gzip, circuit breaker, cardinality limits
*/
package telemetry
