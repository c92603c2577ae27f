// Package agentcontracts holds the shared contracts of the agent platform.
// The telemetry subpackage is the LogFire client every service uses to ship
// logs, metrics and spans; core carries the shared errors and the logger
// interface; resilience carries the retry decorator.
package agentcontracts

// Version information for the agent platform contracts
const (
	// Version is the current contracts version
	Version = "development"

	// APIVersion is the collector API version the telemetry client speaks
	APIVersion = "v1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
