package core

// Logger is the structured logger shared packages write their own
// diagnostics to. Fields are flat key/value pairs; implementations decide
// the output format.
//
// telemetry.TelemetryLogger implements it. Code in this module never routes
// Logger output into the telemetry buffers.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NoOpLogger discards everything. It is the default wherever a Logger is
// optional.
type NoOpLogger struct{}

var _ Logger = (*NoOpLogger)(nil)

func (*NoOpLogger) Debug(string, map[string]interface{}) {}
func (*NoOpLogger) Info(string, map[string]interface{})  {}
func (*NoOpLogger) Warn(string, map[string]interface{})  {}
func (*NoOpLogger) Error(string, map[string]interface{}) {}
