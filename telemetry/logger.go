package telemetry

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itsneelabh/agentcontracts/core"
)

// TelemetryLogger is the client's local logger. It reports transport
// failures, span protocol violations and lifecycle changes to the process's
// own output and never feeds back into the telemetry buffers, so a broken
// collector cannot cause a logging loop.
//
// Configuration priority:
//  1. SetLevel / SetFormat / SetOutput (highest)
//  2. Environment variables (LOGFIRE_LOG_LEVEL, LOGFIRE_DEBUG, LOGFIRE_LOG_FORMAT)
//  3. Auto-detection (JSON inside Kubernetes)
//  4. Defaults: INFO, text, stderr
type TelemetryLogger struct {
	serviceName string
	mu          sync.RWMutex
	log         *logrus.Logger

	// Rate limiting to prevent log flooding while the collector is down
	errorLimiter *RateLimiter
}

var _ core.Logger = (*TelemetryLogger)(nil)

var (
	defaultLogger     *TelemetryLogger
	defaultLoggerOnce sync.Once
)

// NewTelemetryLogger creates a logger tagged with serviceName.
func NewTelemetryLogger(serviceName string) *TelemetryLogger {
	level := os.Getenv("LOGFIRE_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	if os.Getenv("LOGFIRE_DEBUG") == "true" {
		level = "debug"
	}

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json" // Use JSON in K8s for log aggregation
	}
	if envFormat := os.Getenv("LOGFIRE_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	l := &TelemetryLogger{
		serviceName:  serviceName,
		log:          logrus.New(),
		errorLimiter: NewRateLimiter(time.Second),
	}
	l.log.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormat(format)
	return l
}

// GetLogger returns the package logger used by components that are not
// owned by a Client.
func GetLogger() *TelemetryLogger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = NewTelemetryLogger("telemetry")
	})
	return defaultLogger
}

func (l *TelemetryLogger) Info(msg string, fields map[string]interface{}) {
	l.entry(fields).Info(msg)
}

func (l *TelemetryLogger) Warn(msg string, fields map[string]interface{}) {
	l.entry(fields).Warn(msg)
}

// Error logs at most one message per limiter interval. Suppressed messages
// are dropped, not queued.
func (l *TelemetryLogger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.entry(fields).Error(msg)
}

func (l *TelemetryLogger) Debug(msg string, fields map[string]interface{}) {
	l.entry(fields).Debug(msg)
}

func (l *TelemetryLogger) entry(fields map[string]interface{}) *logrus.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := l.log.WithFields(logrus.Fields{
		"service":   l.serviceName,
		"component": "telemetry",
	})
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}

// SetLevel accepts logrus level names plus "warning"/"critical".
func (l *TelemetryLogger) SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		if strings.EqualFold(level, "critical") {
			lvl = logrus.ErrorLevel
		} else {
			lvl = logrus.InfoLevel
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.SetLevel(lvl)
}

// SetFormat switches between "json" and "text" output.
func (l *TelemetryLogger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.EqualFold(format, "json") {
		l.log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return
	}
	l.log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   true,
	})
}

// SetOutput changes the output writer (useful for testing)
func (l *TelemetryLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.SetOutput(w)
}
