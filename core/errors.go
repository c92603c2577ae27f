package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// State errors
	ErrNotInitialized = errors.New("not initialized")
	ErrClientClosed   = errors.New("client closed")

	// Operation errors
	ErrNotImplemented     = errors.New("not implemented")
	ErrTimeout            = errors.New("operation timeout")
	ErrContextCanceled    = errors.New("context canceled")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrQueueFull          = errors.New("queue full")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")
	ErrCircuitOpen      = errors.New("circuit breaker is open")

	// Span protocol errors
	ErrSpanNotFound      = errors.New("span not found")
	ErrSpanAlreadyEnded  = errors.New("span already ended")
	ErrInvalidSpanStatus = errors.New("invalid span status")
)

// ContractError provides structured error information with context
// It implements the error interface and supports error wrapping
type ContractError struct {
	Op      string // Operation that failed (e.g., "telemetry.EndSpan")
	Kind    string // Error kind (e.g., "span", "transport", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *ContractError) Error() string {
	if e.Op != "" && e.Err != nil {
		switch {
		case e.ID != "" && e.Message != "":
			return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.ID, e.Message, e.Err)
		case e.ID != "":
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		case e.Message != "":
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *ContractError) Unwrap() error {
	return e.Err
}

// NewContractError creates a new ContractError
func NewContractError(op, kind string, err error) *ContractError {
	return &ContractError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable
// Retryable errors are typically transient network or availability issues
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsNotImplemented reports whether err marks a remote operation the client
// does not perform itself.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsSpanError checks if an error is a span protocol violation
func IsSpanError(err error) bool {
	return errors.Is(err, ErrSpanNotFound) ||
		errors.Is(err, ErrSpanAlreadyEnded) ||
		errors.Is(err, ErrInvalidSpanStatus)
}

// IsStateError checks if an error is related to client lifecycle
func IsStateError(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrClientClosed)
}
