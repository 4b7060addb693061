package vmedia

import (
	"errors"
	"fmt"
	"time"
)

// TransportReason classifies a TransportError.
type TransportReason string

const (
	// Unreachable covers dial, TLS and timeout failures.
	Unreachable TransportReason = "unreachable"
	// AuthFailed is a 401 or 403 from the management endpoint.
	AuthFailed TransportReason = "auth_failed"
)

// TransportError is returned when the management endpoint could not be talked to.
type TransportError struct {
	Reason TransportReason
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Reason, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is an unexpected status code from a read or a mutation.
type ProtocolError struct {
	Method     string
	Path       string
	StatusCode int
	// Body is the response body text. Only populated for POST.
	Body string
}

func (e *ProtocolError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s failed: %d - %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %d", e.Method, e.Path, e.StatusCode)
}

// ResourceNotFoundError is returned when a required remote resource does not exist.
type ResourceNotFoundError struct {
	Resource string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("no %s found", e.Resource)
}

// TimeoutError is returned when a polling wait exceeded its budget.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s did not complete within %s", e.Op, e.After)
}

// ConfigurationError is returned for missing or invalid configuration.
type ConfigurationError struct {
	Name   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Name == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Name, e.Reason)
}

// IsNotFound reports whether err is or wraps a ResourceNotFoundError.
func IsNotFound(err error) bool {
	var nf *ResourceNotFoundError
	return errors.As(err, &nf)
}
