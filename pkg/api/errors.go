package api

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound is returned when a workflow definition is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound is returned when an execution is not found.
	ErrExecutionNotFound = errors.New("execution not found")
)

// ErrorKind is the closed classification used to decide retryability.
type ErrorKind string

const (
	ErrTimeout    ErrorKind = "timeout"
	ErrNetwork    ErrorKind = "network_error"
	ErrRateLimit  ErrorKind = "rate_limit"
	ErrServer     ErrorKind = "server_error"
	ErrAuth       ErrorKind = "auth_error"
	ErrValidation ErrorKind = "validation_error"
	ErrNotFound   ErrorKind = "not_found"
	ErrUnknown    ErrorKind = "unknown_error"
)

// HTTPError carries an HTTP status code through handler failures so the
// classifier can decide on the code rather than on message text.
//
// Status is the full status line text, e.g. "503 Service Unavailable".
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected response status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected response status: %d", e.StatusCode)
}

// StatusCoder is implemented by errors that carry an HTTP-like status code.
// HTTPError implements it; handler authors can implement it on their own
// error types to get code-based classification instead of string matching.
type StatusCoder interface {
	HTTPStatusCode() int
}

// HTTPStatusCode implements StatusCoder.
func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }
