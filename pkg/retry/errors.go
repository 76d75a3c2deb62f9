package retry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is returned when a Policy is constructed with invalid settings.
	ErrInvalidConfiguration = errors.New("retry: invalid configuration")
	// ErrRetriesExhausted matches every *RetriesExhaustedError via errors.Is.
	ErrRetriesExhausted = errors.New("retry: retries exhausted")
	// ErrCanceled matches every *CancellationError via errors.Is.
	ErrCanceled = errors.New("retry: call canceled")

	errNilOperation = errors.New("retry: operation is required")
)

// TransportError reports a network-level failure such as a refused connection or timeout.
// Whether it is retried is decided solely by the policy predicate.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}

	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError reports a failure response from the remote service.
type RemoteError struct {
	StatusCode   int
	Code         string
	Message      string
	OpcRequestID string
	Err          error
}

func (e *RemoteError) Error() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "remote: status %d", e.StatusCode)

	if e.Code != "" {
		fmt.Fprintf(&builder, " (%s)", e.Code)
	}

	if e.Message != "" {
		fmt.Fprintf(&builder, ": %s", e.Message)
	}

	if e.OpcRequestID != "" {
		fmt.Fprintf(&builder, " [opc-request-id %s]", e.OpcRequestID)
	}

	return builder.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// GetHTTPStatusCode mirrors the OCI SDK ServiceError accessor so predicates can treat both alike.
func (e *RemoteError) GetHTTPStatusCode() int {
	return e.StatusCode
}

// GetCode returns the service error code, for example "TooManyRequests".
func (e *RemoteError) GetCode() string {
	return e.Code
}

// RetriesExhaustedError is returned when a retryable failure persists past the attempt cap.
// Err holds the last underlying error.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retry: retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// CancellationError is returned when the caller's context ends before the call completes.
// Unwrap yields the context error; Last holds the most recent operation failure, if any.
type CancellationError struct {
	Attempts int
	Err      error
	Last     error
}

func (e *CancellationError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("retry: call canceled after %d attempts: %v", e.Attempts, e.Err)
	}

	return fmt.Sprintf(
		"retry: call canceled after %d attempts: %v (last error: %v)",
		e.Attempts,
		e.Err,
		e.Last,
	)
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}

func (e *CancellationError) Is(target error) bool {
	return target == ErrCanceled
}

type statusCoder interface {
	GetHTTPStatusCode() int
}

// StatusCode extracts the HTTP status carried by err, if any error in its chain exposes one.
func StatusCode(err error) (int, bool) {
	var coder statusCoder
	if !errors.As(err, &coder) {
		return 0, false
	}

	return coder.GetHTTPStatusCode(), true
}

type serviceCoder interface {
	GetCode() string
}

// ServiceCode extracts the service error code carried by err, if any.
func ServiceCode(err error) (string, bool) {
	var coder serviceCoder
	if !errors.As(err, &coder) {
		return "", false
	}

	return coder.GetCode(), true
}

// IsTransport reports whether err wraps a *TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError

	return errors.As(err, &transportErr)
}
