package shadow

import (
	"errors"
	"fmt"
	"time"
)

// Domain-specific errors for shadow operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned synchronously when a request is issued
	// while the session is disconnected.
	ErrNotConnected = errors.New("shadow: session not connected")

	// ErrRequestTimeout is returned to a caller whose request received no
	// accepted/rejected response within its deadline.
	ErrRequestTimeout = errors.New("shadow: request timed out")

	// ErrRequestSuperseded is returned to the caller of an earlier request
	// when a newer request for the same device and operation preempts it.
	ErrRequestSuperseded = errors.New("shadow: request superseded")

	// ErrDisconnected is returned to callers whose requests were pending
	// when the session disconnected.
	ErrDisconnected = errors.New("shadow: session disconnected")

	// ErrCircuitOpen indicates connect attempts are being suppressed after
	// repeated failures. Wrapped by CircuitOpenError.
	ErrCircuitOpen = errors.New("shadow: circuit breaker open")

	// ErrCredentialFetch wraps failures of the external credential supplier.
	// Counts as a connect failure for circuit-breaker purposes.
	ErrCredentialFetch = errors.New("shadow: credential fetch failed")

	// ErrConnectFailed wraps transport-level handshake failures.
	ErrConnectFailed = errors.New("shadow: connect failed")
)

// RejectionError carries the broker's explicit rejection of a get or
// update request. Raised only to the caller awaiting that request.
type RejectionError struct {
	DeviceID  string
	Operation Operation
	Code      int
	Message   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("shadow: %s rejected for device %s: %d %s",
		e.Operation, e.DeviceID, e.Code, e.Message)
}

// CircuitOpenError reports suppressed connect attempts along with the
// estimated time of the next automatic attempt.
type CircuitOpenError struct {
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("shadow: circuit breaker open, next attempt around %s",
		e.RetryAt.UTC().Format(time.RFC3339))
}

// Unwrap makes errors.Is(err, ErrCircuitOpen) work.
func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }
