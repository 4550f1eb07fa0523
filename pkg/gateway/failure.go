package gateway

import (
	"fmt"
)

// FailureKind classifies why a request did not produce a usable reply.
type FailureKind string

const (
	// FailureTransport covers connection errors and timeouts.
	FailureTransport FailureKind = "transport"
	// FailureServer is a non-2xx response.
	FailureServer FailureKind = "server"
	// FailureMalformed is a 2xx response whose body could not be decoded.
	FailureMalformed FailureKind = "malformed"
)

// Failure is returned by every Client operation that fails. Error() yields the
// user-facing reason: the server's `error` field when present, otherwise a
// generic message for the operation.
type Failure struct {
	Kind   FailureKind
	Op     string
	Status int
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	return f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Detail is a log-friendly description including the cause.
func (f *Failure) Detail() string {
	switch {
	case f.Err != nil && f.Status != 0:
		return fmt.Sprintf("%s %s (status %d): %s: %v", f.Op, f.Kind, f.Status, f.Reason, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", f.Op, f.Kind, f.Reason, f.Err)
	case f.Status != 0:
		return fmt.Sprintf("%s %s (status %d): %s", f.Op, f.Kind, f.Status, f.Reason)
	default:
		return fmt.Sprintf("%s %s: %s", f.Op, f.Kind, f.Reason)
	}
}
