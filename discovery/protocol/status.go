// Package protocol carries the wire-level vocabulary the Discovery
// Manager speaks: status codes, connection states, and the two
// registration service request/response shapes. None of it reaches
// an actual socket here — serialization and the secure-channel
// handshake belong to the transport stack, which is an external
// collaborator (see discovery/client).
package protocol

import "fmt"

// StatusCode mirrors the small slice of OPC UA status codes the
// Discovery Manager produces or reacts to. Names match the
// originating implementation so operators cross-referencing logs or
// the OPC UA status code tables aren't surprised.
type StatusCode uint32

const (
	Good StatusCode = iota
	BadInternalError
	BadOutOfMemory
	BadConnectionClosed
	BadNotImplemented
	BadServiceUnsupported
	BadTimeout
)

func (s StatusCode) String() string {
	switch s {
	case Good:
		return "Good"
	case BadInternalError:
		return "BadInternalError"
	case BadOutOfMemory:
		return "BadOutOfMemory"
	case BadConnectionClosed:
		return "BadConnectionClosed"
	case BadNotImplemented:
		return "BadNotImplemented"
	case BadServiceUnsupported:
		return "BadServiceUnsupported"
	case BadTimeout:
		return "BadTimeout"
	default:
		return "Unknown"
	}
}

// IsGood reports whether s represents successful completion.
func (s StatusCode) IsGood() bool { return s == Good }

// StatusError wraps a StatusCode with the operation that produced it
// and an optional underlying cause, the way the teacher's transport
// layer wraps socket failures in a named NetworkError.
type StatusError struct {
	Operation string
	Code      StatusCode
	Err       error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NewStatusError builds a StatusError, leaving Err nil when none is given.
func NewStatusError(operation string, code StatusCode, cause error) *StatusError {
	return &StatusError{Operation: operation, Code: code, Err: cause}
}
