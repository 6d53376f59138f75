package model

import (
	"errors"
	"fmt"
)

// Probe failure errors.
// Every dead ProbeResult carries exactly one of these as its reason.
//
// Design decision: We use package-level sentinel errors so callers can use
// errors.Is() on anything a resolver, dialer or probe returns, while the
// FailureReason enum gives a compact form for JSON and the database.
var (
	// ErrMalformedCandidate is returned when a candidate cannot be parsed
	// into an Endpoint, so no probe can even be attempted.
	ErrMalformedCandidate = errors.New("malformed candidate")

	// ErrResolutionFailed is returned when the host name cannot be resolved.
	ErrResolutionFailed = errors.New("resolution failed")

	// ErrConnectFailed is returned when the TCP connection is refused or the
	// server is unreachable.
	ErrConnectFailed = errors.New("connect failed")

	// ErrTLSFailed is returned when the TLS handshake fails for a reason
	// other than a timeout.
	ErrTLSFailed = errors.New("tls handshake failed")

	// ErrTimedOut is returned when any stage exceeds the per-test timeout.
	ErrTimedOut = errors.New("timed out")

	// ErrProtocolRejected is returned when the transport was established but
	// the server closed the connection or sent no response byte.
	ErrProtocolRejected = errors.New("protocol rejected")

	// ErrInternal is returned when the probe logic itself faulted.
	ErrInternal = errors.New("internal error")
)

// FailureReason classifies why a probe classified a candidate as dead.
type FailureReason int

const (
	// ReasonNone is the zero value, used by alive results.
	ReasonNone FailureReason = iota

	// ReasonMalformedCandidate means parsing failed.
	ReasonMalformedCandidate

	// ReasonResolutionFailed means DNS resolution failed.
	ReasonResolutionFailed

	// ReasonConnectFailed means the TCP connection was refused or unreachable.
	ReasonConnectFailed

	// ReasonTLSFailed means the TLS handshake failed.
	ReasonTLSFailed

	// ReasonTimedOut means a stage exceeded the timeout.
	ReasonTimedOut

	// ReasonProtocolRejected means no response byte arrived after the handshake.
	ReasonProtocolRejected

	// ReasonInternalError means the probe crashed or hit an unexpected fault.
	ReasonInternalError
)

// orderedReasons lists the reasons in declaration order so lookups are deterministic.
var orderedReasons = []FailureReason{
	ReasonMalformedCandidate,
	ReasonResolutionFailed,
	ReasonConnectFailed,
	ReasonTLSFailed,
	ReasonTimedOut,
	ReasonProtocolRejected,
	ReasonInternalError,
}

// FailureReasons returns every failure reason in taxonomy order.
func FailureReasons() []FailureReason {
	return append([]FailureReason(nil), orderedReasons...)
}

var reasonNames = map[FailureReason]string{
	ReasonMalformedCandidate: "MalformedCandidate",
	ReasonResolutionFailed:   "ResolutionFailed",
	ReasonConnectFailed:      "ConnectFailed",
	ReasonTLSFailed:          "TlsFailed",
	ReasonTimedOut:           "TimedOut",
	ReasonProtocolRejected:   "ProtocolRejected",
	ReasonInternalError:      "InternalError",
}

var reasonErrors = map[FailureReason]error{
	ReasonMalformedCandidate: ErrMalformedCandidate,
	ReasonResolutionFailed:   ErrResolutionFailed,
	ReasonConnectFailed:      ErrConnectFailed,
	ReasonTLSFailed:          ErrTLSFailed,
	ReasonTimedOut:           ErrTimedOut,
	ReasonProtocolRejected:   ErrProtocolRejected,
	ReasonInternalError:      ErrInternal,
}

// String returns the taxonomy name of the reason (e.g. "ConnectFailed").
// ReasonNone returns an empty string.
func (r FailureReason) String() string {
	return reasonNames[r]
}

// Err returns the sentinel error for the reason, or nil for ReasonNone.
func (r FailureReason) Err() error {
	return reasonErrors[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r FailureReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *FailureReason) UnmarshalText(text []byte) error {
	parsed, err := ParseFailureReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseFailureReason converts a taxonomy name back into a FailureReason.
// An empty string yields ReasonNone.
func ParseFailureReason(s string) (FailureReason, error) {
	if s == "" {
		return ReasonNone, nil
	}
	for _, reason := range orderedReasons {
		if reasonNames[reason] == s {
			return reason, nil
		}
	}
	return ReasonNone, fmt.Errorf("unknown failure reason %q", s)
}

// ProbeError pairs a failure reason with the lower-level cause.
// errors.Is matches both the reason's sentinel and the wrapped cause.
type ProbeError struct {
	// Reason is the taxonomy classification.
	Reason FailureReason

	// Err is the underlying cause. It may be nil.
	Err error
}

// NewProbeError creates a ProbeError for the given reason and cause.
func NewProbeError(reason FailureReason, err error) *ProbeError {
	return &ProbeError{Reason: reason, Err: err}
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	base := e.Reason.Err()
	if base == nil {
		base = ErrInternal
	}
	if e.Err == nil {
		return base.Error()
	}
	return base.Error() + ": " + e.Err.Error()
}

// Unwrap returns both the reason sentinel and the cause.
func (e *ProbeError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if base := e.Reason.Err(); base != nil {
		errs = append(errs, base)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ReasonOf extracts the FailureReason from an error chain.
// It understands ProbeError as well as bare sentinel errors, and falls
// back to ReasonInternalError for anything unclassified.
// A nil error yields ReasonNone.
func ReasonOf(err error) FailureReason {
	if err == nil {
		return ReasonNone
	}

	var pe *ProbeError
	if errors.As(err, &pe) && pe.Reason != ReasonNone {
		return pe.Reason
	}

	for _, reason := range orderedReasons {
		if errors.Is(err, reasonErrors[reason]) {
			return reason
		}
	}
	return ReasonInternalError
}
