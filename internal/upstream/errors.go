package upstream

import "errors"

// Upstream connectivity errors.
//
// Design decision: We define specific errors rather than wrapping all
// failures generically so callers can tell a missing proxy from a
// service that is not SOCKS5 at all.
var (
	// ErrNotSOCKS5 is returned when the upstream address responds but does
	// not speak unauthenticated SOCKS5.
	ErrNotSOCKS5 = errors.New("upstream is not a SOCKS5 proxy")

	// ErrCannotConnect is returned when no TCP connection to the upstream
	// can be established.
	ErrCannotConnect = errors.New("cannot connect to upstream proxy")

	// ErrTimeout is returned when the upstream does not answer in time.
	ErrTimeout = errors.New("timeout connecting to upstream proxy")

	// ErrInvalidAddress is returned when the upstream address is not host:port.
	ErrInvalidAddress = errors.New("invalid upstream address: expected host:port")

	// ErrTorNotRunning is returned when a dialer is requested from an
	// embedded Tor daemon that has not been started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// Status represents the result of checking an upstream proxy.
type Status int

const (
	// StatusOK indicates the upstream is a working SOCKS5 proxy.
	StatusOK Status = iota

	// StatusWrongType indicates the upstream answered but is not SOCKS5,
	// or requires authentication.
	StatusWrongType

	// StatusCannotConnect indicates no connection could be established.
	StatusCannotConnect

	// StatusTimeout indicates the check timed out.
	StatusTimeout
)

// String returns a human-readable description of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWrongType:
		return "wrong type (not SOCKS5)"
	case StatusCannotConnect:
		return "cannot connect"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns the error for this status, or nil if OK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusWrongType:
		return ErrNotSOCKS5
	case StatusCannotConnect:
		return ErrCannotConnect
	case StatusTimeout:
		return ErrTimeout
	default:
		return errors.New("unknown upstream status")
	}
}
