package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use
// errors.Is() while still getting a human-readable message.
var (
	// ErrNoCandidates is returned when no candidate source is given.
	ErrNoCandidates = errors.New("no candidates specified: pass candidate URIs, use --file, or use --stdin")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidResolver is returned when the DNS server address cannot be parsed.
	ErrInvalidResolver = errors.New("invalid resolver: expected host or host:port")

	// ErrInvalidUpstream is returned when the upstream proxy address cannot be parsed.
	ErrInvalidUpstream = errors.New("invalid upstream proxy: expected host:port")

	// ErrConflictingUpstream is returned when both --upstream and --tor are specified.
	ErrConflictingUpstream = errors.New("conflicting upstream: --upstream and --tor cannot be used together")

	// ErrInvalidProtocol is returned when a disabled protocol tag is unknown.
	ErrInvalidProtocol = errors.New("invalid protocol: expected one of vless, vmess, trojan, ss")
)
