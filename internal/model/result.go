package model

import (
	"time"
)

// Status is the binary liveness classification of a candidate.
type Status string

const (
	// StatusAlive means a server responded plausibly to the minimal handshake.
	StatusAlive Status = "alive"

	// StatusDead means the probe failed at some stage.
	StatusDead Status = "dead"
)

// ProbeResult is the terminal outcome of probing one candidate.
// It is produced exactly once per candidate and never updated afterwards.
//
// The JSON field names follow the format consumed by the scoring and
// ranking collaborator: "link", "status", "ping_ms" and "error".
type ProbeResult struct {
	// Link is the original candidate string, byte for byte.
	Link string `json:"link"`

	// Protocol is the tag the candidate was dispatched under.
	Protocol Protocol `json:"protocol"`

	// Status is alive or dead.
	Status Status `json:"status"`

	// PingMS is the latency in milliseconds. It is set iff Status is alive.
	PingMS *int64 `json:"ping_ms"`

	// Reason is the failure classification. It is set iff Status is dead.
	Reason FailureReason `json:"error,omitempty"`

	// Detail is the human readable cause of the failure.
	Detail string `json:"detail,omitempty"`

	// CheckedAt is when the probe finished.
	CheckedAt time.Time `json:"checked_at"`
}

// NewAliveResult creates an alive result with the given latency.
// Negative latencies are clamped to zero.
func NewAliveResult(protocol Protocol, link string, latency time.Duration) *ProbeResult {
	ms := latency.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &ProbeResult{
		Link:      link,
		Protocol:  protocol,
		Status:    StatusAlive,
		PingMS:    &ms,
		CheckedAt: time.Now(),
	}
}

// NewDeadResult creates a dead result classified from err.
// A nil err is recorded as an internal error, since a dead result must
// always carry a reason.
func NewDeadResult(protocol Protocol, link string, err error) *ProbeResult {
	reason := ReasonOf(err)
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if reason == ReasonNone {
		reason = ReasonInternalError
		detail = ErrInternal.Error()
	}
	return &ProbeResult{
		Link:      link,
		Protocol:  protocol,
		Status:    StatusDead,
		Reason:    reason,
		Detail:    detail,
		CheckedAt: time.Now(),
	}
}

// Alive reports whether the candidate was classified as alive.
func (r *ProbeResult) Alive() bool {
	return r.Status == StatusAlive
}

// Latency returns the measured latency and whether one is present.
func (r *ProbeResult) Latency() (time.Duration, bool) {
	if r.PingMS == nil {
		return 0, false
	}
	return time.Duration(*r.PingMS) * time.Millisecond, true
}
