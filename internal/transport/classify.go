package transport

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/nao1215/proxyprobe/internal/model"
)

// Stage identifies the step of a probe in which an error occurred.
type Stage int

const (
	// StageResolve is host name resolution.
	StageResolve Stage = iota

	// StageConnect is the TCP connect.
	StageConnect

	// StageTLS is the TLS client handshake.
	StageTLS

	// StageExchange is the protocol handshake write and the response read.
	StageExchange
)

// String returns a short name used in log attributes.
func (s Stage) String() string {
	switch s {
	case StageResolve:
		return "resolve"
	case StageConnect:
		return "connect"
	case StageTLS:
		return "tls"
	case StageExchange:
		return "exchange"
	default:
		return "unknown"
	}
}

// Classify converts a raw error from the given stage into a *model.ProbeError.
//
// Timeouts during resolve, connect or TLS are TimedOut. Once the transport is
// up, a missing response is the server's answer to the handshake, so any
// exchange failure (timeout, reset or EOF) is ProtocolRejected.
// Errors that already carry a reason are returned unchanged.
func Classify(stage Stage, err error) error {
	if err == nil {
		return nil
	}

	var pe *model.ProbeError
	if errors.As(err, &pe) {
		return err
	}

	if stage == StageExchange {
		return model.NewProbeError(model.ReasonProtocolRejected, err)
	}
	if isTimeout(err) {
		return model.NewProbeError(model.ReasonTimedOut, err)
	}

	switch stage {
	case StageResolve:
		return model.NewProbeError(model.ReasonResolutionFailed, err)
	case StageConnect:
		return model.NewProbeError(model.ReasonConnectFailed, err)
	case StageTLS:
		return model.NewProbeError(model.ReasonTLSFailed, err)
	default:
		return model.NewProbeError(model.ReasonInternalError, err)
	}
}

// isTimeout reports whether err is a deadline or cancellation error.
// Cancellation counts as a timeout because the probe was cut short before
// the server could answer.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
