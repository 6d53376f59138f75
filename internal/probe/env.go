package probe

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/nao1215/proxyprobe/internal/endpoint"
	"github.com/nao1215/proxyprobe/internal/model"
	"github.com/nao1215/proxyprobe/internal/transport"
)

// DefaultTimeout is the per-probe timeout used when Env.Timeout is zero.
const DefaultTimeout = 8 * time.Second

// Env holds what every probe needs to reach a server.
// An Env is shared by all probes of a run and must not be mutated
// after the run starts.
type Env struct {
	// Resolver turns candidate hosts into addresses.
	Resolver transport.Resolver

	// Establisher opens TCP and TLS connections.
	Establisher *transport.Establisher

	// Timeout bounds resolution, and separately the connect, TLS, write and
	// read sequence.
	Timeout time.Duration

	// Logger receives per-probe debug records.
	Logger *slog.Logger
}

// NewEnv creates an Env with a system resolver and a direct establisher
// that skips certificate verification.
func NewEnv(timeout time.Duration, logger *slog.Logger) *Env {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Env{
		Resolver: transport.NewSystemResolver(timeout),
		Establisher: transport.NewEstablisher(
			transport.WithTimeout(timeout),
			transport.WithInsecureReachabilityTLS(true),
		),
		Timeout: timeout,
		Logger:  logger,
	}
}

func (env *Env) timeout() time.Duration {
	if env.Timeout <= 0 {
		return DefaultTimeout
	}
	return env.Timeout
}

func (env *Env) logger() *slog.Logger {
	if env.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return env.Logger
}

// exchangeFunc performs the protocol handshake over an established
// connection. A nil exchangeFunc means the transport alone is the signal.
type exchangeFunc func(conn net.Conn, ep *model.Endpoint) error

// plan describes how one protocol is probed.
type plan struct {
	protocol model.Protocol

	// forceTLS negotiates TLS even when the descriptor does not ask for it.
	forceTLS bool

	exchange exchangeFunc
}

// run executes the common probe sequence and never returns nil.
func (env *Env) run(ctx context.Context, p plan, candidate string) *model.ProbeResult {
	logger := env.logger().With("protocol", p.protocol.String())

	latency, err := env.attempt(ctx, p, candidate)
	if err != nil {
		result := model.NewDeadResult(p.protocol, candidate, err)
		logger.Debug("probe finished",
			"status", result.Status,
			"reason", result.Reason.String(),
			"candidate", candidate)
		return result
	}

	result := model.NewAliveResult(p.protocol, candidate, latency)
	logger.Debug("probe finished",
		"status", result.Status,
		"ping_ms", *result.PingMS,
		"candidate", candidate)
	return result
}

// attempt runs parse, resolve, establish and exchange, and returns the
// latency measured from the connect attempt.
func (env *Env) attempt(ctx context.Context, p plan, candidate string) (time.Duration, error) {
	ep, err := endpoint.Parse(p.protocol, candidate)
	if err != nil {
		return 0, err
	}

	timeout := env.timeout()

	resolveCtx, cancelResolve := context.WithTimeout(ctx, timeout)
	addr, err := env.Resolver.Resolve(resolveCtx, ep.Host)
	cancelResolve()
	if err != nil {
		return 0, transport.Classify(transport.StageResolve, err)
	}

	start := time.Now()
	probeCtx, cancel := context.WithDeadline(ctx, start.Add(timeout))
	defer cancel()

	opts := transport.TLSOptions{
		Enabled:    ep.TLS || p.forceTLS,
		ServerName: ep.ServerName,
	}
	if opts.Enabled && opts.ServerName == "" {
		opts.ServerName = ep.Host
	}

	conn, err := env.Establisher.Establish(probeCtx, addr, ep.Port, opts)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if p.exchange != nil {
		// Unblock the exchange when the probe deadline passes or the run is cancelled.
		stop := context.AfterFunc(probeCtx, func() { _ = conn.SetDeadline(time.Now()) })
		defer stop()

		if err := conn.SetDeadline(start.Add(timeout)); err != nil {
			return 0, transport.Classify(transport.StageExchange, err)
		}
		if err := p.exchange(conn, ep); err != nil {
			if ctx.Err() != nil {
				return 0, model.NewProbeError(model.ReasonTimedOut, ctx.Err())
			}
			return 0, transport.Classify(transport.StageExchange, err)
		}
	}

	return clampLatency(time.Since(start), timeout), nil
}

// clampLatency bounds a measured latency to [0, timeout].
func clampLatency(latency, timeout time.Duration) time.Duration {
	if latency < 0 {
		return 0
	}
	if latency > timeout {
		return timeout
	}
	return latency
}

// sendAndAwait writes the request and blocks until one response byte arrives.
func sendAndAwait(conn net.Conn, request []byte) error {
	if _, err := conn.Write(request); err != nil {
		return err
	}
	var first [1]byte
	_, err := io.ReadFull(conn, first[:])
	return err
}
