package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultTimeout is the connect plus TLS budget used when none is configured.
const DefaultTimeout = 8 * time.Second

// TLSOptions describes whether and how to wrap a connection in TLS.
type TLSOptions struct {
	// Enabled requests a TLS client handshake after the TCP connect.
	Enabled bool

	// ServerName is sent in the SNI extension. IP literals and empty
	// names are not sent.
	ServerName string
}

// Establisher opens probe transports.
// It is safe for concurrent use; every call creates its own connection.
type Establisher struct {
	// dialer opens the TCP connection. It may route through an upstream proxy.
	dialer proxy.ContextDialer

	// timeout bounds connect and TLS together.
	timeout time.Duration

	// insecureReachabilityTLS disables certificate verification.
	insecureReachabilityTLS bool
}

// Option configures an Establisher.
type Option func(*Establisher)

// WithDialer sets the dialer used for TCP connects.
// Use it to route probes through an upstream SOCKS5 proxy or to instrument
// connections in tests.
func WithDialer(d proxy.ContextDialer) Option {
	return func(e *Establisher) {
		if d != nil {
			e.dialer = d
		}
	}
}

// WithTimeout sets the budget for connect and TLS handshake combined.
func WithTimeout(d time.Duration) Option {
	return func(e *Establisher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithInsecureReachabilityTLS disables certificate chain and host name
// verification for TLS handshakes.
//
// Only reachability probes may enable this. A self-signed or mismatched
// certificate must not make a live server look dead.
func WithInsecureReachabilityTLS(insecure bool) Option {
	return func(e *Establisher) {
		e.insecureReachabilityTLS = insecure
	}
}

// NewEstablisher creates an Establisher. By default it dials directly,
// uses DefaultTimeout and verifies certificates.
func NewEstablisher(opts ...Option) *Establisher {
	e := &Establisher{
		dialer:  &net.Dialer{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the connect plus TLS budget.
func (e *Establisher) Timeout() time.Duration {
	return e.timeout
}

// Establish connects to addr:port and performs a TLS handshake when requested.
//
// The connect and the handshake share one deadline. Errors are classified
// *model.ProbeError values (ConnectFailed, TlsFailed or TimedOut) and the
// socket is closed on any failure.
func (e *Establisher) Establish(ctx context.Context, addr netip.Addr, port int, opts TLSOptions) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	target := net.JoinHostPort(addr.String(), strconv.Itoa(port))
	conn, err := e.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, Classify(StageConnect, err)
	}
	if !opts.Enabled {
		return conn, nil
	}

	tlsConn := tls.Client(conn, e.tlsConfig(opts.ServerName))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, Classify(StageTLS, err)
	}
	return tlsConn, nil
}

// tlsConfig builds the client configuration for one handshake.
func (e *Establisher) tlsConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: e.insecureReachabilityTLS, //nolint:gosec // reachability probing only
		MinVersion:         tls.VersionTLS12,
	}
}
