package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkTimeout bounds the SOCKS5 greeting performed by Check.
const checkTimeout = 2 * time.Second

// SOCKS5 protocol constants.
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// SOCKS5Dialer dials TCP connections through a SOCKS5 proxy.
// It implements proxy.ContextDialer.
type SOCKS5Dialer struct {
	// address is the proxy address in "host:port" format.
	address string

	// dialer is the x/net/proxy SOCKS5 dialer.
	dialer proxy.ContextDialer
}

// NewSOCKS5Dialer creates a dialer for the SOCKS5 proxy at address.
//
// The address must be in "host:port" format (e.g., "127.0.0.1:9050").
// The proxy is not contacted here; call Check to verify it.
func NewSOCKS5Dialer(address string) (*SOCKS5Dialer, error) {
	if !isValidAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	// Tor's SOCKS port does not require auth, so we pass none.
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", address)
	}

	return &SOCKS5Dialer{address: address, dialer: cd}, nil
}

// isValidAddress checks that address is "host:port" with a port in 1..65535.
func isValidAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Address returns the configured proxy address.
func (d *SOCKS5Dialer) Address() string {
	return d.address
}

// DialContext connects to address through the proxy.
func (d *SOCKS5Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, network, address)
}

// Check verifies that a SOCKS5 proxy accepting unauthenticated clients
// listens at address. It performs only the method negotiation, so no
// connection is requested through the proxy.
func Check(ctx context.Context, address string) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return StatusTimeout
		}
		return StatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return StatusCannotConnect
	}

	// Client sends: version + number of methods + methods. We offer no-auth only.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return StatusCannotConnect
	}

	// Server responds: version + selected method.
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return StatusTimeout
		}
		return StatusWrongType
	}

	// A proxy that insists on authentication answers 0xFF and is
	// unusable without credentials.
	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return StatusWrongType
	}
	return StatusOK
}
