// Package nettest provides local TCP and TLS servers for probe tests.
//
// Servers listen on 127.0.0.1 with an ephemeral port and are closed through
// testing.TB.Cleanup, so tests never need to tear them down themselves.
package nettest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Handler serves one accepted connection. The connection is closed after
// the handler returns.
type Handler func(conn net.Conn)

// Server is a local TCP server.
type Server struct {
	listener net.Listener
	handler  Handler
	accepted atomic.Int64
	wg       sync.WaitGroup
}

// Serve starts a plain TCP server running handler for every connection.
func Serve(tb testing.TB, handler Handler) *Server {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to listen: %v", err)
	}
	return start(tb, ln, handler)
}

// ServeTLS starts a TLS server with a freshly generated self-signed
// certificate for "localhost" and 127.0.0.1.
func ServeTLS(tb testing.TB, handler Handler) *Server {
	tb.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", SelfSignedConfig(tb))
	if err != nil {
		tb.Fatalf("failed to listen: %v", err)
	}
	return start(tb, ln, func(conn net.Conn) {
		// Complete the handshake before the handler runs so that a handler
		// which never reads still negotiates TLS.
		if tlsConn, ok := conn.(*tls.Conn); ok {
			_ = tlsConn.SetDeadline(time.Now().Add(5 * time.Second))
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			_ = tlsConn.SetDeadline(time.Time{})
		}
		handler(conn)
	})
}

func start(tb testing.TB, ln net.Listener, handler Handler) *Server {
	s := &Server{listener: ln, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()
	tb.Cleanup(s.Close)
	return s
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handler(conn)
		}()
	}
}

// Close stops the server and waits for running handlers.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() netip.AddrPort {
	return netip.MustParseAddrPort(s.listener.Addr().String())
}

// Port returns the listening port.
func (s *Server) Port() int {
	return int(s.Addr().Port())
}

// Accepted returns how many connections the server has accepted.
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// ClosedPort returns a local port that refuses connections.
func ClosedPort(tb testing.TB) int {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		tb.Fatalf("failed to close listener: %v", err)
	}
	return port
}

// ReadThenReply reads exactly n bytes, sends them on got (when non-nil),
// waits for delay and writes a single 0x00 byte.
func ReadThenReply(n int, delay time.Duration, got chan<- []byte) Handler {
	return func(conn net.Conn) {
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		if got != nil {
			got <- buf
		}
		time.Sleep(delay)
		_, _ = conn.Write([]byte{0x00})
	}
}

// Silent keeps the connection open without writing until the peer closes it
// or hold elapses.
func Silent(hold time.Duration) Handler {
	return func(conn net.Conn) {
		_ = conn.SetReadDeadline(time.Now().Add(hold))
		_, _ = io.Copy(io.Discard, conn)
	}
}

// Hangup closes the connection immediately.
func Hangup() Handler {
	return func(net.Conn) {}
}

// Record collects everything the peer sends until it closes the connection
// or hold elapses, then sends it on got.
func Record(hold time.Duration, got chan<- []byte) Handler {
	return func(conn net.Conn) {
		_ = conn.SetReadDeadline(time.Now().Add(hold))
		data, err := io.ReadAll(conn)
		var netErr net.Error
		if err != nil && !(errors.As(err, &netErr) && netErr.Timeout()) {
			return
		}
		got <- data
	}
}

// SOCKS5Relay is a minimal no-auth SOCKS5 server that accepts CONNECT
// requests for IPv4 targets and relays bytes in both directions.
func SOCKS5Relay() Handler {
	return func(conn net.Conn) {
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		greeting := make([]byte, 2)
		if _, err := io.ReadFull(conn, greeting); err != nil || greeting[0] != 0x05 {
			return
		}
		if _, err := io.ReadFull(conn, make([]byte, greeting[1])); err != nil {
			return
		}
		if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
			return
		}

		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		reply := []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
		if header[1] != 0x01 || header[3] != 0x01 {
			reply[1] = 0x08 // address type not supported
			_, _ = conn.Write(reply)
			return
		}
		dst := make([]byte, 6)
		if _, err := io.ReadFull(conn, dst); err != nil {
			return
		}
		target := netip.AddrPortFrom(netip.AddrFrom4([4]byte(dst[:4])), binary.BigEndian.Uint16(dst[4:]))

		upstream, err := net.DialTimeout("tcp", target.String(), 5*time.Second)
		if err != nil {
			reply[1] = 0x05 // connection refused
			_, _ = conn.Write(reply)
			return
		}
		defer upstream.Close()
		if _, err := conn.Write(reply); err != nil {
			return
		}

		go func() {
			_, _ = io.Copy(upstream, conn)
		}()
		_, _ = io.Copy(conn, upstream)
	}
}

// SelfSignedConfig returns a server TLS configuration with a freshly
// generated ECDSA certificate.
func SelfSignedConfig(tb testing.TB) *tls.Config {
	tb.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
}
