package endpoint

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/proxyprobe/internal/model"
)

// ParseFunc parses a candidate of one protocol.
type ParseFunc func(candidate string) (*model.Endpoint, error)

// parsers is the dispatch table keyed by protocol tag.
var parsers = map[model.Protocol]ParseFunc{
	model.ProtocolVLESS:       ParseVLESS,
	model.ProtocolVMess:       ParseVMess,
	model.ProtocolTrojan:      ParseTrojan,
	model.ProtocolShadowsocks: ParseShadowsocks,
}

// Parse converts a candidate into an Endpoint using the rules of protocol.
// Any failure, including an unexpected panic in a decoder, is returned as an
// error wrapping model.ErrMalformedCandidate.
func Parse(protocol model.Protocol, candidate string) (ep *model.Endpoint, err error) {
	parse, ok := parsers[protocol]
	if !ok {
		return nil, malformed("no parser for protocol %q", protocol)
	}

	defer func() {
		if r := recover(); r != nil {
			ep = nil
			err = malformed("parser panic: %v", r)
		}
	}()

	return parse(strings.TrimSpace(candidate))
}

// malformed builds an error wrapping model.ErrMalformedCandidate.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrMalformedCandidate, fmt.Sprintf(format, args...))
}

// stripScheme removes "<protocol>://" from the candidate, case-insensitively.
func stripScheme(protocol model.Protocol, candidate string) (string, error) {
	prefix := protocol.String() + "://"
	if len(candidate) < len(prefix) || !strings.EqualFold(candidate[:len(prefix)], prefix) {
		return "", malformed("missing %q scheme", prefix)
	}
	return candidate[len(prefix):], nil
}

// parseURL parses a URL-shaped candidate and checks its scheme.
func parseURL(protocol model.Protocol, candidate string) (*url.URL, error) {
	if _, err := stripScheme(protocol, candidate); err != nil {
		return nil, err
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return nil, malformed("invalid URL: %v", err)
	}
	return u, nil
}

// hostPort extracts and validates the host and port of a URL authority.
func hostPort(u *url.URL) (string, int, error) {
	host := u.Hostname()
	if host == "" {
		return "", 0, malformed("missing host")
	}
	port, err := parsePort(u.Port())
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// parsePort converts a decimal port string into a port number in 1-65535.
func parsePort(s string) (int, error) {
	if s == "" {
		return 0, malformed("missing port")
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, malformed("invalid port %q", s)
	}
	return port, nil
}

// isTLSSecurity reports whether a security parameter selects a TLS-class transport.
func isTLSSecurity(security string) bool {
	switch strings.ToLower(strings.TrimSpace(security)) {
	case "tls", "xtls", "reality":
		return true
	default:
		return false
	}
}

// serverName returns the first non-empty query parameter among keys,
// falling back to host.
func serverName(query url.Values, host string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return host
}
