package model

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Protocol is the scheme tag of a candidate URI.
// It determines which probe and which parsing rules apply.
type Protocol string

const (
	// ProtocolVLESS is the UUID-keyed protocol verified with a binary handshake.
	ProtocolVLESS Protocol = "vless"

	// ProtocolVMess carries a base64 encoded JSON envelope after the scheme.
	ProtocolVMess Protocol = "vmess"

	// ProtocolTrojan is password-keyed and always runs over TLS.
	ProtocolTrojan Protocol = "trojan"

	// ProtocolShadowsocks is encrypted from its first byte, so only TCP
	// reachability can be verified.
	ProtocolShadowsocks Protocol = "ss"
)

// ErrUnsupportedProtocol is returned by ParseProtocol for unknown tags.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// schemeSeparator separates the protocol tag from the rest of a candidate.
const schemeSeparator = "://"

// SupportedProtocols returns every protocol tag that has a probe,
// in a stable order.
func SupportedProtocols() []Protocol {
	return []Protocol{
		ProtocolVLESS,
		ProtocolVMess,
		ProtocolTrojan,
		ProtocolShadowsocks,
	}
}

// Supported reports whether the protocol tag has a probe.
func (p Protocol) Supported() bool {
	switch p {
	case ProtocolVLESS, ProtocolVMess, ProtocolTrojan, ProtocolShadowsocks:
		return true
	default:
		return false
	}
}

// String returns the tag as it appears in candidate URIs.
func (p Protocol) String() string {
	return string(p)
}

// DisplayName returns the upper-cased tag for reports (e.g. "VLESS").
func (p Protocol) DisplayName() string {
	if p == "" {
		return "UNKNOWN"
	}
	return cases.Upper(language.English).String(string(p))
}

// ParseProtocol converts a user supplied tag into a supported Protocol.
// A trailing "://" and surrounding whitespace are ignored, and matching
// is case-insensitive.
func ParseProtocol(s string) (Protocol, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	tag = strings.TrimSuffix(tag, schemeSeparator)

	p := Protocol(tag)
	if !p.Supported() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
	}
	return p, nil
}

// ProtocolOf extracts the lower-cased scheme of a candidate URI.
// It returns an empty Protocol when the candidate has no scheme.
// The result is not guaranteed to be supported.
func ProtocolOf(candidate string) Protocol {
	idx := strings.Index(candidate, schemeSeparator)
	if idx <= 0 {
		return ""
	}
	return Protocol(strings.ToLower(candidate[:idx]))
}
