package model

import (
	"net"
	"strconv"

	"github.com/google/uuid"
)

// Endpoint is the structured form of a candidate string.
// It is derived once per probe invocation and never mutated afterwards.
//
// Design decision: We keep all protocol-specific auth material in one flat
// struct instead of one type per protocol because every field is comparable,
// which makes two parses of the same candidate trivially checkable with ==.
type Endpoint struct {
	// Protocol is the tag the candidate was parsed with.
	Protocol Protocol `json:"protocol"`

	// Host is the server host name or literal IP address, without brackets.
	Host string `json:"host"`

	// Port is the server TCP port (1-65535).
	Port int `json:"port"`

	// UUID is the client identity for VLESS and VMess.
	UUID uuid.UUID `json:"uuid"`

	// Password is the Trojan password or the Shadowsocks password.
	Password string `json:"-"`

	// Method is the Shadowsocks cipher name.
	Method string `json:"method,omitempty"`

	// TLS reports whether the transport must be wrapped in TLS.
	TLS bool `json:"tls"`

	// ServerName is the SNI value sent during the TLS handshake.
	// It defaults to Host when the candidate does not override it.
	ServerName string `json:"server_name,omitempty"`

	// Name is the human readable remark (URI fragment or "ps" field).
	Name string `json:"name,omitempty"`
}

// Address returns the "host:port" form of the endpoint.
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
