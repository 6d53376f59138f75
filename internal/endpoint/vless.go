package endpoint

import (
	"github.com/google/uuid"
	"github.com/nao1215/proxyprobe/internal/model"
)

// ParseVLESS parses a vless:// candidate.
// TLS is enabled when the "security" parameter is tls, xtls or reality,
// and the server name comes from "sni" or defaults to the host.
func ParseVLESS(candidate string) (*model.Endpoint, error) {
	u, err := parseURL(model.ProtocolVLESS, candidate)
	if err != nil {
		return nil, err
	}
	if u.User == nil {
		return nil, malformed("missing user id")
	}

	id, err := uuid.Parse(u.User.Username())
	if err != nil {
		return nil, malformed("invalid user id: %v", err)
	}

	host, port, err := hostPort(u)
	if err != nil {
		return nil, err
	}

	query := u.Query()
	ep := &model.Endpoint{
		Protocol: model.ProtocolVLESS,
		Host:     host,
		Port:     port,
		UUID:     id,
		TLS:      isTLSSecurity(query.Get("security")),
		Name:     u.Fragment,
	}
	if ep.TLS {
		ep.ServerName = serverName(query, host, "sni")
	}
	return ep, nil
}
