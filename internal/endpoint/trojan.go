package endpoint

import (
	"github.com/nao1215/proxyprobe/internal/model"
)

// ParseTrojan parses a trojan:// candidate.
// Trojan always runs over TLS, so the descriptor's TLS flag is set
// regardless of any "security" parameter.
func ParseTrojan(candidate string) (*model.Endpoint, error) {
	u, err := parseURL(model.ProtocolTrojan, candidate)
	if err != nil {
		return nil, err
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, malformed("missing password")
	}

	host, port, err := hostPort(u)
	if err != nil {
		return nil, err
	}

	return &model.Endpoint{
		Protocol:   model.ProtocolTrojan,
		Host:       host,
		Port:       port,
		Password:   u.User.Username(),
		TLS:        true,
		ServerName: serverName(u.Query(), host, "sni", "peer"),
		Name:       u.Fragment,
	}, nil
}
