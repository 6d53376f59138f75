package endpoint

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/nao1215/proxyprobe/internal/model"
)

// ParseShadowsocks parses an ss:// candidate.
//
// Two textual forms are attempted in order:
//
//  1. credentials and endpoint in the URL authority, where the credentials
//     are either "method:password" or base64("method:password");
//  2. base64("method:password@host:port") after the scheme.
//
// The candidate is malformed only when neither form yields a host and port.
// Credentials are parsed best-effort because only the endpoint is needed to
// test reachability.
func ParseShadowsocks(candidate string) (*model.Endpoint, error) {
	ep, errAuthority := parseShadowsocksAuthority(candidate)
	if errAuthority == nil {
		return ep, nil
	}

	ep, errEncoded := parseShadowsocksEncoded(candidate)
	if errEncoded == nil {
		return ep, nil
	}
	return nil, errors.Join(errAuthority, errEncoded)
}

// parseShadowsocksAuthority handles ss://<userinfo>@host:port.
func parseShadowsocksAuthority(candidate string) (*model.Endpoint, error) {
	u, err := parseURL(model.ProtocolShadowsocks, candidate)
	if err != nil {
		return nil, err
	}
	if u.User == nil {
		return nil, malformed("no credentials in authority")
	}

	host, port, err := hostPort(u)
	if err != nil {
		return nil, err
	}

	ep := &model.Endpoint{
		Protocol: model.ProtocolShadowsocks,
		Host:     host,
		Port:     port,
		Name:     u.Fragment,
	}
	if password, ok := u.User.Password(); ok {
		ep.Method, ep.Password = u.User.Username(), password
	} else if decoded, err := decodeBase64(u.User.Username()); err == nil {
		ep.Method, ep.Password = splitCredentials(string(decoded))
	}
	return ep, nil
}

// parseShadowsocksEncoded handles ss://base64(method:password@host:port).
func parseShadowsocksEncoded(candidate string) (*model.Endpoint, error) {
	payload, err := stripScheme(model.ProtocolShadowsocks, candidate)
	if err != nil {
		return nil, err
	}

	var name string
	if idx := strings.IndexByte(payload, '#'); idx >= 0 {
		name, _ = url.PathUnescape(payload[idx+1:])
		payload = payload[:idx]
	}
	if idx := strings.IndexByte(payload, '?'); idx >= 0 {
		payload = payload[:idx]
	}
	payload = strings.TrimSuffix(payload, "/")

	decoded, err := decodeBase64(payload)
	if err != nil {
		return nil, malformed("ss payload: %v", err)
	}

	text := strings.TrimSpace(string(decoded))
	at := strings.LastIndexByte(text, '@')
	if at < 0 {
		return nil, malformed("ss payload has no endpoint")
	}

	hostStr, portStr, err := net.SplitHostPort(text[at+1:])
	if err != nil {
		return nil, malformed("ss endpoint: %v", err)
	}
	if hostStr == "" {
		return nil, malformed("missing host")
	}
	port, err := parsePort(portStr)
	if err != nil {
		return nil, err
	}

	method, password := splitCredentials(text[:at])
	return &model.Endpoint{
		Protocol: model.ProtocolShadowsocks,
		Host:     hostStr,
		Port:     port,
		Method:   method,
		Password: password,
		Name:     name,
	}, nil
}

// splitCredentials splits "method:password". A missing separator yields
// only a method.
func splitCredentials(s string) (method, password string) {
	method, password, _ = strings.Cut(s, ":")
	return method, password
}
