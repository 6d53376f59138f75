package endpoint

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/nao1215/proxyprobe/internal/model"
)

// vmessEnvelope is the JSON object carried by a vmess:// candidate.
// Only the fields needed to reach the server are decoded.
type vmessEnvelope struct {
	Address string    `json:"add"`
	Port    flexValue `json:"port"`
	ID      string    `json:"id"`
	TLS     string    `json:"tls"`
	SNI     string    `json:"sni"`
	Remark  string    `json:"ps"`
}

// flexValue accepts both JSON strings and JSON numbers.
// Share links in the wild encode the port either way.
type flexValue string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexValue(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexValue(n.String())
	return nil
}

// ParseVMess parses a vmess:// candidate.
// The payload after the scheme is base64 in either alphabet, with or without
// padding. The id field is kept when it is a valid UUID and ignored
// otherwise, since reaching the server does not depend on it.
func ParseVMess(candidate string) (*model.Endpoint, error) {
	payload, err := stripScheme(model.ProtocolVMess, candidate)
	if err != nil {
		return nil, err
	}
	// Some feeds append a remark fragment after the encoded blob.
	if idx := strings.IndexByte(payload, '#'); idx >= 0 {
		payload = payload[:idx]
	}

	decoded, err := decodeBase64(payload)
	if err != nil {
		return nil, malformed("vmess payload: %v", err)
	}

	var env vmessEnvelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return nil, malformed("vmess json: %v", err)
	}

	host := strings.Trim(strings.TrimSpace(env.Address), "[]")
	if host == "" {
		return nil, malformed("missing host")
	}
	port, err := parsePort(string(env.Port))
	if err != nil {
		return nil, err
	}

	ep := &model.Endpoint{
		Protocol: model.ProtocolVMess,
		Host:     host,
		Port:     port,
		TLS:      isTLSSecurity(env.TLS),
		Name:     env.Remark,
	}
	if id, err := uuid.Parse(strings.TrimSpace(env.ID)); err == nil {
		ep.UUID = id
	}
	if ep.TLS {
		ep.ServerName = strings.TrimSpace(env.SNI)
		if ep.ServerName == "" {
			ep.ServerName = host
		}
	}
	return ep, nil
}
