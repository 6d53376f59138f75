package endpoint

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/nao1215/proxyprobe/internal/model"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a stable identity of the server a candidate points to.
//
// Two candidates that differ only in remark, query order or base64 padding
// share a fingerprint. Credentials are part of the identity but only as
// hash input, so the fingerprint is safe to log and store. Candidates that
// cannot be parsed fall back to the hash of the trimmed raw string.
func Fingerprint(protocol model.Protocol, candidate string) string {
	ep, err := Parse(protocol, candidate)
	if err != nil {
		return digest(strings.TrimSpace(candidate))
	}

	var auth string
	switch ep.Protocol {
	case model.ProtocolVLESS, model.ProtocolVMess:
		auth = ep.UUID.String()
	case model.ProtocolTrojan:
		auth = ep.Password
	case model.ProtocolShadowsocks:
		auth = ep.Method + ":" + ep.Password
	}

	key := strings.Join([]string{
		ep.Protocol.String(),
		auth,
		strings.ToLower(ep.Host),
		strconv.Itoa(ep.Port),
	}, "|")
	return digest(key)
}

func digest(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
