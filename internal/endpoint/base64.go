package endpoint

import (
	"encoding/base64"
	"errors"
	"strings"
)

var errNotBase64 = errors.New("not valid base64")

// decodeBase64 decodes s with either the URL-safe or the standard alphabet.
// Padding is optional and embedded whitespace is ignored, since feeds often
// wrap or truncate the encoded text.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, errNotBase64
	}

	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.RawStdEncoding} {
		if decoded, err := enc.DecodeString(s); err == nil {
			return decoded, nil
		}
	}
	return nil, errNotBase64
}
