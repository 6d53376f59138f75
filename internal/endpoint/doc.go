// Package endpoint turns protocol-tagged candidate strings into
// model.Endpoint descriptors.
//
// Parsing is a pure transformation: it performs no I/O and returns the same
// descriptor every time it is given the same candidate. Every failure wraps
// model.ErrMalformedCandidate so callers never see a raw decoding error.
//
// Supported formats:
//
//	vless://<uuid>@<host>:<port>?security=tls&sni=<name>#<remark>
//	vmess://<base64 JSON with add, port, id, tls, sni, ps>
//	trojan://<password>@<host>:<port>?sni=<name>#<remark>
//	ss://<method>:<password>@<host>:<port>#<remark>
//	ss://<base64(method:password)>@<host>:<port>#<remark>
//	ss://<base64(method:password@host:port)>#<remark>
package endpoint
