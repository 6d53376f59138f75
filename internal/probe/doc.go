// Package probe implements the protocol-specific liveness probes.
//
// Each probe runs the same sequence for one candidate:
//
//	parse -> resolve -> connect (+TLS) -> minimal handshake -> read one byte
//
// and always returns exactly one *model.ProbeResult. Failures at any step
// become dead results carrying a model.FailureReason; they are never
// returned as errors.
//
// The four probes differ only in transport options and in what they send:
//
//   - VLESSProbe sends a fixed 26-byte request header and waits for a byte.
//   - VMessProbe stops after connect and optional TLS, because the real
//     handshake needs key material the candidate does not carry.
//   - TrojanProbe always negotiates TLS, sends the password hash header and
//     waits for a byte.
//   - ShadowsocksProbe stops after the TCP connect, because the protocol is
//     encrypted from its first byte.
//
// Handshakes target a fixed neutral destination (8.8.8.8:80 or
// v1.v2ray.com:80), never a destination taken from the candidate.
package probe
