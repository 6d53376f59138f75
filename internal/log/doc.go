// Package log provides secure logging built on the standard slog package.
//
// The SecureHandler masks sensitive information before it reaches any
// output:
//   - values of keys such as password, uuid, id, token or credentials
//   - values that look like secrets (UUIDs, long opaque tokens, key blocks)
//   - the credential part of proxy URIs, so "vless://<uuid>@host:443" is
//     logged as "vless://***@host:443" and opaque "vmess://..." blobs as
//     "vmess://***"
//
// Candidate lists are often shared publicly, but run logs end up in bug
// reports and CI output, so even verbose mode never prints credentials.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("probe finished", "candidate", link, "status", "alive")
//	slog.SetDefault(logger)
package log
