// Package upstream routes probe connections through a SOCKS5 proxy.
//
// Probing from behind an upstream hides the prober's address from the
// servers under test. The upstream is either an existing SOCKS5 proxy
// (for example a local Tor daemon) or an embedded Tor daemon started
// through tornago.
//
// The dialers returned here satisfy proxy.ContextDialer and are injected
// into the transport establisher; no other code knows about the upstream.
package upstream
