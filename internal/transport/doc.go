// Package transport resolves candidate hosts and opens the byte streams
// that protocol probes talk over.
//
// It has two halves:
//
//   - Resolver implementations turn a host into a numeric address.
//     Literal IPv4 and IPv6 hosts are returned unchanged without a lookup.
//     SystemResolver uses the operating system, DNSResolver queries a
//     specific DNS server with github.com/miekg/dns.
//   - Establisher opens a TCP connection through a proxy.ContextDialer and
//     optionally negotiates TLS over it.
//
// All failures are reported as *model.ProbeError values so probes can turn
// them into dead results without inspecting raw network errors.
//
// # Certificate verification
//
// Probing asks "is something listening and speaking TLS", not "should this
// server be trusted". An Establisher created with
// WithInsecureReachabilityTLS(true) therefore skips certificate chain and
// host name checks. The option name is deliberately loud: never reuse such
// an Establisher for traffic where trust matters.
package transport
