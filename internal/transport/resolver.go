package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/nao1215/proxyprobe/internal/model"
)

// Resolver turns a host into a numeric address.
// Implementations perform at most one lookup and never retry.
type Resolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, host string) (netip.Addr, error)

// Resolve calls f(ctx, host).
func (f ResolverFunc) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	return f(ctx, host)
}

// Resolver errors.
var (
	// ErrNoAddress is returned when a lookup succeeds without any usable record.
	ErrNoAddress = errors.New("no address records")

	// ErrEmptyHost is returned when the host is empty.
	ErrEmptyHost = errors.New("empty host")
)

// literalAddr returns the address if host is an IPv4 or IPv6 literal.
// Brackets around IPv6 literals are accepted.
func literalAddr(host string) (netip.Addr, bool) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// resolutionFailed wraps err as a ResolutionFailed probe error, or as
// TimedOut when the lookup ran out of time.
func resolutionFailed(host string, err error) error {
	reason := model.ReasonResolutionFailed
	if isTimeout(err) {
		reason = model.ReasonTimedOut
	}
	return model.NewProbeError(reason, fmt.Errorf("%s: %w", host, err))
}

// SystemResolver resolves hosts with the operating system resolver.
// IPv4 addresses are preferred because most candidates publish IPv4
// endpoints and many probing hosts lack IPv6 routes.
type SystemResolver struct {
	// resolver is the underlying resolver. nil means net.DefaultResolver.
	resolver *net.Resolver

	// timeout bounds the lookup. Zero means only ctx bounds it.
	timeout time.Duration
}

// NewSystemResolver creates a SystemResolver with the given lookup timeout.
func NewSystemResolver(timeout time.Duration) *SystemResolver {
	return &SystemResolver{
		resolver: net.DefaultResolver,
		timeout:  timeout,
	}
}

// Resolve implements Resolver.
func (r *SystemResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if host == "" {
		return netip.Addr{}, resolutionFailed(host, ErrEmptyHost)
	}
	if addr, ok := literalAddr(host); ok {
		return addr, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resolver := r.resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, resolutionFailed(host, err)
	}
	return pickAddr(host, addrs)
}

// pickAddr returns the first IPv4 address, or the first address of any
// family when there is no IPv4 address.
func pickAddr(host string, addrs []netip.Addr) (netip.Addr, error) {
	if len(addrs) == 0 {
		return netip.Addr{}, resolutionFailed(host, ErrNoAddress)
	}
	for _, addr := range addrs {
		if addr.Unmap().Is4() {
			return addr.Unmap(), nil
		}
	}
	return addrs[0], nil
}

// defaultDNSPort is appended to DNS server addresses given without a port.
const defaultDNSPort = "53"

// DNSResolver resolves hosts by sending a single A query to a specific
// DNS server. It is used when the system resolver is unreliable or filtered.
type DNSResolver struct {
	// server is the DNS server in "host:port" form.
	server string

	// client sends the query.
	client *dns.Client
}

// NewDNSResolver creates a DNSResolver for the given server.
// The server may omit the port, in which case 53 is used.
func NewDNSResolver(server string, timeout time.Duration) (*DNSResolver, error) {
	server, err := NormalizeDNSServer(server)
	if err != nil {
		return nil, err
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

// NormalizeDNSServer validates a DNS server address and adds the default port.
func NormalizeDNSServer(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", fmt.Errorf("dns server: %w", ErrEmptyHost)
	}
	if addr, ok := literalAddr(server); ok {
		return net.JoinHostPort(addr.String(), defaultDNSPort), nil
	}
	host, port, err := net.SplitHostPort(server)
	if err != nil {
		return net.JoinHostPort(server, defaultDNSPort), nil
	}
	if host == "" || port == "" {
		return "", fmt.Errorf("invalid dns server %q", server)
	}
	return server, nil
}

// Server returns the DNS server address queried by this resolver.
func (r *DNSResolver) Server() string {
	return r.server
}

// Resolve implements Resolver.
func (r *DNSResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if host == "" {
		return netip.Addr{}, resolutionFailed(host, ErrEmptyHost)
	}
	if addr, ok := literalAddr(host); ok {
		return addr, nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return netip.Addr{}, resolutionFailed(host, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, resolutionFailed(host, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode]))
	}

	addrs := make([]netip.Addr, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			addrs = append(addrs, addr)
		}
	}
	return pickAddr(host, addrs)
}
