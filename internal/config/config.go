package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/proxyprobe/internal/model"
	"github.com/nao1215/proxyprobe/internal/transport"
)

// Default configuration values.
const (
	// DefaultConcurrency is the maximum number of probes in flight.
	// A few hundred sockets keeps a batch of thousands of candidates short
	// without exhausting file descriptors on a default ulimit.
	DefaultConcurrency = 200

	// DefaultTimeout is the per-probe timeout. Live proxies usually answer in
	// well under a second; 8 seconds tolerates slow cross-continent links.
	DefaultTimeout = 8 * time.Second

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap when probing through Tor.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "proxyprobe"
)

// Config holds all configuration options for a probe run.
// It is populated from the config file and CLI flags and passed through the
// application rather than kept in global state.
//
// Design decision: We use a single flat struct, as the number of options is
// small enough that nesting would add ceremony without benefit.
type Config struct {
	// Candidates are candidate URIs given directly on the command line.
	Candidates []string

	// InputFiles are files containing one candidate per line.
	InputFiles []string

	// ReadStdin reads additional candidates from standard input.
	ReadStdin bool

	// Concurrency is the maximum number of probes in flight.
	Concurrency int

	// Timeout is the per-probe timeout. It bounds resolution, and separately
	// the connect, TLS, handshake write and response read sequence.
	Timeout time.Duration

	// Resolver is a DNS server ("host" or "host:port") used instead of the
	// system resolver. Empty means the system resolver.
	Resolver string

	// Upstream is a SOCKS5 proxy ("host:port") that all probes dial through.
	// Empty means direct connections.
	Upstream string

	// UseTor starts an embedded Tor daemon and dials probes through it.
	// Mutually exclusive with Upstream.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon.
	TorStartupTimeout time.Duration

	// InsecureReachabilityTLS disables certificate verification for probe
	// TLS handshakes. It is on by default because a self-signed certificate
	// says nothing about whether a proxy is alive.
	InsecureReachabilityTLS bool

	// Disabled lists protocol tags that are not probed.
	Disabled []string

	// JSONReport writes the report as JSON. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport writes the report as Markdown. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path. Empty means stdout.
	ReportFile string

	// AliveOnly omits dead results from the report.
	AliveOnly bool

	// DBDir is the directory holding the result history database.
	DBDir string

	// SaveToDB stores the run in the history database.
	SaveToDB bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .proxyprobe is searched in the current and home directories.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Concurrency:             DefaultConcurrency,
		Timeout:                 DefaultTimeout,
		TorStartupTimeout:       DefaultTorStartupTimeout,
		InsecureReachabilityTLS: true,
		DBDir:                   XDGDataDir(),
		SaveToDB:                true,
	}
}

// XDGDataDir returns the XDG data directory for proxyprobe.
// On Linux: ~/.local/share/proxyprobe
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for proxyprobe.
// On Linux: ~/.config/proxyprobe
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// HasInput reports whether any candidate source is configured.
func (c *Config) HasInput() bool {
	return len(c.Candidates) > 0 || len(c.InputFiles) > 0 || c.ReadStdin
}

// DisabledProtocols returns the parsed Disabled tags.
// Invalid tags are skipped; Validate reports them.
func (c *Config) DisabledProtocols() []model.Protocol {
	protocols := make([]model.Protocol, 0, len(c.Disabled))
	for _, tag := range c.Disabled {
		if p, err := model.ParseProtocol(tag); err == nil {
			protocols = append(protocols, p)
		}
	}
	return protocols
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error, wrapped with
// the offending value where one exists.
func (c *Config) Validate() error {
	if !c.HasInput() {
		return ErrNoCandidates
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.Resolver != "" {
		if _, err := transport.NormalizeDNSServer(c.Resolver); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidResolver, c.Resolver)
		}
	}
	if c.Upstream != "" {
		if c.UseTor {
			return ErrConflictingUpstream
		}
		if _, err := NormalizeUpstream(c.Upstream); err != nil {
			return err
		}
	}
	if c.UseTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTimeout
	}
	for _, tag := range c.Disabled {
		if _, err := model.ParseProtocol(tag); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidProtocol, tag)
		}
	}
	return nil
}

// NormalizeUpstream validates an upstream SOCKS5 address and strips an
// optional socks5:// or socks5h:// scheme.
func NormalizeUpstream(upstream string) (string, error) {
	addr := strings.TrimSpace(upstream)
	for _, scheme := range []string{"socks5://", "socks5h://"} {
		if len(addr) >= len(scheme) && strings.EqualFold(addr[:len(scheme)], scheme) {
			addr = addr[len(scheme):]
			break
		}
	}
	addr = strings.TrimSuffix(addr, "/")

	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidUpstream, upstream)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("%w: %q", ErrInvalidUpstream, upstream)
	}
	return addr, nil
}
