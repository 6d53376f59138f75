package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/nao1215/proxyprobe/internal/config"
	"github.com/nao1215/proxyprobe/internal/database"
	"github.com/nao1215/proxyprobe/internal/model"
	"github.com/nao1215/proxyprobe/internal/pipeline"
	"github.com/nao1215/proxyprobe/internal/probe"
	"github.com/nao1215/proxyprobe/internal/report"
	"github.com/nao1215/proxyprobe/internal/transport"
	"github.com/nao1215/proxyprobe/internal/upstream"
	"github.com/spf13/cobra"
	"golang.org/x/net/proxy"
)

// maxCandidateLine bounds a single input line. vmess candidates carry a
// base64 JSON document and can be far longer than bufio's default.
const maxCandidateLine = 1 << 20

// errNoDispatchable is returned when every input line was blank, lacked a
// scheme, or belonged to a disabled protocol.
var errNoDispatchable = errors.New("no candidates to probe after filtering input")

// NewProbeCmd creates the probe command.
func NewProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe [candidate...]",
		Short: "Probe proxy candidates for liveness and latency",
		Long: `Probe tests every candidate and reports which ones are alive.

Candidates are share links with one of the schemes vless://, vmess://,
trojan:// or ss://. Lines with other schemes are skipped with a warning.

Every probe has its own timeout for DNS resolution and a second budget of
the same length for connecting, the TLS handshake and the first response byte.

Examples:
  # Probe a single candidate
  proxyprobe probe 'trojan://secret@example.com:443#jp'

  # Probe every line of a file, 300 at a time, 5 seconds per probe
  proxyprobe probe -f links.txt -c 300 -t 5s

  # Read candidates from a pipe and print only alive ones as JSON
  cat links.txt | proxyprobe probe --stdin --alive-only --json

  # Resolve through 1.1.1.1 and connect through a SOCKS5 proxy
  proxyprobe probe -f links.txt --resolver 1.1.1.1 --upstream 127.0.0.1:1080

  # Probe from behind an embedded Tor daemon
  proxyprobe probe -f links.txt --tor`,
		Args: cobra.ArbitraryArgs,
		RunE: runProbeCmd,
	}

	// Input flags
	cmd.Flags().StringArrayP("file", "f", nil,
		"Read candidates from a file, one per line (repeatable)")
	cmd.Flags().Bool("stdin", false,
		"Read candidates from standard input, one per line")

	// Probe behavior flags
	cmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency,
		"Maximum number of probes in flight")
	timeout := config.Duration(config.DefaultTimeout)
	cmd.Flags().VarP(&timeout, "timeout", "t",
		"Per-probe timeout, as a duration (8s) or whole seconds (8)")
	cmd.Flags().String("resolver", "",
		"DNS server to resolve candidate hosts with (default: system resolver)")
	cmd.Flags().Bool("insecure-reachability-tls", true,
		"Skip certificate verification in probe TLS handshakes")
	cmd.Flags().StringSlice("disable", nil,
		"Protocol tags to skip (vless, vmess, trojan, ss)")

	// Upstream flags
	cmd.Flags().String("upstream", "",
		"Dial every probe through this SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false,
		"Dial every probe through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().String("config", "",
		"Configuration file path (default: .proxyprobe in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output the protocol to results mapping as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output a Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("alive-only", false,
		"Omit dead candidates from the report")

	// History flags
	cmd.Flags().Bool("no-save", false,
		"Do not store this run in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runProbeCmd executes the probe command.
func runProbeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	// SIGINT and SIGTERM stop admitting new probes. Probes already in
	// flight finish and the partial report is still written.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runProbe(ctx, cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig creates a Config from the configuration file and cobra
// command flags. Flags given on the command line win over file values.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if err := applyConfigFile(cfg); err != nil {
		return nil, err
	}

	cfg.Candidates = args
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.InputFiles, err = flags.GetStringArray("file"); err != nil {
		return nil, err
	}
	if cfg.ReadStdin, err = flags.GetBool("stdin"); err != nil {
		return nil, err
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = config.ParseDuration(flags.Lookup("timeout").Value.String()); err != nil {
			return nil, err
		}
	}
	if flags.Changed("resolver") {
		if cfg.Resolver, err = flags.GetString("resolver"); err != nil {
			return nil, err
		}
	}
	if cfg.InsecureReachabilityTLS, err = flags.GetBool("insecure-reachability-tls"); err != nil {
		return nil, err
	}
	if flags.Changed("disable") {
		if cfg.Disabled, err = flags.GetStringSlice("disable"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("upstream") {
		if cfg.Upstream, err = flags.GetString("upstream"); err != nil {
			return nil, err
		}
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if flags.Changed("alive-only") {
		if cfg.AliveOnly, err = flags.GetBool("alive-only"); err != nil {
			return nil, err
		}
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	return cfg, nil
}

// applyConfigFile loads the configuration file, if any, onto cfg.
// A missing file is only an error when its path was given explicitly.
func applyConfigFile(cfg *config.Config) error {
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		if cfg.ConfigFilePath != "" {
			return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		return nil
	}

	file, err := config.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	file.Apply(cfg)
	return nil
}

// runProbe loads candidates, probes them and writes the report.
func runProbe(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdin io.Reader, stdout, stderr io.Writer) error {
	lines, err := loadCandidates(cfg, stdin)
	if err != nil {
		return err
	}

	groups := model.Categorize(lines)
	for _, p := range cfg.DisabledProtocols() {
		if n := len(groups[p]); n > 0 {
			logger.Info("protocol disabled, skipping candidates", "protocol", p, "count", n)
		}
		delete(groups, p)
	}
	if len(groups) == 0 {
		return errNoDispatchable
	}

	env, cleanup, err := buildEnv(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	var db *database.ResultDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
	}

	orchestrator := pipeline.New(
		pipeline.WithRegistry(probe.DefaultRegistry(env)),
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithTimeout(cfg.Timeout),
		pipeline.WithLogger(logger),
		pipeline.WithProgress(progressPrinter(stderr, countDispatchable(groups))),
	)

	batch, err := orchestrator.Run(ctx, groups)
	if err != nil {
		return err
	}

	if err := outputReport(cfg, batch, stdout); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if db != nil {
		// The run context may already be cancelled; the history is still worth keeping.
		id, err := db.SaveRun(context.WithoutCancel(ctx), batch)
		if err != nil {
			logger.Error("failed to save run", "error", err)
		} else {
			logger.Info("run saved to history", "run_id", id)
		}
	}
	return nil
}

// loadCandidates collects candidate lines from arguments, files and stdin,
// in that order.
func loadCandidates(cfg *config.Config, stdin io.Reader) ([]string, error) {
	lines := append([]string(nil), cfg.Candidates...)

	for _, path := range cfg.InputFiles {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to open candidate file: %w", err)
		}
		fileLines, err := readLines(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read candidate file %s: %w", path, err)
		}
		lines = append(lines, fileLines...)
	}

	if cfg.ReadStdin {
		stdinLines, err := readLines(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read standard input: %w", err)
		}
		lines = append(lines, stdinLines...)
	}
	return lines, nil
}

// readLines returns every line of r. Blank lines are kept; Categorize
// drops them.
func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCandidateLine)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// buildEnv wires the resolver and the establisher (and through it the
// upstream dialer) into a probe environment. The returned cleanup stops
// an embedded Tor daemon if one was started.
func buildEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*probe.Env, func(), error) {
	env := probe.NewEnv(cfg.Timeout, logger)
	cleanup := func() {}

	if cfg.Resolver != "" {
		resolver, err := transport.NewDNSResolver(cfg.Resolver, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalidResolver, err)
		}
		env.Resolver = resolver
		logger.Debug("using DNS server", "server", resolver.Server())
	}

	var dialer proxy.ContextDialer
	switch {
	case cfg.Upstream != "":
		addr, err := config.NormalizeUpstream(cfg.Upstream)
		if err != nil {
			return nil, nil, err
		}
		if status := upstream.Check(ctx, addr); status != upstream.StatusOK {
			return nil, nil, fmt.Errorf("upstream proxy check failed at %s: %w", addr, status.Err())
		}
		socks, err := upstream.NewSOCKS5Dialer(addr)
		if err != nil {
			return nil, nil, err
		}
		dialer = socks
		logger.Info("probing through upstream proxy", "address", addr)

	case cfg.UseTor:
		socks, stopTor, err := startEmbeddedTor(ctx, cfg, logger, stderr)
		if err != nil {
			return nil, nil, err
		}
		dialer = socks
		cleanup = stopTor
	}

	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithInsecureReachabilityTLS(cfg.InsecureReachabilityTLS),
	}
	if dialer != nil {
		opts = append(opts, transport.WithDialer(dialer))
	}
	env.Establisher = transport.NewEstablisher(opts...)

	return env, cleanup, nil
}

// startEmbeddedTor starts an embedded Tor daemon and returns a dialer
// through it together with a function that stops the daemon.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*upstream.SOCKS5Dialer, func(), error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintln(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.")

	embeddedTor := upstream.NewEmbeddedTor(upstream.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	stopTor := func() {
		logger.Info("stopping embedded Tor daemon")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	dialer, err := embeddedTor.Dialer()
	if err != nil {
		stopTor()
		return nil, nil, fmt.Errorf("failed to create Tor dialer: %w", err)
	}
	if status := upstream.Check(ctx, dialer.Address()); status != upstream.StatusOK {
		stopTor()
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Err())
	}

	logger.Info("embedded Tor daemon started", "socks_addr", dialer.Address())
	return dialer, stopTor, nil
}

// countDispatchable returns how many candidates will produce a result.
func countDispatchable(groups map[model.Protocol][]string) int {
	total := 0
	for p, candidates := range groups {
		if p.Supported() {
			total += len(candidates)
		}
	}
	return total
}

// progressPrinter returns a progress callback that writes one line per
// finished probe. Lines never include the candidate, which carries
// credentials.
func progressPrinter(w io.Writer, total int) pipeline.ProgressFunc {
	var done atomic.Int64
	return func(r *model.ProbeResult) {
		n := done.Add(1)
		if r.Alive() {
			fmt.Fprintf(w, "[%d/%d] %-6s alive %s\n", n, total, r.Protocol.DisplayName(), formatPing(r))
			return
		}
		fmt.Fprintf(w, "[%d/%d] %-6s dead  %s\n", n, total, r.Protocol.DisplayName(), r.Reason)
	}
}

func formatPing(r *model.ProbeResult) string {
	if latency, ok := r.Latency(); ok {
		return latency.String()
	}
	return "-"
}

// outputReport writes the report in the requested format to the report
// file or to stdout.
func outputReport(cfg *config.Config, batch *model.BatchReport, stdout io.Writer) error {
	opts := []report.Option{
		report.WithAliveOnly(cfg.AliveOnly),
		report.WithVerbose(cfg.Verbose),
	}
	if cfg.ReportFile == "" {
		_, err := newReportWriter(cfg.JSONReport, cfg.MarkdownReport, stdout, opts...).Write(batch)
		return err
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports contain credentials, so only the owner may read them.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	// The file gets the requested format; the terminal still gets the summary.
	_, err = report.NewMultiWriter(
		newReportWriter(cfg.JSONReport, cfg.MarkdownReport, f, opts...),
		report.NewSimpleWriter(stdout, report.WithAliveOnly(cfg.AliveOnly)),
	).Write(batch)
	return err
}

// newReportWriter picks the writer for the requested format.
func newReportWriter(asJSON, asMarkdown bool, output io.Writer, opts ...report.Option) report.Writer {
	switch {
	case asJSON:
		return report.NewJSONWriter(output, append(opts, report.WithPrettyPrint())...)
	case asMarkdown:
		return report.NewMarkdownWriter(output, opts...)
	default:
		return report.NewSimpleWriter(output, opts...)
	}
}
