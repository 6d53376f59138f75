package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/proxyprobe/internal/model"
	"github.com/nao1215/proxyprobe/internal/nettest"
	"github.com/nao1215/proxyprobe/internal/probe"
	"github.com/nao1215/proxyprobe/internal/transport"
)

const testUUID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProbe runs fn for every candidate.
type fakeProbe struct {
	protocol model.Protocol
	fn       func(ctx context.Context, candidate string) *model.ProbeResult
}

func (f *fakeProbe) Protocol() model.Protocol { return f.protocol }

func (f *fakeProbe) Probe(ctx context.Context, candidate string) *model.ProbeResult {
	return f.fn(ctx, candidate)
}

func aliveProbe(protocol model.Protocol) *fakeProbe {
	return &fakeProbe{protocol: protocol, fn: func(_ context.Context, c string) *model.ProbeResult {
		return model.NewAliveResult(protocol, c, time.Millisecond)
	}}
}

// TestOrchestratorNew tests defaults and options.
func TestOrchestratorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates orchestrator with defaults", func(t *testing.T) {
		t.Parallel()

		o := New(WithLogger(discardLogger()))
		if o.concurrency != DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, o.concurrency)
		}
		if o.timeout != DefaultTimeout {
			t.Errorf("expected timeout %v, got %v", DefaultTimeout, o.timeout)
		}
		if len(o.registry.Protocols()) != 4 {
			t.Errorf("expected the default registry to hold 4 probes")
		}
	})

	t.Run("ignores non-positive values", func(t *testing.T) {
		t.Parallel()

		o := New(WithConcurrency(0), WithTimeout(-time.Second), WithLogger(discardLogger()))
		if o.concurrency != DefaultConcurrency || o.timeout != DefaultTimeout {
			t.Errorf("got concurrency %d timeout %v", o.concurrency, o.timeout)
		}
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		t.Parallel()

		o := New(WithLogger(nil))
		if o.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestOrchestratorOneResultPerCandidate tests that every candidate yields
// exactly one result carrying its original string.
func TestOrchestratorOneResultPerCandidate(t *testing.T) {
	t.Parallel()

	registry := probe.NewRegistry(
		aliveProbe(model.ProtocolVLESS),
		&fakeProbe{protocol: model.ProtocolShadowsocks, fn: func(_ context.Context, c string) *model.ProbeResult {
			return model.NewDeadResult(model.ProtocolShadowsocks, c, model.ErrConnectFailed)
		}},
	)
	o := New(WithRegistry(registry), WithConcurrency(3), WithLogger(discardLogger()))

	groups := map[model.Protocol][]string{
		model.ProtocolVLESS:       {},
		model.ProtocolShadowsocks: {},
	}
	for i := range 25 {
		groups[model.ProtocolVLESS] = append(groups[model.ProtocolVLESS], fmt.Sprintf("vless://%d", i))
		groups[model.ProtocolShadowsocks] = append(groups[model.ProtocolShadowsocks], fmt.Sprintf("ss://%d", i))
	}

	report, err := o.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for protocol, candidates := range groups {
		results := report.Results[protocol]
		if len(results) != len(candidates) {
			t.Fatalf("%s: %d results for %d candidates", protocol, len(results), len(candidates))
		}
		seen := make(map[string]int)
		for _, r := range results {
			seen[r.Link]++
			if r.Protocol != protocol {
				t.Errorf("result %s has protocol %s", r.Link, r.Protocol)
			}
		}
		for _, c := range candidates {
			if seen[c] != 1 {
				t.Errorf("%s appears %d times", c, seen[c])
			}
		}
	}
	if report.AliveCount() != 25 || report.DeadCount() != 25 {
		t.Errorf("alive=%d dead=%d", report.AliveCount(), report.DeadCount())
	}
}

// TestOrchestratorRespectsConcurrency tests that in-flight probes never
// exceed the budget.
func TestOrchestratorRespectsConcurrency(t *testing.T) {
	t.Parallel()

	const budget = 4
	var inFlight, peak atomic.Int64

	slow := &fakeProbe{protocol: model.ProtocolVMess, fn: func(_ context.Context, c string) *model.ProbeResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return model.NewAliveResult(model.ProtocolVMess, c, 10*time.Millisecond)
	}}

	candidates := make([]string, 40)
	for i := range candidates {
		candidates[i] = fmt.Sprintf("vmess://%d", i)
	}

	o := New(WithRegistry(probe.NewRegistry(slow)), WithConcurrency(budget), WithLogger(discardLogger()))
	if _, err := o.Run(context.Background(), map[model.Protocol][]string{model.ProtocolVMess: candidates}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := peak.Load(); got > budget {
		t.Errorf("peak in-flight %d exceeds budget %d", got, budget)
	}
	if got := peak.Load(); got < 2 {
		t.Errorf("peak in-flight %d, expected probes to overlap", got)
	}
}

// trackingDialer counts open connections and records the peak.
type trackingDialer struct {
	inner      net.Dialer
	open, peak atomic.Int64
}

func (d *trackingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.inner.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	n := d.open.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &trackedConn{Conn: conn, dialer: d}, nil
}

type trackedConn struct {
	net.Conn
	dialer *trackingDialer
	once   sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() { c.dialer.open.Add(-1) })
	return c.Conn.Close()
}

// TestOrchestratorBoundsOpenTransports tests the socket cap with real probes
// and an instrumented dialer.
func TestOrchestratorBoundsOpenTransports(t *testing.T) {
	t.Parallel()

	const budget = 3
	srv := nettest.Serve(t, nettest.ReadThenReply(probe.VLESSHandshakeLen, 30*time.Millisecond, nil))

	dialer := &trackingDialer{}
	env := &probe.Env{
		Resolver:    transport.NewSystemResolver(time.Second),
		Establisher: transport.NewEstablisher(transport.WithDialer(dialer), transport.WithTimeout(2*time.Second)),
		Timeout:     2 * time.Second,
		Logger:      discardLogger(),
	}

	candidates := make([]string, 15)
	for i := range candidates {
		candidates[i] = fmt.Sprintf("vless://%s@127.0.0.1:%d#n%d", testUUID, srv.Port(), i)
	}

	o := New(WithRegistry(probe.DefaultRegistry(env)), WithConcurrency(budget), WithLogger(discardLogger()))
	report, err := o.Run(context.Background(), map[model.Protocol][]string{model.ProtocolVLESS: candidates})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.AliveCount() != len(candidates) {
		t.Errorf("expected all alive, got %d", report.AliveCount())
	}
	if got := dialer.peak.Load(); got > budget {
		t.Errorf("peak open transports %d exceeds budget %d", got, budget)
	}
	if got := dialer.open.Load(); got != 0 {
		t.Errorf("%d transports left open", got)
	}
}

// TestOrchestratorEndToEnd tests one live and one closed VLESS endpoint.
func TestOrchestratorEndToEnd(t *testing.T) {
	t.Parallel()

	srv := nettest.Serve(t, nettest.ReadThenReply(probe.VLESSHandshakeLen, 50*time.Millisecond, nil))
	closed := nettest.ClosedPort(t)

	live := fmt.Sprintf("vless://%s@127.0.0.1:%d?security=none#live", testUUID, srv.Port())
	dead := fmt.Sprintf("vless://%s@127.0.0.1:%d?security=none#dead", testUUID, closed)

	o := New(WithTimeout(2*time.Second), WithConcurrency(10), WithLogger(discardLogger()))
	report, err := o.Run(context.Background(), map[model.Protocol][]string{
		model.ProtocolVLESS: {live, dead},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Results) != 1 {
		t.Errorf("expected results for vless only, got %v", report.Protocols())
	}
	results := map[string]*model.ProbeResult{}
	for _, r := range report.Results[model.ProtocolVLESS] {
		results[r.Link] = r
	}

	alive := results[live]
	if alive == nil || !alive.Alive() {
		t.Fatalf("expected %s to be alive, got %+v", live, alive)
	}
	if *alive.PingMS < 50 || *alive.PingMS > 1000 {
		t.Errorf("ping %dms, expected about 50ms", *alive.PingMS)
	}

	failed := results[dead]
	if failed == nil || failed.Alive() || failed.Reason != model.ReasonConnectFailed {
		t.Errorf("expected %s dead/ConnectFailed, got %+v", dead, failed)
	}
}

// TestOrchestratorRecoversPanics tests that a crashing probe is isolated.
func TestOrchestratorRecoversPanics(t *testing.T) {
	t.Parallel()

	crashy := &fakeProbe{protocol: model.ProtocolTrojan, fn: func(_ context.Context, c string) *model.ProbeResult {
		if c == "trojan://boom" {
			panic("handshake exploded")
		}
		if c == "trojan://nil" {
			return nil
		}
		return model.NewAliveResult(model.ProtocolTrojan, c, time.Millisecond)
	}}

	o := New(WithRegistry(probe.NewRegistry(crashy)), WithLogger(discardLogger()))
	report, err := o.Run(context.Background(), map[model.Protocol][]string{
		model.ProtocolTrojan: {"trojan://ok1", "trojan://boom", "trojan://nil", "trojan://ok2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byLink := map[string]*model.ProbeResult{}
	for _, r := range report.Results[model.ProtocolTrojan] {
		byLink[r.Link] = r
	}
	for _, link := range []string{"trojan://boom", "trojan://nil"} {
		if r := byLink[link]; r == nil || r.Reason != model.ReasonInternalError {
			t.Errorf("%s: expected InternalError, got %+v", link, r)
		}
	}
	for _, link := range []string{"trojan://ok1", "trojan://ok2"} {
		if r := byLink[link]; r == nil || !r.Alive() {
			t.Errorf("%s: sibling should be alive, got %+v", link, r)
		}
	}
}

// TestOrchestratorSkipsUnsupported tests that unknown tags are a soft skip.
func TestOrchestratorSkipsUnsupported(t *testing.T) {
	t.Parallel()

	o := New(WithRegistry(probe.NewRegistry(aliveProbe(model.ProtocolShadowsocks))), WithLogger(discardLogger()))
	report, err := o.Run(context.Background(), map[model.Protocol][]string{
		model.ProtocolShadowsocks: {"ss://a"},
		model.Protocol("tuic"):    {"tuic://x", "tuic://y"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "tuic" {
		t.Errorf("skipped = %v", report.Skipped)
	}
	if _, ok := report.Results["tuic"]; ok {
		t.Error("unsupported tag must not produce results")
	}
	if report.Total() != 1 {
		t.Errorf("expected 1 result, got %d", report.Total())
	}
}

// TestOrchestratorSkipsEmptyGroups tests that a tag without candidates
// produces no result entry at all.
func TestOrchestratorSkipsEmptyGroups(t *testing.T) {
	t.Parallel()

	o := New(WithRegistry(probe.NewRegistry(aliveProbe(model.ProtocolShadowsocks))), WithLogger(discardLogger()))
	report, err := o.Run(context.Background(), map[model.Protocol][]string{
		model.ProtocolShadowsocks: {"ss://a"},
		// No vless probe is registered, but an empty group needs none.
		model.ProtocolVLESS:    {},
		model.Protocol("tuic"): nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := report.Results[model.ProtocolVLESS]; ok {
		t.Error("empty group must not produce a result entry")
	}
	if len(report.Skipped) != 0 {
		t.Errorf("empty unsupported group should not be reported as skipped, got %v", report.Skipped)
	}
	if got := report.Protocols(); len(got) != 1 || got[0] != model.ProtocolShadowsocks {
		t.Errorf("protocols = %v", got)
	}
}

// TestOrchestratorMissingProbe tests that a supported tag without a probe is fatal.
func TestOrchestratorMissingProbe(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	counting := &fakeProbe{protocol: model.ProtocolVLESS, fn: func(_ context.Context, c string) *model.ProbeResult {
		calls.Add(1)
		return model.NewAliveResult(model.ProtocolVLESS, c, 0)
	}}

	o := New(WithRegistry(probe.NewRegistry(counting)), WithLogger(discardLogger()))
	_, err := o.Run(context.Background(), map[model.Protocol][]string{
		model.ProtocolVLESS: {"vless://a"},
		model.ProtocolVMess: {"vmess://b"},
	})
	if !errors.Is(err, ErrProbeNotRegistered) {
		t.Errorf("expected ErrProbeNotRegistered, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("no probe should run when the registry is misconfigured")
	}
}

// TestOrchestratorCancelled tests that a cancelled run still reports every candidate.
func TestOrchestratorCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var progressed atomic.Int64
	o := New(
		WithRegistry(probe.NewRegistry(aliveProbe(model.ProtocolVLESS))),
		WithLogger(discardLogger()),
		WithProgress(func(*model.ProbeResult) { progressed.Add(1) }),
	)
	report, err := o.Run(ctx, map[model.Protocol][]string{
		model.ProtocolVLESS: {"vless://1", "vless://2", "vless://3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total() != 3 {
		t.Fatalf("expected 3 results, got %d", report.Total())
	}
	for _, r := range report.Results[model.ProtocolVLESS] {
		if r.Reason != model.ReasonTimedOut {
			t.Errorf("%s: expected TimedOut, got %s", r.Link, r.Reason)
		}
	}
	if progressed.Load() != 3 {
		t.Errorf("progress called %d times, expected 3", progressed.Load())
	}
}
