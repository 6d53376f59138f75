package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nao1215/proxyprobe/internal/model"
	"github.com/nao1215/proxyprobe/internal/probe"
	"golang.org/x/sync/errgroup"
)

// Defaults for an Orchestrator created without options.
const (
	// DefaultConcurrency is the maximum number of probes in flight.
	DefaultConcurrency = 200

	// DefaultTimeout is the per-probe timeout.
	DefaultTimeout = 8 * time.Second
)

// ErrProbeNotRegistered is returned by Run when a supported protocol tag has
// no probe in the registry. It indicates a wiring mistake, not a runtime
// condition, so the whole run is refused.
var ErrProbeNotRegistered = errors.New("no probe registered for supported protocol")

// ProgressFunc receives every terminal result as soon as it is produced.
// It is called from worker goroutines and must be safe for concurrent use.
type ProgressFunc func(result *model.ProbeResult)

// Orchestrator fans candidates out to probes over a bounded pool.
//
// Every submitted candidate yields exactly one result. A probe that fails
// becomes a dead result, and a probe that panics becomes a dead result with
// reason InternalError; neither affects sibling probes.
type Orchestrator struct {
	// registry maps protocol tags to probes.
	registry *probe.Registry

	// concurrency is the maximum number of probes in flight.
	concurrency int

	// timeout is the per-probe timeout, used to build the default registry.
	timeout time.Duration

	// logger is used for run-level logging.
	logger *slog.Logger

	// progress is called for each terminal result. May be nil.
	progress ProgressFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry sets the probe dispatch table.
// Without it, all four probes are used with a direct system environment.
func WithRegistry(r *probe.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithConcurrency sets the maximum number of probes in flight.
// Non-positive values keep the default.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithTimeout sets the per-probe timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithProgress sets a callback invoked for every terminal result.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = probe.DefaultRegistry(probe.NewEnv(o.timeout, o.logger))
	}
	return o
}

// Concurrency returns the configured pool size.
func (o *Orchestrator) Concurrency() int {
	return o.concurrency
}

// task is one candidate bound to its probe.
type task struct {
	protocol  model.Protocol
	candidate string
	probe     probe.Probe
}

// Run probes every candidate in groups and returns the results grouped by
// protocol tag.
//
// Unsupported tags are skipped with a warning and listed in
// BatchReport.Skipped. A supported tag without a registered probe aborts the
// run with ErrProbeNotRegistered before any probe starts.
//
// Cancelling ctx stops admission of queued candidates. Candidates that never
// ran are reported as dead with reason TimedOut, so the result count always
// equals the number of dispatchable candidates.
func (o *Orchestrator) Run(ctx context.Context, groups map[model.Protocol][]string) (*model.BatchReport, error) {
	report := model.NewBatchReport()
	report.Concurrency = o.concurrency
	report.Timeout = o.timeout
	report.StartedAt = time.Now()

	tasks, err := o.plan(groups, report)
	if err != nil {
		return nil, err
	}

	o.logger.Info("starting probe run",
		"candidates", len(tasks),
		"protocols", len(report.Results),
		"concurrency", o.concurrency,
		"timeout", o.timeout,
	)

	// Each task owns one slot, so workers never share mutable state.
	slots := make([]*model.ProbeResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for i, t := range tasks {
		if ctx.Err() != nil {
			slots[i] = notRun(t, ctx.Err())
			o.notify(slots[i])
			continue
		}
		g.Go(func() error {
			slots[i] = o.execute(ctx, t)
			o.notify(slots[i])
			return nil
		})
	}
	// Workers never return errors; failures live in the results.
	_ = g.Wait()

	for i, t := range tasks {
		report.Results[t.protocol] = append(report.Results[t.protocol], slots[i])
	}
	report.Duration = time.Since(report.StartedAt)

	if ctx.Err() != nil {
		o.logger.Warn("probe run interrupted", "error", ctx.Err())
	}
	o.logger.Info("probe run complete",
		"total", report.Total(),
		"alive", report.AliveCount(),
		"dead", report.DeadCount(),
		"elapsed", report.Duration,
	)
	return report, nil
}

// plan validates the groups against the registry and flattens them into
// tasks. Protocols are visited in sorted order so runs are reproducible.
func (o *Orchestrator) plan(groups map[model.Protocol][]string, report *model.BatchReport) ([]task, error) {
	protocols := make([]model.Protocol, 0, len(groups))
	total := 0
	for p, candidates := range groups {
		protocols = append(protocols, p)
		total += len(candidates)
	}
	sort.Slice(protocols, func(i, j int) bool { return protocols[i] < protocols[j] })

	tasks := make([]task, 0, total)
	for _, protocol := range protocols {
		candidates := groups[protocol]
		if len(candidates) == 0 {
			continue
		}

		p, ok := o.registry.Lookup(protocol)
		if !ok {
			if protocol.Supported() {
				return nil, fmt.Errorf("%w: %s", ErrProbeNotRegistered, protocol)
			}
			o.logger.Warn("skipping unsupported protocol",
				"protocol", protocol.String(),
				"candidates", len(candidates),
			)
			report.Skipped = append(report.Skipped, protocol)
			continue
		}

		report.Results[protocol] = make([]*model.ProbeResult, 0, len(candidates))
		for _, candidate := range candidates {
			tasks = append(tasks, task{protocol: protocol, candidate: candidate, probe: p})
		}
	}
	return tasks, nil
}

// execute runs one probe and always returns a result.
func (o *Orchestrator) execute(ctx context.Context, t task) (result *model.ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("probe panicked",
				"protocol", t.protocol.String(),
				"panic", fmt.Sprint(r),
			)
			result = model.NewDeadResult(t.protocol, t.candidate,
				model.NewProbeError(model.ReasonInternalError, fmt.Errorf("panic: %v", r)))
		}
	}()

	if ctx.Err() != nil {
		return notRun(t, ctx.Err())
	}

	result = t.probe.Probe(ctx, t.candidate)
	if result == nil {
		return model.NewDeadResult(t.protocol, t.candidate,
			model.NewProbeError(model.ReasonInternalError, errors.New("probe returned no result")))
	}
	// The result must identify the submitted candidate.
	result.Link = t.candidate
	result.Protocol = t.protocol
	return result
}

func (o *Orchestrator) notify(result *model.ProbeResult) {
	if o.progress != nil {
		o.progress(result)
	}
}

// notRun returns the result of a candidate that was never admitted.
func notRun(t task, cause error) *model.ProbeResult {
	return model.NewDeadResult(t.protocol, t.candidate, model.NewProbeError(model.ReasonTimedOut, cause))
}
