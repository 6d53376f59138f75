package model

import (
	"sort"
	"time"
)

// BatchReport holds every probe result of one orchestrator run,
// grouped by protocol tag.
type BatchReport struct {
	// Results maps each dispatched protocol tag to its results.
	// Order within a protocol need not match input order.
	Results map[Protocol][]*ProbeResult `json:"results"`

	// Skipped lists protocol tags that were submitted but have no probe.
	Skipped []Protocol `json:"skipped,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration `json:"duration"`

	// Concurrency is the maximum number of simultaneous probes used.
	Concurrency int `json:"concurrency"`

	// Timeout is the per-probe timeout used.
	Timeout time.Duration `json:"timeout"`
}

// NewBatchReport creates an empty BatchReport with an initialized map.
func NewBatchReport() *BatchReport {
	return &BatchReport{
		Results: make(map[Protocol][]*ProbeResult),
		Skipped: make([]Protocol, 0),
	}
}

// Protocols returns the tags present in Results, sorted.
func (b *BatchReport) Protocols() []Protocol {
	protocols := make([]Protocol, 0, len(b.Results))
	for p := range b.Results {
		protocols = append(protocols, p)
	}
	sort.Slice(protocols, func(i, j int) bool { return protocols[i] < protocols[j] })
	return protocols
}

// Total returns the number of results across all protocols.
func (b *BatchReport) Total() int {
	total := 0
	for _, results := range b.Results {
		total += len(results)
	}
	return total
}

// AliveCount returns the number of alive results across all protocols.
func (b *BatchReport) AliveCount() int {
	count := 0
	for _, results := range b.Results {
		for _, r := range results {
			if r.Alive() {
				count++
			}
		}
	}
	return count
}

// DeadCount returns the number of dead results across all protocols.
func (b *BatchReport) DeadCount() int {
	return b.Total() - b.AliveCount()
}

// Summary returns the alive and dead counts of one protocol.
func (b *BatchReport) Summary(p Protocol) (alive, dead int) {
	for _, r := range b.Results[p] {
		if r.Alive() {
			alive++
		} else {
			dead++
		}
	}
	return alive, dead
}

// Alive returns every alive result, fastest first.
// Ties are broken by link so the order is stable.
func (b *BatchReport) Alive() []*ProbeResult {
	alive := make([]*ProbeResult, 0)
	for _, p := range b.Protocols() {
		for _, r := range b.Results[p] {
			if r.Alive() {
				alive = append(alive, r)
			}
		}
	}
	sort.SliceStable(alive, func(i, j int) bool {
		li, _ := alive[i].Latency()
		lj, _ := alive[j].Latency()
		if li != lj {
			return li < lj
		}
		return alive[i].Link < alive[j].Link
	})
	return alive
}

// ReasonCounts returns how many dead results carry each failure reason.
func (b *BatchReport) ReasonCounts() map[FailureReason]int {
	counts := make(map[FailureReason]int)
	for _, results := range b.Results {
		for _, r := range results {
			if !r.Alive() {
				counts[r.Reason]++
			}
		}
	}
	return counts
}

// AliveOnly returns a shallow copy of the report that keeps only alive
// results. Protocols with no alive results keep an empty slice.
func (b *BatchReport) AliveOnly() *BatchReport {
	filtered := *b
	filtered.Results = make(map[Protocol][]*ProbeResult, len(b.Results))
	for p, results := range b.Results {
		kept := make([]*ProbeResult, 0, len(results))
		for _, r := range results {
			if r.Alive() {
				kept = append(kept, r)
			}
		}
		filtered.Results[p] = kept
	}
	return &filtered
}
