// Package pipeline runs probes for a batch of candidates.
//
// The Orchestrator takes candidates already grouped by protocol tag,
// dispatches each one to the probe registered for its tag and collects one
// result per candidate. A bounded errgroup caps the number of probes, and
// therefore sockets, in flight at once, no matter how many candidates are
// queued.
//
// Design decision: Each candidate gets a pre-allocated result slot that only
// its own goroutine writes. The results are grouped by protocol after every
// worker has finished, so no lock protects the collection.
//
// There is no cross-probe cancellation. A slow or hostile server only ever
// holds its own slot, for at most the per-probe timeout.
package pipeline
