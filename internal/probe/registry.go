package probe

import (
	"sort"

	"github.com/nao1215/proxyprobe/internal/model"
)

// Registry is the dispatch table from protocol tag to probe.
// A disabled protocol is an absent entry.
type Registry struct {
	probes map[model.Protocol]Probe
}

// NewRegistry creates a registry holding the given probes.
// A later probe replaces an earlier one with the same tag.
func NewRegistry(probes ...Probe) *Registry {
	r := &Registry{probes: make(map[model.Protocol]Probe, len(probes))}
	for _, p := range probes {
		r.Register(p)
	}
	return r
}

// DefaultRegistry creates a registry with all four probes sharing env.
func DefaultRegistry(env *Env) *Registry {
	return NewRegistry(
		NewVLESSProbe(env),
		NewVMessProbe(env),
		NewTrojanProbe(env),
		NewShadowsocksProbe(env),
	)
}

// Register adds or replaces the probe for p.Protocol().
func (r *Registry) Register(p Probe) {
	r.probes[p.Protocol()] = p
}

// Lookup returns the probe for protocol.
func (r *Registry) Lookup(protocol model.Protocol) (Probe, bool) {
	p, ok := r.probes[protocol]
	return p, ok
}

// Protocols returns the registered tags, sorted.
func (r *Registry) Protocols() []model.Protocol {
	protocols := make([]model.Protocol, 0, len(r.probes))
	for p := range r.probes {
		protocols = append(protocols, p)
	}
	sort.Slice(protocols, func(i, j int) bool { return protocols[i] < protocols[j] })
	return protocols
}
