package probe

import (
	"context"
	"net"

	"github.com/nao1215/proxyprobe/internal/model"
)

// Probe classifies one candidate of a single protocol as alive or dead.
//
// Implementations must return exactly one non-nil result per call and must
// not return failures any other way. They must respect ctx cancellation.
type Probe interface {
	// Protocol returns the tag this probe handles.
	Protocol() model.Protocol

	// Probe tests the candidate and returns its terminal result.
	Probe(ctx context.Context, candidate string) *model.ProbeResult
}

// VLESSProbe sends a VLESS request header and waits for any response byte.
type VLESSProbe struct {
	env *Env
}

// NewVLESSProbe creates a VLESSProbe.
func NewVLESSProbe(env *Env) *VLESSProbe {
	return &VLESSProbe{env: env}
}

// Protocol implements Probe.
func (p *VLESSProbe) Protocol() model.Protocol {
	return model.ProtocolVLESS
}

// Probe implements Probe. TLS is used when the candidate's security
// parameter asks for it.
func (p *VLESSProbe) Probe(ctx context.Context, candidate string) *model.ProbeResult {
	return p.env.run(ctx, plan{
		protocol: model.ProtocolVLESS,
		exchange: func(conn net.Conn, ep *model.Endpoint) error {
			return sendAndAwait(conn, BuildVLESSHandshake(ep.UUID))
		},
	}, candidate)
}

// VMessProbe treats a completed connect (and TLS, when the envelope asks for
// it) as liveness. No application bytes are sent.
type VMessProbe struct {
	env *Env
}

// NewVMessProbe creates a VMessProbe.
func NewVMessProbe(env *Env) *VMessProbe {
	return &VMessProbe{env: env}
}

// Protocol implements Probe.
func (p *VMessProbe) Protocol() model.Protocol {
	return model.ProtocolVMess
}

// Probe implements Probe.
func (p *VMessProbe) Probe(ctx context.Context, candidate string) *model.ProbeResult {
	return p.env.run(ctx, plan{protocol: model.ProtocolVMess}, candidate)
}

// TrojanProbe negotiates TLS unconditionally, sends the Trojan request
// header and waits for any response byte. An endpoint that refuses TLS is
// dead with reason TlsFailed.
type TrojanProbe struct {
	env *Env
}

// NewTrojanProbe creates a TrojanProbe.
func NewTrojanProbe(env *Env) *TrojanProbe {
	return &TrojanProbe{env: env}
}

// Protocol implements Probe.
func (p *TrojanProbe) Protocol() model.Protocol {
	return model.ProtocolTrojan
}

// Probe implements Probe.
func (p *TrojanProbe) Probe(ctx context.Context, candidate string) *model.ProbeResult {
	return p.env.run(ctx, plan{
		protocol: model.ProtocolTrojan,
		forceTLS: true,
		exchange: func(conn net.Conn, ep *model.Endpoint) error {
			return sendAndAwait(conn, BuildTrojanHandshake(ep.Password))
		},
	}, candidate)
}

// ShadowsocksProbe treats a successful TCP connect as liveness.
// Nothing is written to the connection.
type ShadowsocksProbe struct {
	env *Env
}

// NewShadowsocksProbe creates a ShadowsocksProbe.
func NewShadowsocksProbe(env *Env) *ShadowsocksProbe {
	return &ShadowsocksProbe{env: env}
}

// Protocol implements Probe.
func (p *ShadowsocksProbe) Protocol() model.Protocol {
	return model.ProtocolShadowsocks
}

// Probe implements Probe.
func (p *ShadowsocksProbe) Probe(ctx context.Context, candidate string) *model.ProbeResult {
	return p.env.run(ctx, plan{protocol: model.ProtocolShadowsocks}, candidate)
}
