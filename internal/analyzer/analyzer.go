// Package analyzer routes decoded packets into the conversation registries.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"pcapconv/internal/conv"
	"pcapconv/internal/packet"
)

// Analyzer owns nothing but a borrowed set of registries; it is not safe for
// concurrent use.
type Analyzer struct {
	regs  *conv.Registries
	log   logrus.FieldLogger
	trace *conv.Key

	Packets int
}

type Option func(*Analyzer)

// WithTrace logs every packet of the TCP socket pair "sip:sport-dip:dport",
// in either orientation.
func WithTrace(socket string) Option {
	return func(a *Analyzer) {
		src, dst, ok := strings.Cut(strings.TrimSpace(socket), "-")
		if !ok {
			return
		}
		a.trace = &conv.Key{Canonical: src + "-" + dst, Mirror: dst + "-" + src}
	}
}

func New(regs *conv.Registries, log logrus.FieldLogger, opts ...Option) *Analyzer {
	a := &Analyzer{regs: regs, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Process updates Protocol, Ethernet, TCP and HostPair state, in that
// order, for one packet.
func (a *Analyzer) Process(p *packet.Packet) {
	a.Packets++
	a.countProtocols(p)

	if p.FirstLayer() != layers.LayerTypeEthernet || p.Ethernet == nil {
		return
	}
	_, eth := a.regs.Ethernet.Resolve(conv.MACPairKey(p), p.Ethernet.SrcMAC)
	eth.Observe(p)

	if !p.Follows(layers.LayerTypeEthernet, layers.LayerTypeIPv4) || p.IPv4 == nil {
		return
	}
	if p.TCP != nil {
		id, c := a.regs.ResolveTCP(p)
		v := c.Observe(p)
		if a.tracing(id) {
			a.traceSegment(id, p, v)
		}
	}
	_, hp := a.regs.HostPairs.Resolve(conv.IPPairKey(p), p.IPv4.SrcIP)
	hp.Observe(p)
}

func (a *Analyzer) countProtocols(p *packet.Packet) {
	speaker := ""
	if p.Ethernet != nil {
		speaker = p.Ethernet.SrcMAC
		if p.FirstLayer() == layers.LayerTypeEthernet {
			a.countLabel(EtherTypeLabel(p.Ethernet.EtherType), speaker, p.Ethernet.PayloadLen, p)
		}
	}
	if p.IPv4 != nil {
		a.countLabel(IPProtocolLabel(p.IPv4.Protocol), speaker, p.IPv4.PayloadLen, p)
	}
	if p.UDP != nil {
		if label := UDPApplicationLabel(p.UDP.SrcPort, p.UDP.DstPort, p.UDP.Payload); label != "" {
			a.countLabel(label, speaker, len(p.UDP.Payload), p)
		}
	}
}

func (a *Analyzer) countLabel(label, speaker string, size int, p *packet.Packet) {
	_, s := a.regs.Protocols.Resolve(conv.ProtocolKey(label), speaker)
	s.Observe(speaker, size, p.Timestamp)
}

// Run processes packets until the channel closes or ctx is done.
func (a *Analyzer) Run(ctx context.Context, packets <-chan *packet.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("analysis stopped after %d packets: %w", a.Packets, ctx.Err())
		case p, ok := <-packets:
			if !ok {
				return nil
			}
			a.Process(p)
		}
	}
}
