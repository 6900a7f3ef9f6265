// Package packet holds the read-only view of one decoded packet that the
// conversation engine consumes.
package packet

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Ethernet carries the link-layer fields used by the registries.
type Ethernet struct {
	SrcMAC     string
	DstMAC     string
	EtherType  uint16
	PayloadLen int
}

// IPv4 carries the network-layer fields used by the registries.
type IPv4 struct {
	SrcIP      string
	DstIP      string
	ID         uint16
	TTL        uint8
	Protocol   uint8
	PayloadLen int
}

// TCP carries the transport header fields the TCP engine classifies on.
type TCP struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	Window     uint16
	SYN        bool
	ACK        bool
	RST        bool
	FIN        bool
	PayloadLen int
}

// UDP keeps the payload so application protocols can be recognised.
type UDP struct {
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// Packet is a decoded packet. Layers lists the decoded layer types in wire
// order; the typed views are nil when the layer is absent.
type Packet struct {
	Number    int
	Timestamp time.Time
	Layers    []gopacket.LayerType

	Ethernet *Ethernet
	IPv4     *IPv4
	TCP      *TCP
	UDP      *UDP
}

// FirstLayer returns the outermost decoded layer type.
func (p *Packet) FirstLayer() gopacket.LayerType {
	if len(p.Layers) == 0 {
		return gopacket.LayerTypeZero
	}
	return p.Layers[0]
}

// Follows reports whether layer next directly follows layer prev.
func (p *Packet) Follows(prev, next gopacket.LayerType) bool {
	for i := 0; i+1 < len(p.Layers); i++ {
		if p.Layers[i] == prev {
			return p.Layers[i+1] == next
		}
	}
	return false
}

// SrcSocket returns "ip:port" of the sender. IPv4 and TCP must be present.
func (p *Packet) SrcSocket() string {
	return fmt.Sprintf("%s:%d", p.IPv4.SrcIP, p.TCP.SrcPort)
}

// DstSocket returns "ip:port" of the receiver. IPv4 and TCP must be present.
func (p *Packet) DstSocket() string {
	return fmt.Sprintf("%s:%d", p.IPv4.DstIP, p.TCP.DstPort)
}

// FromGopacket builds the engine view of a gopacket packet.
func FromGopacket(number int, pkt gopacket.Packet) *Packet {
	p := &Packet{
		Number:    number,
		Timestamp: pkt.Metadata().Timestamp,
	}

	for _, l := range pkt.Layers() {
		p.Layers = append(p.Layers, l.LayerType())

		switch v := l.(type) {
		case *layers.Ethernet:
			if p.Ethernet == nil {
				p.Ethernet = &Ethernet{
					SrcMAC:     v.SrcMAC.String(),
					DstMAC:     v.DstMAC.String(),
					EtherType:  uint16(v.EthernetType),
					PayloadLen: len(v.Payload),
				}
			}
		case *layers.IPv4:
			if p.IPv4 == nil {
				p.IPv4 = &IPv4{
					SrcIP:      v.SrcIP.String(),
					DstIP:      v.DstIP.String(),
					ID:         v.Id,
					TTL:        v.TTL,
					Protocol:   uint8(v.Protocol),
					PayloadLen: len(v.Payload),
				}
			}
		case *layers.TCP:
			if p.TCP == nil {
				p.TCP = &TCP{
					SrcPort:    uint16(v.SrcPort),
					DstPort:    uint16(v.DstPort),
					Seq:        v.Seq,
					Ack:        v.Ack,
					Window:     v.Window,
					SYN:        v.SYN,
					ACK:        v.ACK,
					RST:        v.RST,
					FIN:        v.FIN,
					PayloadLen: len(v.Payload),
				}
			}
		case *layers.UDP:
			if p.UDP == nil {
				p.UDP = &UDP{
					SrcPort: uint16(v.SrcPort),
					DstPort: uint16(v.DstPort),
					Payload: v.Payload,
				}
			}
		}
	}
	return p
}
