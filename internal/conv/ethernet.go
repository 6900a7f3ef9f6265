package conv

import (
	"time"

	"pcapconv/internal/packet"
)

// EthernetStats is the conversation between two MAC addresses.
type EthernetStats struct {
	ID string
	CounterBlock
}

func NewEthernetStats(id, firstSpeaker string) *EthernetStats {
	return &EthernetStats{ID: id, CounterBlock: CounterBlock{FirstSpeaker: firstSpeaker}}
}

// Observe accounts one Ethernet frame of the pair.
func (e *EthernetStats) Observe(p *packet.Packet) {
	e.Update(p.Ethernet.SrcMAC, p.Ethernet.PayloadLen, p.Timestamp)
}

// ProtocolStats counts the traffic carried by one protocol label.
type ProtocolStats struct {
	ID string
	CounterBlock
}

func NewProtocolStats(id, firstSpeaker string) *ProtocolStats {
	return &ProtocolStats{ID: id, CounterBlock: CounterBlock{FirstSpeaker: firstSpeaker}}
}

// Observe accounts size bytes sent by speaker under this label.
func (s *ProtocolStats) Observe(speaker string, size int, ts time.Time) {
	s.Update(speaker, size, ts)
}
