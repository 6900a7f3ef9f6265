package conv

import "pcapconv/internal/packet"

// HostPair is the conversation between two IPv4 hosts.
type HostPair struct {
	ID string
	CounterBlock

	// TTL of the first packet seen from each endpoint, 0 until seen.
	FirstSpeakerTTL uint8
	PeerTTL         uint8
}

func NewHostPair(id, firstSpeaker string) *HostPair {
	return &HostPair{ID: id, CounterBlock: CounterBlock{FirstSpeaker: firstSpeaker}}
}

// Observe accounts one IPv4 packet of the pair.
func (h *HostPair) Observe(p *packet.Packet) {
	ip := p.IPv4
	if h.Outbound(ip.SrcIP) {
		if h.FirstSpeakerTTL == 0 {
			h.FirstSpeakerTTL = ip.TTL
		}
	} else if h.PeerTTL == 0 {
		h.PeerTTL = ip.TTL
	}
	h.Update(ip.SrcIP, ip.PayloadLen, p.Timestamp)
}

// FirstSpeakerOS guesses the operating system of the first speaker.
func (h *HostPair) FirstSpeakerOS() string { return GuessOS(h.FirstSpeakerTTL) }

// PeerOS guesses the operating system of the other endpoint.
func (h *HostPair) PeerOS() string { return GuessOS(h.PeerTTL) }

// GuessOS maps an observed TTL to the operating system family whose default
// initial TTL it most likely started from.
func GuessOS(ttl uint8) string {
	switch {
	case ttl >= 128:
		return "Windows"
	case ttl >= 64:
		return "Linux"
	case ttl >= 30:
		return "macOS/iOS"
	}
	return "Unknown"
}
