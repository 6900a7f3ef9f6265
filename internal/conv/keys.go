package conv

import (
	"strings"

	"pcapconv/internal/packet"
)

// Key holds both orientations of an unordered endpoint pair. Canonical is
// built in encounter order, Mirror is its swap.
type Key struct {
	Canonical string
	Mirror    string
}

func pairKey(a, b, sep string) Key {
	return Key{Canonical: a + sep + b, Mirror: b + sep + a}
}

// MACPairKey keys an Ethernet conversation. The packet must carry Ethernet.
func MACPairKey(p *packet.Packet) Key {
	return pairKey(p.Ethernet.SrcMAC, p.Ethernet.DstMAC, "<->")
}

// IPPairKey keys a host pair. The packet must carry IPv4.
func IPPairKey(p *packet.Packet) Key {
	return pairKey(p.IPv4.SrcIP, p.IPv4.DstIP, "-")
}

// SocketKey keys a TCP conversation. The packet must carry IPv4 and TCP.
func SocketKey(p *packet.Packet) Key {
	return pairKey(p.SrcSocket(), p.DstSocket(), "-")
}

// ProtocolKey keys a protocol entry; both orientations are the label.
func ProtocolKey(label string) Key {
	return Key{Canonical: label, Mirror: label}
}

// FirstEndpoint returns the endpoint a key starts with.
func FirstEndpoint(id string) string {
	if a, _, ok := strings.Cut(id, "<->"); ok {
		return a
	}
	a, _, _ := strings.Cut(id, "-")
	return a
}
