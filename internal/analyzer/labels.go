package analyzer

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/stun"
)

var etherTypeNames = map[uint16]string{
	0x0806: "ARP",
	0x0800: "IpV4",
	0x8100: "Vlan",
	0x86dd: "IpV6",
	0x8035: "RevArp",
}

var ipProtocolNames = map[uint8]string{
	1:  "ICMP",
	6:  "TCP",
	8:  "EGP",
	17: "UDP",
	44: "FRAGMENT",
	47: "GRE",
	58: "ICMPV6",
}

// EtherTypeLabel names an ethertype, e.g. "ethType:0x0800(IpV4)". Unknown
// types carry no description.
func EtherTypeLabel(t uint16) string {
	if name, ok := etherTypeNames[t]; ok {
		return fmt.Sprintf("ethType:0x%04X(%s)", t, name)
	}
	return fmt.Sprintf("ethType:0x%04X", t)
}

// IPProtocolLabel names an IP protocol number, e.g. "IpProt:6(TCP)".
func IPProtocolLabel(p uint8) string {
	if name, ok := ipProtocolNames[p]; ok {
		return fmt.Sprintf("IpProt:%d(%s)", p, name)
	}
	return fmt.Sprintf("IpProt:%d", p)
}

// ====== UDP application detection ======

const (
	labelSTUN = "udp:STUN"
	labelRTP  = "udp:RTP"
)

// UDPApplicationLabel recognises STUN and RTP payloads. Datagrams touching a
// well-known port are never taken for RTP.
func UDPApplicationLabel(srcPort, dstPort uint16, payload []byte) string {
	if isSTUN(payload) {
		return labelSTUN
	}
	if srcPort < 1024 || dstPort < 1024 {
		return ""
	}
	if h, err := parseRTPHeader(payload); err == nil && rtpPayloadType(h.PayloadType) {
		return labelRTP
	}
	return ""
}

func isSTUN(data []byte) bool {
	if !stun.IsMessage(data) {
		return false
	}
	msg := &stun.Message{}
	return msg.UnmarshalBinary(data) == nil
}

// parseRTPHeader accepts plain RTP and RTP relayed inside TURN ChannelData.
func parseRTPHeader(data []byte) (rtp.Header, error) {
	if len(data) < 12 {
		return rtp.Header{}, fmt.Errorf("invalid RTP packet, too short")
	}

	header := rtp.Header{}
	if _, err := header.Unmarshal(data); err != nil || header.Version != 2 {
		header = rtp.Header{}
		if _, err := header.Unmarshal(stripTURNChannelData(data)); err != nil {
			return rtp.Header{}, fmt.Errorf("unmarshal rtp header: %w", err)
		}
	}
	if header.Version != 2 {
		return rtp.Header{}, fmt.Errorf("invalid RTP version: %d", header.Version)
	}
	return header, nil
}

// stripTURNChannelData removes a 4-byte TURN ChannelData prefix (channel
// 0x4000-0x7FFF plus length) when the payload is long enough to hold it.
func stripTURNChannelData(payload []byte) []byte {
	if len(payload) >= 4 {
		channel := binary.BigEndian.Uint16(payload[0:2])
		length := int(binary.BigEndian.Uint16(payload[2:4]))
		if channel >= 0x4000 && channel <= 0x7FFF && len(payload) >= 4+length {
			return payload[4 : 4+length]
		}
	}
	return payload
}

// Static audio/video assignments and the dynamic range. RTCP packet types
// 200-204 read as 72-76 and fall outside both.
func rtpPayloadType(pt uint8) bool {
	return pt <= 34 || (pt >= 96 && pt <= 127)
}
