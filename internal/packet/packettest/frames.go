// Package packettest builds wire-format frames for tests.
package packettest

import (
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Segment describes one Ethernet/IPv4/TCP frame.
type Segment struct {
	SrcMAC, DstMAC   string
	SrcIP, DstIP     string
	SrcPort, DstPort uint16
	ID               uint16
	TTL              uint8
	Seq, Ack         uint32
	Window           uint16
	SYN, ACK, RST    bool
	Payload          []byte
}

// Datagram describes one Ethernet/IPv4/UDP frame.
type Datagram struct {
	SrcMAC, DstMAC   string
	SrcIP, DstIP     string
	SrcPort, DstPort uint16
	Payload          []byte
}

// TCPFrame serializes s into bytes.
func TCPFrame(s Segment) ([]byte, error) {
	eth, ip := headers(s.SrcMAC, s.DstMAC, s.SrcIP, s.DstIP, layers.IPProtocolTCP)
	ip.Id = s.ID
	if s.TTL != 0 {
		ip.TTL = s.TTL
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     s.Seq,
		Ack:     s.Ack,
		Window:  s.Window,
		SYN:     s.SYN,
		ACK:     s.ACK,
		RST:     s.RST,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(eth, ip, tcp, gopacket.Payload(s.Payload))
}

// UDPFrame serializes d into bytes.
func UDPFrame(d Datagram) ([]byte, error) {
	eth, ip := headers(d.SrcMAC, d.DstMAC, d.SrcIP, d.DstIP, layers.IPProtocolUDP)
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(d.SrcPort),
		DstPort: layers.UDPPort(d.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(eth, ip, udp, gopacket.Payload(d.Payload))
}

// Decode parses an Ethernet frame and stamps it with ts.
func Decode(data []byte, ts time.Time) gopacket.Packet {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	md := pkt.Metadata()
	md.Timestamp = ts
	md.CaptureLength = len(data)
	md.Length = len(data)
	return pkt
}

func headers(srcMAC, dstMAC, srcIP, dstIP string, proto layers.IPProtocol) (*layers.Ethernet, *layers.IPv4) {
	eth := &layers.Ethernet{
		SrcMAC:       mustMAC(srcMAC),
		DstMAC:       mustMAC(dstMAC),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	return eth, ip
}

func serialize(ls ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mustMAC(s string) net.HardwareAddr {
	if s == "" {
		s = "00:00:00:00:00:00"
	}
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}
