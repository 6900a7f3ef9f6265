package conv

import (
	"math"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"pcapconv/internal/packet"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	client = "10.0.0.1"
	server = "10.0.0.2"
)

type seg struct {
	from          string // client or server
	ms            int
	seq, ack      uint32
	win           uint16
	syn, ackF, rs bool
	ipid          uint16
	payload       int
}

func (s seg) packet() *packet.Packet {
	src, dst := client, server
	sp, dp := uint16(40000), uint16(80)
	smac, dmac := "00:00:00:00:00:01", "00:00:00:00:00:02"
	if s.from == server {
		src, dst = dst, src
		sp, dp = dp, sp
		smac, dmac = dmac, smac
	}
	win := s.win
	if win == 0 && !s.syn {
		win = 1000
	}
	return &packet.Packet{
		Timestamp: t0.Add(time.Duration(s.ms) * time.Millisecond),
		Layers:    []gopacket.LayerType{layers.LayerTypeEthernet, layers.LayerTypeIPv4, layers.LayerTypeTCP},
		Ethernet:  &packet.Ethernet{SrcMAC: smac, DstMAC: dmac, EtherType: 0x0800, PayloadLen: 20 + 20 + s.payload},
		IPv4:      &packet.IPv4{SrcIP: src, DstIP: dst, ID: s.ipid, TTL: 64, Protocol: 6, PayloadLen: 20 + s.payload},
		TCP: &packet.TCP{
			SrcPort: sp, DstPort: dp,
			Seq: s.seq, Ack: s.ack, Window: win,
			SYN: s.syn, ACK: s.ackF, RST: s.rs,
			PayloadLen: s.payload,
		},
	}
}

func run(t *testing.T, segs ...seg) (*Registries, *TCPConversation, []Verdict) {
	t.Helper()
	r := NewRegistries()
	var c *TCPConversation
	var verdicts []Verdict
	for _, s := range segs {
		p := s.packet()
		_, c = r.ResolveTCP(p)
		verdicts = append(verdicts, c.Observe(p))
	}
	if r.TCP.Len() != 1 {
		t.Fatalf("registry holds %d conversations, want 1", r.TCP.Len())
	}
	return r, c, verdicts
}

func TestHandshakeScenario(t *testing.T) {
	_, c, _ := run(t,
		seg{from: client, ms: 0, seq: 100, syn: true},
		seg{from: server, ms: 10, seq: 500, ack: 101, syn: true, ackF: true},
		seg{from: client, ms: 12, seq: 101, ack: 501, ackF: true},
		seg{from: client, ms: 20, seq: 101, ack: 501, ackF: true, ipid: 5, payload: 50},
		seg{from: server, ms: 30, seq: 501, ack: 151, ackF: true},
	)

	if c.State != StateEstablished {
		t.Fatalf("state = %v, want ESTABLISHED", c.State)
	}
	if c.SynToSynAck <= 0 || c.SynAckToAck <= 0 {
		t.Errorf("SynToSynAck=%v SynAckToAck=%v, want both > 0", c.SynToSynAck, c.SynAckToAck)
	}
	if math.Abs(c.SynToSynAck-0.010) > 1e-9 || math.Abs(c.SynAckToAck-0.002) > 1e-9 {
		t.Errorf("handshake intervals = %v, %v", c.SynToSynAck, c.SynAckToAck)
	}
	rec, ok := c.Sequence(Outbound, 101)
	if !ok || !rec.Acknowledged {
		t.Fatalf("sequence 101 = %+v, %v; want acknowledged", rec, ok)
	}
	if got := rec.AckedAt.Sub(rec.SentAt); got != 10*time.Millisecond {
		t.Errorf("ack latency = %v", got)
	}
	s := c.Summary()
	if s.UnacknowledgedSequences != 0 {
		t.Errorf("UnacknowledgedSequences = %d", s.UnacknowledgedSequences)
	}
	if math.Abs(s.MeanSendAckTime-0.010) > 1e-9 {
		t.Errorf("MeanSendAckTime = %v", s.MeanSendAckTime)
	}
	if got := c.HandshakeString(); got != "S.SA.A" {
		t.Errorf("HandshakeString = %q", got)
	}
	if c.FirstSpeaker != client+":40000" {
		t.Errorf("FirstSpeaker = %q", c.FirstSpeaker)
	}
	if c.SourceMAC != "00:00:00:00:00:01" || c.DestMAC != "00:00:00:00:00:02" {
		t.Errorf("MACs = %s %s", c.SourceMAC, c.DestMAC)
	}
	if c.TotalBytes != 50 || c.OutboundDataPackets != 1 {
		t.Errorf("bytes=%d data=%d", c.TotalBytes, c.OutboundDataPackets)
	}
}

func TestSummaryIsIdempotent(t *testing.T) {
	_, c, _ := run(t,
		seg{from: client, ms: 0, seq: 1, ipid: 1, payload: 10, ackF: true},
		seg{from: client, ms: 1, seq: 21, ipid: 2, payload: 10, ackF: true},
		seg{from: server, ms: 5, ack: 11, ackF: true},
	)
	first := c.Summary()
	second := c.Summary()
	if first != second {
		t.Fatalf("Summary changed between calls: %+v vs %+v", first, second)
	}
	if first.UnacknowledgedSequences != 1 {
		t.Errorf("UnacknowledgedSequences = %d, want 1", first.UnacknowledgedSequences)
	}
}

func TestIPIDRetransmission(t *testing.T) {
	_, c, v := run(t,
		seg{from: client, ms: 0, seq: 1, ipid: 77, payload: 100, ackF: true},
		seg{from: client, ms: 200, seq: 1, ipid: 77, payload: 100, ackF: true},
	)
	if c.TotalRetransmissions != 1 || c.OutboundRetransmissions != 1 || c.InboundRetransmissions != 0 {
		t.Fatalf("retransmissions total=%d out=%d in=%d", c.TotalRetransmissions, c.OutboundRetransmissions, c.InboundRetransmissions)
	}
	if v[0].Retransmission || !v[1].Retransmission {
		t.Errorf("verdicts = %+v", v)
	}
	if got := c.RetransmissionRate(); got != 0.5 {
		t.Errorf("RetransmissionRate = %v", got)
	}
	if c.SequenceRepeats != 1 {
		t.Errorf("SequenceRepeats = %d, want 1", c.SequenceRepeats)
	}
	rec, _ := c.Sequence(Outbound, 1)
	if !rec.SentAt.Equal(t0) {
		t.Errorf("first-seen timestamp overwritten: %v", rec.SentAt)
	}
}

func TestIPIDInboundAttribution(t *testing.T) {
	_, c, _ := run(t,
		seg{from: client, ms: 0, seq: 1, ipid: 9, payload: 10, ackF: true},
		seg{from: server, ms: 1, seq: 900, ipid: 9, payload: 10, ackF: true},
	)
	if c.InboundRetransmissions != 1 || c.OutboundRetransmissions != 0 {
		t.Errorf("shared identifier set: in=%d out=%d", c.InboundRetransmissions, c.OutboundRetransmissions)
	}
}

func TestIPIDIgnored(t *testing.T) {
	tests := []struct {
		name string
		segs []seg
	}{
		{"zero identifier", []seg{
			{from: client, ms: 0, seq: 1, ipid: 0, payload: 10},
			{from: client, ms: 1, seq: 11, ipid: 0, payload: 10},
		}},
		{"no payload", []seg{
			{from: client, ms: 0, seq: 1, ipid: 5, ackF: true},
			{from: client, ms: 1, seq: 1, ipid: 5, ackF: true},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c, _ := run(t, tt.segs...)
			if c.TotalRetransmissions != 0 {
				t.Errorf("TotalRetransmissions = %d", c.TotalRetransmissions)
			}
		})
	}
}

func TestAckClassification(t *testing.T) {
	tests := []struct {
		name       string
		second     uint16
		dup, updat bool
	}{
		{"bigger window", 2000, false, true},
		{"same window", 1000, true, false},
		{"smaller window", 500, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c, v := run(t,
				seg{from: client, ms: 0, seq: 1, ipid: 1, payload: 10, ackF: true},
				seg{from: server, ms: 1, ack: 11, win: 1000, ackF: true},
				seg{from: server, ms: 2, ack: 11, win: tt.second, ackF: true},
			)
			last := v[2]
			if last.DuplicateAck != tt.dup || last.WindowUpdate != tt.updat {
				t.Fatalf("verdict = %+v", last)
			}
			// ACKs from the peer land on the outbound counters.
			if tt.dup && (c.DuplicateAckOutbound != 1 || c.DuplicateAckInbound != 0) {
				t.Errorf("dup out=%d in=%d", c.DuplicateAckOutbound, c.DuplicateAckInbound)
			}
			if tt.updat && (c.WindowUpdateOutbound != 1 || c.WindowUpdateInbound != 0) {
				t.Errorf("update out=%d in=%d", c.WindowUpdateOutbound, c.WindowUpdateInbound)
			}
			if v[1].DuplicateAck || v[1].WindowUpdate {
				t.Errorf("first ACK classified: %+v", v[1])
			}
		})
	}
}

func TestAckFromFirstSpeakerCountsInbound(t *testing.T) {
	_, c, _ := run(t,
		seg{from: client, ms: 0, ack: 7, win: 100, ackF: true},
		seg{from: client, ms: 1, ack: 7, win: 100, ackF: true},
		seg{from: client, ms: 2, ack: 7, win: 300, ackF: true},
	)
	if c.DuplicateAckInbound != 1 || c.WindowUpdateInbound != 1 {
		t.Errorf("inbound dup=%d update=%d", c.DuplicateAckInbound, c.WindowUpdateInbound)
	}
	if c.DuplicateAckOutbound != 0 || c.WindowUpdateOutbound != 0 {
		t.Errorf("outbound dup=%d update=%d", c.DuplicateAckOutbound, c.WindowUpdateOutbound)
	}
}

func TestSynAckFirstSwapsRoles(t *testing.T) {
	r, c, _ := run(t,
		seg{from: server, ms: 0, seq: 500, ack: 101, syn: true, ackF: true},
		seg{from: client, ms: 1, seq: 101, ack: 501, ackF: true},
	)
	want := client + ":40000-" + server + ":80"
	if _, ok := r.TCP.Get(want); !ok {
		t.Fatalf("conversation not stored under %q: %v", want, r.TCP.Keys())
	}
	if c.FirstSpeaker != client+":40000" {
		t.Errorf("FirstSpeaker = %q", c.FirstSpeaker)
	}
	if c.OutboundPackets != 1 || c.InboundPackets != 1 {
		t.Errorf("out=%d in=%d", c.OutboundPackets, c.InboundPackets)
	}
	if c.State != StateInit {
		t.Errorf("state = %v, SYN-ACK without SYN must not advance", c.State)
	}
}

func TestResetAndZeroWindow(t *testing.T) {
	_, c, _ := run(t,
		seg{from: client, ms: 0, seq: 100, syn: true},
		seg{from: server, ms: 1, ack: 101, ackF: true, rs: true},
		seg{from: client, ms: 2, seq: 101, ackF: true, win: 0},
		seg{from: client, ms: 3, seq: 101, rs: true, win: 0},
	)
	if c.ResetCount != 2 {
		t.Errorf("ResetCount = %d", c.ResetCount)
	}
	// the plain ACK gets the default window; only the explicit zero counts
	if c.ZeroWindowCount != 0 {
		t.Errorf("ZeroWindowCount = %d", c.ZeroWindowCount)
	}
	if got := c.HandshakeString(); got != "S.R..." {
		t.Errorf("HandshakeString = %q", got)
	}
}

func TestZeroWindow(t *testing.T) {
	c := NewTCPConversation("x", client+":40000")
	p := seg{from: client, ms: 0, ackF: true}.packet()
	p.TCP.Window = 0
	if v := c.Observe(p); !v.ZeroWindow {
		t.Error("zero window not flagged")
	}
	p = seg{from: client, ms: 1, syn: true}.packet()
	c.Observe(p)
	if c.ZeroWindowCount != 1 {
		t.Errorf("ZeroWindowCount = %d, SYN must not count", c.ZeroWindowCount)
	}
}

func TestResponseAndInterGapTimes(t *testing.T) {
	_, c, _ := run(t,
		seg{from: client, ms: 0, seq: 1, ipid: 1, payload: 10, ackF: true},
		seg{from: server, ms: 40, seq: 1, ipid: 2, payload: 10, ackF: true},
		seg{from: server, ms: 45, seq: 11, ipid: 3, payload: 10, ackF: true},
		seg{from: client, ms: 100, seq: 11, ipid: 4, payload: 10, ackF: true},
		seg{from: server, ms: 120, seq: 21, ipid: 5, payload: 10, ackF: true},
	)
	want := []float64{0.040, 0.020}
	if len(c.ResponseTimes) != len(want) {
		t.Fatalf("ResponseTimes = %v", c.ResponseTimes)
	}
	for i := range want {
		if math.Abs(c.ResponseTimes[i]-want[i]) > 1e-9 {
			t.Errorf("ResponseTimes[%d] = %v, want %v", i, c.ResponseTimes[i], want[i])
		}
	}
	if len(c.InterGapTimes) != 1 || math.Abs(c.InterGapTimes[0]-0.060) > 1e-9 {
		t.Errorf("InterGapTimes = %v, want [0.06]", c.InterGapTimes)
	}
	if s := c.Summary(); math.Abs(s.ResponseTime.Mean-0.030) > 1e-9 {
		t.Errorf("mean response = %v", s.ResponseTime.Mean)
	}
}

func TestCounterBlockInvariants(t *testing.T) {
	var c CounterBlock
	c.FirstSpeaker = "a"
	prev := -1.0
	for i, s := range []struct {
		who  string
		size int
		ms   int
	}{{"a", 10, 0}, {"b", 20, 0}, {"a", 5, 500}, {"b", 0, 1000}, {"a", 7, 1000}} {
		c.Update(s.who, s.size, t0.Add(time.Duration(s.ms)*time.Millisecond))
		if c.TotalPackets != c.OutboundPackets+c.InboundPackets {
			t.Fatalf("step %d: packet split broken: %+v", i, c)
		}
		if c.TotalBytes != c.OutboundBytes+c.InboundBytes {
			t.Fatalf("step %d: byte split broken: %+v", i, c)
		}
		if c.Duration < prev {
			t.Fatalf("step %d: duration decreased %v -> %v", i, prev, c.Duration)
		}
		prev = c.Duration
		if c.Duration == 0 && c.PacketRate != 0 {
			t.Fatalf("step %d: rate %v with zero duration", i, c.PacketRate)
		}
	}
	if !c.FirstSeen.Equal(t0) || c.FirstSpeaker != "a" {
		t.Errorf("identity changed: %v %q", c.FirstSeen, c.FirstSpeaker)
	}
	if c.PacketRate != 5 || c.OutboundRate != 3 || c.InboundRate != 2 {
		t.Errorf("rates = %v %v %v", c.PacketRate, c.OutboundRate, c.InboundRate)
	}
}

func TestResolveOneEntityPerPair(t *testing.T) {
	r := NewRegistry(NewHostPair)
	id1, h1 := r.Resolve(Key{"a-b", "b-a"}, "a")
	id2, h2 := r.Resolve(Key{"b-a", "a-b"}, "b")
	if id1 != "a-b" || id2 != "a-b" || h1 != h2 {
		t.Fatalf("ids %q %q, same entity %v", id1, id2, h1 == h2)
	}
	if h1.FirstSpeaker != "a" || r.Len() != 1 {
		t.Errorf("first speaker %q, len %d", h1.FirstSpeaker, r.Len())
	}
}

func TestKeys(t *testing.T) {
	p := seg{from: client, payload: 1}.packet()
	if k := SocketKey(p); k.Canonical != "10.0.0.1:40000-10.0.0.2:80" || k.Mirror != "10.0.0.2:80-10.0.0.1:40000" {
		t.Errorf("SocketKey = %+v", k)
	}
	if k := IPPairKey(p); k.Canonical != "10.0.0.1-10.0.0.2" || k.Mirror != "10.0.0.2-10.0.0.1" {
		t.Errorf("IPPairKey = %+v", k)
	}
	if k := MACPairKey(p); k.Canonical != "00:00:00:00:00:01<->00:00:00:00:00:02" {
		t.Errorf("MACPairKey = %+v", k)
	}
	if got := FirstEndpoint("00:00:00:00:00:01<->00:00:00:00:00:02"); got != "00:00:00:00:00:01" {
		t.Errorf("FirstEndpoint(mac) = %q", got)
	}
	if got := FirstEndpoint("10.0.0.1:40000-10.0.0.2:80"); got != "10.0.0.1:40000" {
		t.Errorf("FirstEndpoint(socket) = %q", got)
	}
}

func TestHostPairOS(t *testing.T) {
	r := NewRegistries()
	p := seg{from: client, payload: 1}.packet()
	p.IPv4.TTL = 128
	_, h := r.HostPairs.Resolve(IPPairKey(p), p.IPv4.SrcIP)
	h.Observe(p)
	q := seg{from: server, ms: 1, payload: 1}.packet()
	q.IPv4.TTL = 57
	_, h2 := r.HostPairs.Resolve(IPPairKey(q), q.IPv4.SrcIP)
	h2.Observe(q)
	if h != h2 {
		t.Fatal("mirror key created a second entity")
	}
	if h.FirstSpeakerOS() != "Windows" || h.PeerOS() != "macOS/iOS" {
		t.Errorf("os = %s / %s", h.FirstSpeakerOS(), h.PeerOS())
	}
	if h.TotalBytes != 42 {
		t.Errorf("TotalBytes = %d, want IP payload sum 42", h.TotalBytes)
	}
	for ttl, want := range map[uint8]string{255: "Windows", 64: "Linux", 30: "macOS/iOS", 10: "Unknown"} {
		if got := GuessOS(ttl); got != want {
			t.Errorf("GuessOS(%d) = %s, want %s", ttl, got, want)
		}
	}
}
