package conv

import (
	"sort"
	"time"

	"pcapconv/internal/packet"
	"pcapconv/internal/stats"
)

// ====== TCP Conversation Engine ======

/*
TCPConversation tracks one TCP socket pair across the capture.

Technical Details:
  - Handshake: INIT -> SYN_SEEN -> SYNACK_SEEN -> ESTABLISHED. Each step is
    recorded once. RST is a flag, not a state; traffic after a reset is
    still counted.
  - Retransmissions: a payload segment that repeats an IP identifier already
    seen in the conversation (either direction) is a retransmission. The
    per-direction sequence tables never overwrite an entry, so a repeated
    sequence number only bumps SequenceRepeats.
  - ACK classification: a pure ACK repeating an ACK number its sender already
    used is a window update when the window grew, a duplicate ACK otherwise.
    An ACK sent by the first speaker is counted on the inbound counters.
  - Timing: an outbound payload starts a request, the next inbound payload
    is its response. The gap between a response and the next request is an
    inter-gap sample.
*/

type HandshakeState int

const (
	StateInit HandshakeState = iota
	StateSynSeen
	StateSynAckSeen
	StateEstablished
)

func (s HandshakeState) String() string {
	switch s {
	case StateSynSeen:
		return "SYN_SEEN"
	case StateSynAckSeen:
		return "SYNACK_SEEN"
	case StateEstablished:
		return "ESTABLISHED"
	}
	return "INIT"
}

// Direction of a packet relative to the first speaker.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "<<<"
	}
	return ">>>"
}

func (d Direction) opposite() Direction { return 1 - d }

// SeqRecord is the first sighting of a payload sequence number.
type SeqRecord struct {
	Acknowledged bool
	SentAt       time.Time
	AckedAt      time.Time
}

// Verdict is what the engine concluded about one packet.
type Verdict struct {
	Direction      Direction
	Retransmission bool
	SequenceRepeat bool
	DuplicateAck   bool
	WindowUpdate   bool
	ZeroWindow     bool
	Reset          bool
	AckedSegments  int
}

type TCPConversation struct {
	ID string
	CounterBlock

	SourceMAC string
	DestMAC   string

	State      HandshakeState
	Syn        bool
	SynAck     bool
	Ack        bool
	Rst        bool // RST seen while the handshake was in progress
	SynTime    time.Time
	SynAckTime time.Time
	AckTime    time.Time

	SynToSynAck float64 // seconds
	SynAckToAck float64 // seconds

	ZeroWindowCount int
	ResetCount      int

	OutboundDataPackets int
	InboundDataPackets  int

	TotalRetransmissions    int
	OutboundRetransmissions int
	InboundRetransmissions  int
	SequenceRepeats         int

	DuplicateAckOutbound int
	DuplicateAckInbound  int
	WindowUpdateOutbound int
	WindowUpdateInbound  int

	ResponseTimes []float64
	InterGapTimes []float64

	sent      [2]map[uint32]*SeqRecord
	recentAck [2]map[uint32]uint16
	seenIPIDs map[uint16]struct{}

	awaiting    bool
	responded   bool
	sendTime    time.Time
	lastInbound time.Time
}

func NewTCPConversation(id, firstSpeaker string) *TCPConversation {
	c := &TCPConversation{
		ID:           id,
		CounterBlock: CounterBlock{FirstSpeaker: firstSpeaker},
		seenIPIDs:    make(map[uint16]struct{}),
	}
	for d := range c.sent {
		c.sent[d] = make(map[uint32]*SeqRecord)
		c.recentAck[d] = make(map[uint32]uint16)
	}
	return c
}

// ResolveTCP finds or creates the conversation of p. A conversation whose
// first packet is a SYN-ACK is created under the mirror key so the
// connection initiator becomes the first speaker.
func (r *Registries) ResolveTCP(p *packet.Packet) (string, *TCPConversation) {
	k := SocketKey(p)
	if id, c, ok := r.TCP.Lookup(k); ok {
		return id, c
	}
	if p.TCP.SYN && p.TCP.ACK {
		return k.Mirror, r.TCP.Create(k.Mirror, p.DstSocket())
	}
	return k.Canonical, r.TCP.Create(k.Canonical, p.SrcSocket())
}

// Observe runs every detector over p, which must carry IPv4 and TCP.
func (c *TCPConversation) Observe(p *packet.Packet) Verdict {
	tcp := p.TCP
	speaker := p.SrcSocket()
	dir := Inbound
	if c.Outbound(speaker) {
		dir = Outbound
	}
	v := Verdict{Direction: dir, Reset: tcp.RST}

	if c.TotalPackets == 0 && p.Ethernet != nil {
		c.SourceMAC = p.Ethernet.SrcMAC
		c.DestMAC = p.Ethernet.DstMAC
	}
	c.Update(speaker, tcp.PayloadLen, p.Timestamp)
	if tcp.PayloadLen > 0 {
		if dir == Outbound {
			c.OutboundDataPackets++
		} else {
			c.InboundDataPackets++
		}
	}

	c.trackHandshake(tcp, p.Timestamp)
	if tcp.RST {
		c.ResetCount++
	}
	if !tcp.SYN && !tcp.RST && tcp.Window == 0 {
		c.ZeroWindowCount++
		v.ZeroWindow = true
	}

	v.Retransmission = c.checkIPID(p, dir)
	v.SequenceRepeat = c.recordSequence(tcp, dir, p.Timestamp)
	if tcp.PayloadLen == 0 && tcp.ACK && !tcp.SYN {
		v.DuplicateAck, v.WindowUpdate, v.AckedSegments = c.classifyAck(tcp, dir, p.Timestamp)
	}
	c.trackTiming(tcp, dir, p.Timestamp)
	return v
}

func (c *TCPConversation) trackHandshake(tcp *packet.TCP, ts time.Time) {
	switch c.State {
	case StateInit:
		if tcp.SYN && !tcp.ACK {
			c.Syn = true
			c.SynTime = ts
			c.State = StateSynSeen
		}
	case StateSynSeen:
		if tcp.RST {
			c.Rst = true
		}
		if tcp.SYN && tcp.ACK {
			c.SynAck = true
			c.SynAckTime = ts
			c.SynToSynAck = ts.Sub(c.SynTime).Seconds()
			c.State = StateSynAckSeen
		}
	case StateSynAckSeen:
		if tcp.RST {
			c.Rst = true
		}
		if tcp.ACK && !tcp.SYN {
			c.Ack = true
			c.AckTime = ts
			c.SynAckToAck = ts.Sub(c.SynAckTime).Seconds()
			c.State = StateEstablished
		}
	}
}

// HandshakeString renders the handshake progress as six characters:
// "S.SA.A" for a complete handshake, "S.R..." for a refused one.
func (c *TCPConversation) HandshakeString() string {
	h := []byte("......")
	if c.Syn {
		h[0] = 'S'
	}
	if c.SynAck {
		h[2], h[3] = 'S', 'A'
	}
	if c.Ack {
		h[5] = 'A'
	}
	if c.Syn && !c.SynAck && c.Rst {
		h[2], h[3] = 'R', '.'
	}
	if c.Syn && c.SynAck && c.Rst {
		h[5] = 'R'
	}
	return string(h)
}

func (c *TCPConversation) checkIPID(p *packet.Packet, dir Direction) bool {
	id := p.IPv4.ID
	if id == 0 || p.TCP.PayloadLen == 0 {
		return false
	}
	if _, seen := c.seenIPIDs[id]; !seen {
		c.seenIPIDs[id] = struct{}{}
		return false
	}
	c.TotalRetransmissions++
	if dir == Outbound {
		c.OutboundRetransmissions++
	} else {
		c.InboundRetransmissions++
	}
	return true
}

func (c *TCPConversation) recordSequence(tcp *packet.TCP, dir Direction, ts time.Time) bool {
	if tcp.PayloadLen == 0 {
		return false
	}
	if _, ok := c.sent[dir][tcp.Seq]; ok {
		c.SequenceRepeats++
		return true
	}
	c.sent[dir][tcp.Seq] = &SeqRecord{SentAt: ts}
	return false
}

func (c *TCPConversation) classifyAck(tcp *packet.TCP, dir Direction, ts time.Time) (dup, update bool, acked int) {
	own := c.recentAck[dir]
	if w, ok := own[tcp.Ack]; ok {
		if tcp.Window > w {
			update = true
			if dir == Outbound {
				c.WindowUpdateInbound++
			} else {
				c.WindowUpdateOutbound++
			}
		} else {
			dup = true
			if dir == Outbound {
				c.DuplicateAckInbound++
			} else {
				c.DuplicateAckOutbound++
			}
		}
	}

	for seq, rec := range c.sent[dir.opposite()] {
		if seq <= tcp.Ack && !rec.Acknowledged {
			rec.Acknowledged = true
			rec.AckedAt = ts
			acked++
		}
	}

	own[tcp.Ack] = tcp.Window
	return dup, update, acked
}

func (c *TCPConversation) trackTiming(tcp *packet.TCP, dir Direction, ts time.Time) {
	if tcp.PayloadLen == 0 {
		return
	}
	if dir == Outbound {
		if c.responded {
			c.InterGapTimes = append(c.InterGapTimes, ts.Sub(c.lastInbound).Seconds())
			c.responded = false
		}
		c.sendTime = ts
		c.awaiting = true
		return
	}
	if c.awaiting {
		c.ResponseTimes = append(c.ResponseTimes, ts.Sub(c.sendTime).Seconds())
		c.awaiting = false
		c.responded = true
		c.lastInbound = ts
	}
}

// RetransmissionRate is TotalRetransmissions / TotalPackets.
func (c *TCPConversation) RetransmissionRate() float64 {
	return ratio(c.TotalRetransmissions, c.TotalPackets)
}

func (c *TCPConversation) OutboundRetransmissionRate() float64 {
	return ratio(c.OutboundRetransmissions, c.TotalPackets)
}

func (c *TCPConversation) InboundRetransmissionRate() float64 {
	return ratio(c.InboundRetransmissions, c.TotalPackets)
}

// Sequence returns the record of seq in direction d.
func (c *TCPConversation) Sequence(d Direction, seq uint32) (SeqRecord, bool) {
	rec, ok := c.sent[d][seq]
	if !ok {
		return SeqRecord{}, false
	}
	return *rec, true
}

// TCPSummary holds the values derived at report time.
type TCPSummary struct {
	ResponseTime stats.Summary
	InterGap     stats.Summary

	MeanSendAckTime         float64
	MeanRecvAckTime         float64
	UnacknowledgedSequences int
}

// Summary scans the sequence tables and sample lists. It does not mutate
// the conversation, so repeated calls agree.
func (c *TCPConversation) Summary() TCPSummary {
	s := TCPSummary{
		ResponseTime: stats.Summarize(c.ResponseTimes),
		InterGap:     stats.Summarize(c.InterGapTimes),
	}
	var unacked int
	s.MeanSendAckTime, unacked = ackTimes(c.sent[Outbound])
	s.UnacknowledgedSequences += unacked
	s.MeanRecvAckTime, unacked = ackTimes(c.sent[Inbound])
	s.UnacknowledgedSequences += unacked
	return s
}

func ackTimes(table map[uint32]*SeqRecord) (mean float64, unacked int) {
	var samples []float64
	for _, rec := range table {
		if !rec.Acknowledged {
			unacked++
			continue
		}
		samples = append(samples, rec.AckedAt.Sub(rec.SentAt).Seconds())
	}
	// map order is random; fix the summation order
	sort.Float64s(samples)
	return stats.Mean(samples), unacked
}
