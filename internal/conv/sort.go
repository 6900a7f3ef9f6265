package conv

import (
	"sort"
	"strings"
)

// Column binds sort aliases to one typed accessor. A column id selects the
// column when it equals an alias or starts with a prefix. Exactly one of
// Int, Float and Text is set; a column with none sorts by id.
type Column[T any] struct {
	Aliases  []string
	Prefixes []string

	Int   func(*T) int
	Float func(*T) float64
	Text  func(*T) string
}

func (c Column[T]) matches(id string) bool {
	for _, a := range c.Aliases {
		if id == a {
			return true
		}
	}
	for _, p := range c.Prefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

// Lookup returns the first column selected by columnID.
func Lookup[T any](columns []Column[T], columnID string) (Column[T], bool) {
	id := strings.ToLower(strings.TrimSpace(columnID))
	for _, c := range columns {
		if c.matches(id) {
			return c, true
		}
	}
	return Column[T]{}, false
}

type sortEntry struct {
	key string
	i   int
	f   float64
	s   string
}

// Sort orders the ids of r by the column selected by columnID, largest
// first. Equal values keep ascending id order. "id" and any column id that
// selects nothing sort by the id itself.
func Sort[T any](r *Registry[T], columns []Column[T], columnID string) []string {
	col, _ := Lookup(columns, columnID)

	keys := r.Keys()
	entries := make([]sortEntry, len(keys))
	for n, k := range keys {
		e := r.entries[k]
		entries[n].key = k
		switch {
		case col.Int != nil:
			entries[n].i = col.Int(e)
		case col.Float != nil:
			entries[n].f = col.Float(e)
		case col.Text != nil:
			entries[n].s = col.Text(e)
		default:
			entries[n].s = k
		}
	}

	var less func(a, b sortEntry) bool
	switch {
	case col.Int != nil:
		less = func(a, b sortEntry) bool { return a.i > b.i }
	case col.Float != nil:
		less = func(a, b sortEntry) bool { return a.f > b.f }
	default:
		less = func(a, b sortEntry) bool { return a.s > b.s }
	}
	sort.SliceStable(entries, func(a, b int) bool { return less(entries[a], entries[b]) })

	out := make([]string, len(entries))
	for n, e := range entries {
		out[n] = e.key
	}
	return out
}

// ====== Column tables ======

func counterColumns[T any](counters func(*T) *CounterBlock, in, out string) []Column[T] {
	return []Column[T]{
		{Aliases: []string{"pc"}, Prefixes: []string{"packetc"}, Int: func(e *T) int { return counters(e).TotalPackets }},
		{Aliases: []string{in + "pc"}, Prefixes: []string{"inpacketc", "inputpacketc"}, Int: func(e *T) int { return counters(e).InboundPackets }},
		{Aliases: []string{out + "pc"}, Prefixes: []string{"outpacketc", "outputpacketc"}, Int: func(e *T) int { return counters(e).OutboundPackets }},
		{Aliases: []string{"bc"}, Prefixes: []string{"bytec"}, Int: func(e *T) int { return counters(e).TotalBytes }},
		{Aliases: []string{in + "bc"}, Prefixes: []string{"inbytec"}, Int: func(e *T) int { return counters(e).InboundBytes }},
		{Aliases: []string{out + "bc"}, Prefixes: []string{"outbytec"}, Int: func(e *T) int { return counters(e).OutboundBytes }},
		{Aliases: []string{"pr"}, Prefixes: []string{"packetr"}, Float: func(e *T) float64 { return counters(e).PacketRate }},
		{Aliases: []string{"pir"}, Prefixes: []string{"inpacketr", "recvpacketr"}, Float: func(e *T) float64 { return counters(e).InboundRate }},
		{Aliases: []string{"opr"}, Prefixes: []string{"outpacketr", "sendpacketr"}, Float: func(e *T) float64 { return counters(e).OutboundRate }},
		{Aliases: []string{"du"}, Prefixes: []string{"dur"}, Float: func(e *T) float64 { return counters(e).Duration }},
	}
}

// HostPairColumns sorts the host-pair table.
var HostPairColumns = append([]Column[HostPair]{
	{Aliases: []string{"id"}, Prefixes: []string{"hostp"}},
	{Prefixes: []string{"srcos"}, Text: func(h *HostPair) string { return h.FirstSpeakerOS() }},
	{Prefixes: []string{"dstos"}, Text: func(h *HostPair) string { return h.PeerOS() }},
}, counterColumns((*HostPair).Counters, "i", "o")...)

// EthernetColumns sorts the MAC-pair table.
var EthernetColumns = append([]Column[EthernetStats]{
	{Aliases: []string{"id"}, Prefixes: []string{"macp"}},
}, counterColumns((*EthernetStats).Counters, "r", "s")...)

// ProtocolColumns sorts the protocol table.
var ProtocolColumns = append([]Column[ProtocolStats]{
	{Aliases: []string{"id"}, Prefixes: []string{"prot"}},
	{Aliases: []string{"pc"}, Prefixes: []string{"packetc"}, Int: func(s *ProtocolStats) int { return s.TotalPackets }},
	{Aliases: []string{"bc"}, Prefixes: []string{"byte"}, Int: func(s *ProtocolStats) int { return s.TotalBytes }},
	{Aliases: []string{"pr"}, Prefixes: []string{"packetr"}, Float: func(s *ProtocolStats) float64 { return s.PacketRate }},
	{Aliases: []string{"du"}, Prefixes: []string{"dur"}, Float: func(s *ProtocolStats) float64 { return s.Duration }},
})

// TCPColumns sorts the TCP conversation table.
var TCPColumns = append([]Column[TCPConversation]{
	{Aliases: []string{"id"}, Prefixes: []string{"tcpc"}},
	{Aliases: []string{"sm"}, Prefixes: []string{"srcm"}, Text: func(c *TCPConversation) string { return c.SourceMAC }},
	{Aliases: []string{"dm"}, Prefixes: []string{"dest"}, Text: func(c *TCPConversation) string { return c.DestMAC }},
	{Aliases: []string{"rst"}, Prefixes: []string{"reset"}, Int: func(c *TCPConversation) int { return c.ResetCount }},
	{Aliases: []string{"ret"}, Prefixes: []string{"retrans"}, Int: func(c *TCPConversation) int { return c.TotalRetransmissions }},
	{Aliases: []string{"irt"}, Prefixes: []string{"inretrans"}, Int: func(c *TCPConversation) int { return c.InboundRetransmissions }},
	{Aliases: []string{"ort"}, Prefixes: []string{"outretrans"}, Int: func(c *TCPConversation) int { return c.OutboundRetransmissions }},
	{Aliases: []string{"sak"}, Prefixes: []string{"senddup"}, Int: func(c *TCPConversation) int { return c.DuplicateAckOutbound }},
	{Aliases: []string{"rak"}, Prefixes: []string{"recvdup"}, Int: func(c *TCPConversation) int { return c.DuplicateAckInbound }},
	{Prefixes: []string{"unackseq"}, Int: func(c *TCPConversation) int { return c.Summary().UnacknowledgedSequences }},
	{Prefixes: []string{"zero"}, Int: func(c *TCPConversation) int { return c.ZeroWindowCount }},
	{Prefixes: []string{"senddatap"}, Int: func(c *TCPConversation) int { return c.OutboundDataPackets }},
	{Prefixes: []string{"recvdatap"}, Int: func(c *TCPConversation) int { return c.InboundDataPackets }},
	{Prefixes: []string{"recvwindow"}, Int: func(c *TCPConversation) int { return c.WindowUpdateInbound }},
	{Prefixes: []string{"sendwindow"}, Int: func(c *TCPConversation) int { return c.WindowUpdateOutbound }},
	{Prefixes: []string{"seqrep"}, Int: func(c *TCPConversation) int { return c.SequenceRepeats }},
	{Aliases: []string{"cts"}, Prefixes: []string{"cts"}, Float: func(c *TCPConversation) float64 { return c.SynToSynAck }},
	{Prefixes: []string{"ctd"}, Float: func(c *TCPConversation) float64 { return c.SynAckToAck }},
	{Aliases: []string{"sat"}, Prefixes: []string{"sendackt"}, Float: func(c *TCPConversation) float64 { return c.Summary().MeanSendAckTime }},
	{Aliases: []string{"rat"}, Prefixes: []string{"recvact"}, Float: func(c *TCPConversation) float64 { return c.Summary().MeanRecvAckTime }},
	{Aliases: []string{"art"}, Prefixes: []string{"avgrsp"}, Float: func(c *TCPConversation) float64 { return c.Summary().ResponseTime.Mean }},
	{Prefixes: []string{"intergaptime"}, Float: func(c *TCPConversation) float64 { return c.Summary().InterGap.Mean }},
}, counterColumns((*TCPConversation).Counters, "i", "o")...)
