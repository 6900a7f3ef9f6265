// Package report renders the conversation registries as tables, CSV files,
// timing plots and the socket trace.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"pcapconv/internal/conv"
)

// Report selections.
const (
	Protocols = "prot"
	Ethernet  = "eth"
	HostPairs = "hp"
	TCP       = "tcp"
	All       = "all"
)

// Table is one rendered registry.
type Table struct {
	Title  string
	File   string // CSV file name
	Header []string
	Rows   [][]string
}

// SortColumns selects the sort column id of each table.
type SortColumns struct {
	Protocols string
	Ethernet  string
	HostPairs string
	TCP       string
}

// Build renders the registries chosen by selection, in presentation order.
func Build(regs *conv.Registries, selection string, sorts SortColumns) ([]Table, error) {
	selection = strings.ToLower(strings.TrimSpace(selection))
	if selection == "" {
		selection = All
	}
	var tables []Table
	switch selection {
	case Protocols, Ethernet, HostPairs, TCP, All:
	default:
		return nil, fmt.Errorf("unknown report %q, want prot, eth, hp, tcp or all", selection)
	}
	if selection == All || selection == Protocols {
		tables = append(tables, ProtocolTable(regs.Protocols, sorts.Protocols))
	}
	if selection == All || selection == Ethernet {
		tables = append(tables, EthernetTable(regs.Ethernet, sorts.Ethernet))
	}
	if selection == All || selection == HostPairs {
		tables = append(tables, HostPairTable(regs.HostPairs, sorts.HostPairs))
	}
	if selection == All || selection == TCP {
		tables = append(tables, TCPTable(regs.TCP, sorts.TCP))
	}
	return tables, nil
}

var counterHeader = []string{
	"PacketCount", "InPacketCount", "OutPacketCount",
	"ByteCount", "InByteCnt", "OutByteCnt",
	"PacketRate", "InPacketRate", "OutPacketRate",
	"Duration(sec)",
}

func counterCells(e conv.Entity) []string {
	c := e.Counters()
	return []string{
		itoa(c.TotalPackets), itoa(c.InboundPackets), itoa(c.OutboundPackets),
		itoa(c.TotalBytes), itoa(c.InboundBytes), itoa(c.OutboundBytes),
		ftoa(c.PacketRate), ftoa(c.InboundRate), ftoa(c.OutboundRate),
		ftoa(c.Duration),
	}
}

func ProtocolTable(r *conv.Registry[conv.ProtocolStats], sortBy string) Table {
	t := Table{
		Title:  "Protocol Stats Table",
		File:   "ProtocolStatsTable.csv",
		Header: []string{"Protocol", "PacketCount", "ByteCount", "PacketRate", "Duration(sec)"},
	}
	for _, id := range conv.Sort(r, conv.ProtocolColumns, sortBy) {
		s, _ := r.Get(id)
		t.Rows = append(t.Rows, []string{id, itoa(s.TotalPackets), itoa(s.TotalBytes), ftoa(s.PacketRate), ftoa(s.Duration)})
	}
	return t
}

func EthernetTable(r *conv.Registry[conv.EthernetStats], sortBy string) Table {
	t := Table{
		Title:  "Ethernet Stats Table",
		File:   "EtherStatsTable.csv",
		Header: append([]string{"MacPair"}, counterHeader...),
	}
	for _, id := range conv.Sort(r, conv.EthernetColumns, sortBy) {
		e, _ := r.Get(id)
		t.Rows = append(t.Rows, append([]string{id}, counterCells(e)...))
	}
	return t
}

func HostPairTable(r *conv.Registry[conv.HostPair], sortBy string) Table {
	t := Table{
		Title:  "Host Pair List Report",
		File:   "HostPairTable.csv",
		Header: append([]string{"HostPair", "SrcOS", "DstOS"}, counterHeader...),
	}
	for _, id := range conv.Sort(r, conv.HostPairColumns, sortBy) {
		h, _ := r.Get(id)
		row := []string{id, h.FirstSpeakerOS(), h.PeerOS()}
		t.Rows = append(t.Rows, append(row, counterCells(h)...))
	}
	return t
}

var tcpHeader = []string{
	"TCPConversation", "SrcMac", "DestMac", "HandShake",
	"CTS->D(sec)", "CTD->S(sec)",
	"SendAckTime-RTT", "RecvAckTime-RTT",
	"AvgRspTime", "RspStdDev", "MaxRspTime",
	"Unackseq#", "SendDupAck", "RecvDupAck", "Resets", "ZeroWindow",
	"SendDataPkt", "RecvDataPkt",
	"Retrans", "RetransRate", "InRetrans", "OutRetrans", "SeqRepeats",
	"InterGapTime",
	"PacketCount", "InPacketCount", "OutPacketCount",
	"ByteCount", "InByteCnt", "OutByteCnt",
	"PacketRate", "RecvPacketRate", "SendPacketRate",
	"RecvWindowUpdate", "SendWindowUpdate",
	"Duration(sec)",
}

func TCPTable(r *conv.Registry[conv.TCPConversation], sortBy string) Table {
	t := Table{
		Title:  "TCP Conversation Table",
		File:   "TcpConversationTable.csv",
		Header: tcpHeader,
	}
	for _, id := range conv.Sort(r, conv.TCPColumns, sortBy) {
		c, _ := r.Get(id)
		s := c.Summary()
		t.Rows = append(t.Rows, []string{
			id, c.SourceMAC, c.DestMAC, c.HandshakeString(),
			ftoa(c.SynToSynAck), ftoa(c.SynAckToAck),
			ftoa(s.MeanSendAckTime), ftoa(s.MeanRecvAckTime),
			mean(s.ResponseTime.Mean), mean(s.ResponseTime.StdDev), mean(s.ResponseTime.Max),
			itoa(s.UnacknowledgedSequences), itoa(c.DuplicateAckOutbound), itoa(c.DuplicateAckInbound),
			itoa(c.ResetCount), itoa(c.ZeroWindowCount),
			itoa(c.OutboundDataPackets), itoa(c.InboundDataPackets),
			itoa(c.TotalRetransmissions), ftoa(c.RetransmissionRate()),
			itoa(c.InboundRetransmissions), itoa(c.OutboundRetransmissions), itoa(c.SequenceRepeats),
			mean(s.InterGap.Mean),
			itoa(c.TotalPackets), itoa(c.InboundPackets), itoa(c.OutboundPackets),
			itoa(c.TotalBytes), itoa(c.InboundBytes), itoa(c.OutboundBytes),
			ftoa(c.PacketRate), ftoa(c.InboundRate), ftoa(c.OutboundRate),
			itoa(c.WindowUpdateInbound), itoa(c.WindowUpdateOutbound),
			ftoa(c.Duration),
		})
	}
	return t
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 6, 64) }

// timing means are shown at five decimals
func mean(f float64) string { return strconv.FormatFloat(f, 'f', 5, 64) }
