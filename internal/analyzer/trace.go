package analyzer

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pcapconv/internal/conv"
	"pcapconv/internal/packet"
)

// TCP header flag bits.
const (
	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagRST = 0x04
	FlagACK = 0x10
)

// TraceMessage is the log message of every socket trace entry.
const TraceMessage = "| TCP Socket Trace"

func extractTCPFlags(tcp *packet.TCP) uint8 {
	var flags uint8
	if tcp.SYN {
		flags |= FlagSYN
	}
	if tcp.ACK {
		flags |= FlagACK
	}
	if tcp.FIN {
		flags |= FlagFIN
	}
	if tcp.RST {
		flags |= FlagRST
	}
	return flags
}

func (a *Analyzer) tracing(id string) bool {
	return a.trace != nil && (id == a.trace.Canonical || id == a.trace.Mirror)
}

func (a *Analyzer) traceSegment(id string, p *packet.Packet, v conv.Verdict) {
	var marks []string
	if v.Retransmission {
		marks = append(marks, "RETRANS")
	}
	if v.SequenceRepeat {
		marks = append(marks, "SEQ-REPEAT")
	}
	if v.DuplicateAck {
		marks = append(marks, "DUP-ACK")
	}
	if v.WindowUpdate {
		marks = append(marks, "WIN-UPDATE")
	}
	if v.ZeroWindow {
		marks = append(marks, "ZERO-WIN")
	}

	a.log.WithFields(logrus.Fields{
		"Conversation":   id,
		"Packet":         p.Number,
		"Direction":      v.Direction.String(),
		"Sequence":       p.TCP.Seq,
		"Ack Number":     p.TCP.Ack,
		"Window Size":    p.TCP.Window,
		"Payload Length": p.TCP.PayloadLen,
		"IP ID":          p.IPv4.ID,
		"Flags":          fmt.Sprintf("0x%X", extractTCPFlags(p.TCP)),
		"Acked":          v.AckedSegments,
		"Marks":          strings.Join(marks, ","),
		"Timestamp":      p.Timestamp,
	}).Info(TraceMessage)
}
