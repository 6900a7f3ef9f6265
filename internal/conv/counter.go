package conv

import "time"

// CounterBlock is the traffic accumulator shared by every entity kind.
// Outbound traffic is traffic sent by FirstSpeaker.
type CounterBlock struct {
	FirstSpeaker string
	FirstSeen    time.Time

	TotalPackets    int
	TotalBytes      int
	OutboundPackets int
	OutboundBytes   int
	InboundPackets  int
	InboundBytes    int

	Duration     float64 // seconds since FirstSeen
	PacketRate   float64
	OutboundRate float64
	InboundRate  float64

	started bool
}

// Counters exposes the embedded block so generic code can reach it.
func (c *CounterBlock) Counters() *CounterBlock { return c }

// Outbound reports whether speaker is the first speaker.
func (c *CounterBlock) Outbound(speaker string) bool {
	return speaker == c.FirstSpeaker
}

// Update accounts one packet of size bytes sent by speaker at ts.
func (c *CounterBlock) Update(speaker string, size int, ts time.Time) {
	if !c.started {
		c.FirstSeen = ts
		c.started = true
	}
	if d := ts.Sub(c.FirstSeen).Seconds(); d > c.Duration {
		c.Duration = d
	}

	c.TotalPackets++
	c.TotalBytes += size
	if c.Outbound(speaker) {
		c.OutboundPackets++
		c.OutboundBytes += size
	} else {
		c.InboundPackets++
		c.InboundBytes += size
	}

	c.PacketRate = rate(c.TotalPackets, c.Duration)
	c.OutboundRate = rate(c.OutboundPackets, c.Duration)
	c.InboundRate = rate(c.InboundPackets, c.Duration)
}

func rate(n int, seconds float64) float64 {
	if seconds == 0 {
		return 0
	}
	return float64(n) / seconds
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
