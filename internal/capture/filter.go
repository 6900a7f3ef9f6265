package capture

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	socketPattern   = regexp.MustCompile(`^(\d+\.\d+\.\d+\.\d+):(\d+)-(\d+\.\d+\.\d+\.\d+):(\d+)$`)
	hostPairPattern = regexp.MustCompile(`^(\d+\.\d+\.\d+\.\d+)-(\d+\.\d+\.\d+\.\d+)$`)
)

// Socket is one side-ordered TCP socket pair, as written "a:p-b:q".
type Socket struct {
	SrcIP   string
	SrcPort uint16
	DstIP   string
	DstPort uint16
}

// ParseSocket parses "a.b.c.d:p-e.f.g.h:q".
func ParseSocket(s string) (Socket, error) {
	m := socketPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Socket{}, fmt.Errorf("invalid socket %q, want sip:sport-dip:dport", s)
	}
	sp, err := parsePort(m[2])
	if err != nil {
		return Socket{}, err
	}
	dp, err := parsePort(m[4])
	if err != nil {
		return Socket{}, err
	}
	return Socket{SrcIP: m[1], SrcPort: sp, DstIP: m[3], DstPort: dp}, nil
}

func (s Socket) String() string {
	return fmt.Sprintf("%s:%d-%s:%d", s.SrcIP, s.SrcPort, s.DstIP, s.DstPort)
}

// BPF restricts a capture to the socket pair.
func (s Socket) BPF() string {
	return fmt.Sprintf("port %d and port %d and host %s and host %s", s.SrcPort, s.DstPort, s.SrcIP, s.DstIP)
}

// BuildFilter turns a filter option into a BPF expression. Recognised forms:
//
//	ip:x.x.x.x
//	hp:x.x.x.x-y.y.y.y
//	port:p
//	socket:x.x.x.x:p-y.y.y.y:q
//	mac:hh:hh:hh:hh:hh:hh
//	prot:tcp|udp|icmp|arp...
//	bpf:<any BPF expression>
//
// An empty option yields an empty expression.
func BuildFilter(option string) (string, error) {
	option = strings.TrimSpace(option)
	if option == "" {
		return "", nil
	}
	kind, arg, ok := strings.Cut(option, ":")
	if !ok {
		return "", fmt.Errorf("invalid filter %q, want kind:value", option)
	}
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(kind) {
	case "ip":
		if net.ParseIP(arg).To4() == nil {
			return "", fmt.Errorf("invalid ip filter %q", arg)
		}
		return "host " + arg, nil
	case "hp":
		m := hostPairPattern.FindStringSubmatch(arg)
		if m == nil {
			return "", fmt.Errorf("invalid host pair filter %q, want x.x.x.x-y.y.y.y", arg)
		}
		return fmt.Sprintf("(host %s) and (host %s)", m[1], m[2]), nil
	case "port":
		p, err := parsePort(arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("port %d", p), nil
	case "socket":
		s, err := ParseSocket(arg)
		if err != nil {
			return "", err
		}
		return s.BPF(), nil
	case "mac":
		if _, err := net.ParseMAC(arg); err != nil {
			return "", fmt.Errorf("invalid mac filter %q: %w", arg, err)
		}
		return "ether host " + arg, nil
	case "prot":
		if arg == "" {
			return "", fmt.Errorf("empty protocol filter")
		}
		return strings.ToLower(arg), nil
	case "bpf":
		return arg, nil
	}
	return "", fmt.Errorf("unknown filter kind %q", kind)
}

func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(p), nil
}
