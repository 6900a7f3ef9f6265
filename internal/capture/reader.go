// Package capture reads packets from capture files and hands them, decoded
// and in capture order, to a single consumer.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"pcapconv/internal/packet"
)

// Reader backends.
const (
	ReaderPcap = "pcap" // libpcap
	ReaderGo   = "go"   // pure Go pcap/pcapng
)

const (
	defaultBuffer  = 1024
	maxReadErrors  = 100
	pcapngMagic    = 0x0A0D0D0A
	defaultSnaplen = 262144
)

type Options struct {
	Reader string // ReaderPcap when empty
	BPF    string
	Buffer int
	Log    logrus.FieldLogger
}

// Source is an opened capture file.
type Source struct {
	Path     string
	LinkType layers.LinkType

	packets *gopacket.PacketSource
	closeFn func()
	buffer  int
	log     logrus.FieldLogger
	err     error
}

// Open opens path with the configured backend and applies the BPF filter.
func Open(path string, opts Options) (*Source, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Source{Path: path, buffer: opts.Buffer, log: log}
	if s.buffer <= 0 {
		s.buffer = defaultBuffer
	}

	var err error
	switch opts.Reader {
	case "", ReaderPcap:
		err = s.openPcap(path, opts.BPF)
	case ReaderGo:
		err = s.openGo(path, opts.BPF)
	default:
		err = fmt.Errorf("unknown reader %q", opts.Reader)
	}
	if err != nil {
		return nil, err
	}
	s.packets.DecodeOptions.NoCopy = true
	return s, nil
}

func (s *Source) openPcap(path, bpf string) error {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return fmt.Errorf("open pcap %s: %w", path, err)
	}
	if bpf != "" {
		if err := handle.SetBPFFilter(bpf); err != nil {
			handle.Close()
			return fmt.Errorf("set bpf filter %q: %w", bpf, err)
		}
	}
	s.LinkType = handle.LinkType()
	s.packets = gopacket.NewPacketSource(handle, s.LinkType)
	s.closeFn = handle.Close
	return nil
}

type linkReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func (s *Source) openGo(path, bpf string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open pcap %s: %w", path, err)
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return fmt.Errorf("read pcap header %s: %w", path, err)
	}

	var r linkReader
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		r, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("read pcap header %s: %w", path, err)
	}
	s.LinkType = r.LinkType()

	var data gopacket.PacketDataSource = r
	if bpf != "" {
		filter, err := pcap.NewBPF(s.LinkType, defaultSnaplen, bpf)
		if err != nil {
			f.Close()
			return fmt.Errorf("compile bpf filter %q: %w", bpf, err)
		}
		data = &filtered{src: r, bpf: filter}
	}
	s.packets = gopacket.NewPacketSource(data, s.LinkType)
	s.closeFn = func() { f.Close() }
	return nil
}

// filtered drops packets the BPF program rejects.
type filtered struct {
	src gopacket.PacketDataSource
	bpf *pcap.BPF
}

func (f *filtered) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	for {
		data, ci, err := f.src.ReadPacketData()
		if err != nil || f.bpf.Matches(ci, data) {
			return data, ci, err
		}
	}
}

// Packets decodes the file on its own goroutine. Packets are numbered from 1
// in capture order. The channel is closed at end of file, on a fatal read
// error (see Err) or when ctx is done.
func (s *Source) Packets(ctx context.Context) <-chan *packet.Packet {
	out := make(chan *packet.Packet, s.buffer)
	go func() {
		defer close(out)
		n, failures := 0, 0
		for {
			pkt, err := s.packets.NextPacket()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				failures++
				s.log.WithFields(logrus.Fields{"File": s.Path, "Packet": n + 1}).WithError(err).Debug("Skipping unreadable packet")
				if failures >= maxReadErrors {
					s.err = fmt.Errorf("read %s: %w", s.Path, err)
					return
				}
				continue
			}
			n++
			if e := pkt.ErrorLayer(); e != nil {
				s.log.WithFields(logrus.Fields{"File": s.Path, "Packet": n}).Debugf("Partial decode: %v", e.Error())
			}
			select {
			case out <- packet.FromGopacket(n, pkt):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Err returns the error that stopped Packets early. Call it after the
// channel is drained.
func (s *Source) Err() error { return s.err }

func (s *Source) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}
