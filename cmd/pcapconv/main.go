package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pcapconv/internal/analyzer"
	"pcapconv/internal/capture"
	"pcapconv/internal/config"
	"pcapconv/internal/conv"
	"pcapconv/internal/report"
)

const banner = "=============================="

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// shorthands maps short flag names to their setting.
var shorthands = map[string]string{
	"p":  "pcap",
	"r":  "report",
	"f":  "format",
	"F":  "filter",
	"L":  "list",
	"pl": "plot",
	"o":  "out-dir",
	"q":  "quiet",
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)

	fs.String("pcap", "", "Glob pattern or comma-separated list of PCAP files to parse - ensure arguments are marked with double quotes")
	fs.String("p", "", "Glob pattern or comma-separated list of PCAP files to parse (shorthand)")

	fs.String("report", "all", "Report options: prot, eth, hp, tcp, all")
	fs.String("r", "all", "Report options: prot, eth, hp, tcp, all (shorthand)")

	fs.String("format", "text", "Output type: text, csv, both")
	fs.String("f", "text", "Output type: text, csv, both (shorthand)")

	fs.String("sort-prot", "id", "Protocol table sort column: id, pc, bc, pr, du...")
	fs.String("sort-eth", "id", "Ethernet table sort column: id, pc, bc, rpc, spc, pr, du...")
	fs.String("sort-hp", "id", "Host pair table sort column: id, pc, bc, srcos, dstos, du...")
	fs.String("sort-tcp", "id", "TCP table sort column: id, pc, ret, dupack, art, intergaptime, sat, rat, unackseq...")

	fs.String("filter", "", "Capture filter: ip:A, hp:A-B, port:P, socket:A:P-B:Q, mac:M, prot:X, bpf:EXPR")
	fs.String("F", "", "Capture filter (shorthand)")

	fs.String("list", "", "Trace one TCP socket pair A:P-B:Q packet by packet")
	fs.String("L", "", "Trace one TCP socket pair (shorthand)")

	fs.String("plot", "", "Plot TCP timings: all, or a socket pair A:P-B:Q")
	fs.String("pl", "", "Plot TCP timings (shorthand)")

	fs.String("out-dir", ".", "Directory for CSV tables and plots")
	fs.String("o", ".", "Directory for CSV tables and plots (shorthand)")

	fs.String("trace-csv", "", "Output CSV file for the socket trace")
	fs.String("reader", "pcap", "Capture reader: pcap (libpcap) or go (pure Go)")
	fs.Int("buffer", 1024, "Decoded packets buffered between reader and analyzer")
	fs.String("log-level", "info", "Log level: panic, fatal, error, warn, info, debug, trace")

	fs.Bool("quiet", false, "Suppress log output if set to true")
	fs.Bool("q", false, "Suppress log output if set to true (shorthand)")

	configFile := fs.String("config", "", "Optional configuration file (yaml, json, toml)")
	fs.StringVar(configFile, "c", "", "Optional configuration file (shorthand)")

	return fs, configFile
}

// explicitSettings returns the flags set on the command line, keyed by
// setting name, so they win over file and environment values.
func explicitSettings(fs *flag.FlagSet) map[string]string {
	set := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := shorthands[name]; ok {
			name = long
		}
		switch {
		case name == "config" || name == "c":
			return
		case strings.HasPrefix(name, "sort-"):
			name = "sort." + strings.TrimPrefix(name, "sort-")
		}
		set[name] = f.Value.String()
	})
	return set
}

// expandPcapPatterns processes the glob patterns and returns a list of matching files.
func expandPcapPatterns(pcapFiles string) []string {
	var fileList []string
	for _, pattern := range strings.Split(pcapFiles, ",") {
		absPattern, err := filepath.Abs(strings.TrimSpace(pattern))
		if err != nil {
			log.WithError(err).Warnf("Skipping pattern '%s'", pattern)
			continue
		}

		matches, err := filepath.Glob(absPattern)
		if err != nil {
			log.WithError(err).Warnf("Skipping pattern '%s'", absPattern)
			continue
		}

		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && !info.IsDir() &&
				(strings.HasSuffix(match, ".pcap") || strings.HasSuffix(match, ".pcapng")) {
				fileList = append(fileList, match)
			}
		}
	}
	return fileList
}

func formatDuration(d time.Duration) string {
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

func plural(n int) string {
	if n == 1 {
		return "file"
	}
	return "files"
}

// run analyses every file matched by cfg.Pcap, writing reports to out.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	files := expandPcapPatterns(cfg.Pcap)
	if len(files) == 0 {
		return fmt.Errorf("no matching PCAP files found for the provided pattern(s)")
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var opts []analyzer.Option
	bpf, err := capture.BuildFilter(cfg.Filter)
	if err != nil {
		return err
	}
	if cfg.List != "" {
		socket, err := capture.ParseSocket(cfg.List)
		if err != nil {
			return err
		}
		bpf = socket.BPF()
		opts = append(opts, analyzer.WithTrace(socket.String()))
	}

	var collector *report.TraceCollector
	if cfg.TraceCSV != "" {
		collector = &report.TraceCollector{}
		log.AddHook(collector)
	}

	fmt.Fprintln(out, banner)
	fmt.Fprintf(out, "Processing %d PCAP %s...\n", len(files), plural(len(files)))
	if bpf != "" {
		fmt.Fprintf(out, "Capture filter: %s\n", bpf)
	}
	fmt.Fprintln(out, banner)

	for _, fileName := range files {
		fmt.Fprintf(out, "Processing PCAP '%s'...\n", fileName)
		startTime := time.Now()
		n, err := processPcap(ctx, cfg, fileName, bpf, opts, out)
		if err != nil {
			return fmt.Errorf("process %s: %w", fileName, err)
		}
		fmt.Fprintf(out, "Finished processing '%s' in %v. Packets analysed: %d\n", fileName, formatDuration(time.Since(startTime)), n)
		fmt.Fprintln(out, banner)
	}

	if collector != nil {
		if err := collector.WriteCSV(cfg.TraceCSV); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
		fmt.Fprintf(out, "Trace of %d packets written to CSV file: %s\n", collector.Len(), cfg.TraceCSV)
		fmt.Fprintln(out, banner)
	}
	return nil
}

// processPcap runs one file through fresh registries and emits its reports.
func processPcap(ctx context.Context, cfg *config.Config, fileName, bpf string, opts []analyzer.Option, out io.Writer) (int, error) {
	src, err := capture.Open(fileName, capture.Options{
		Reader: cfg.Reader,
		BPF:    bpf,
		Buffer: cfg.Buffer,
		Log:    log,
	})
	if err != nil {
		return 0, err
	}
	defer src.Close()

	regs := conv.NewRegistries()
	a := analyzer.New(regs, log, opts...)
	if err := a.Run(ctx, src.Packets(ctx)); err != nil {
		return a.Packets, err
	}
	if err := src.Err(); err != nil {
		return a.Packets, err
	}

	tables, err := report.Build(regs, cfg.Report, report.SortColumns{
		Protocols: cfg.Sort.Prot,
		Ethernet:  cfg.Sort.Eth,
		HostPairs: cfg.Sort.HP,
		TCP:       cfg.Sort.TCP,
	})
	if err != nil {
		return a.Packets, err
	}
	paths, err := report.Emit(out, cfg.OutDir, cfg.Format, tables)
	if err != nil {
		return a.Packets, err
	}
	for _, p := range paths {
		log.WithField("File", p).Info("Wrote table")
	}

	if cfg.Plot != "" {
		plots, err := report.PlotTimings(regs.TCP, cfg.Plot, cfg.OutDir)
		if err != nil {
			return a.Packets, fmt.Errorf("plot: %w", err)
		}
		fmt.Fprintf(out, "Generated %d timing plots\n", len(plots))
	}
	return a.Packets, nil
}

// ====== Main Function ======

func main() {
	fs, configFile := newFlagSet(os.Args[0])
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configFile, explicitSettings(fs))
	if err != nil {
		fmt.Println(err)
		fs.Usage()
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	log.SetLevel(level)
	if cfg.Quiet {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.WithError(err).Error("pcapconv failed")
		stop()
		os.Exit(1)
	}
}
