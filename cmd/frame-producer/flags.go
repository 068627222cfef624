package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/frame-producer/internal/config"
)

// seconds accepts either a bare number of seconds ("0.1") or a Go duration
// ("100ms").
type seconds struct{ d *time.Duration }

func (s seconds) String() string {
	if s.d == nil {
		return ""
	}
	return s.d.String()
}

func (s seconds) Set(v string) error {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*s.d = time.Duration(f * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("want seconds or a duration, got %q", v)
	}
	*s.d = d
	return nil
}

// options holds the parsed command line. Only flags that were given on the
// command line override the config file.
type options struct {
	configPath  string
	host        string
	port        int
	hosts       string
	multihosts  bool
	frames      int
	startFrame  int
	interval    time.Duration
	payload     int
	continuous  bool
	startFlag   uint
	endFlag     uint
	writeBuffer int
	capture     string
	captureOnly bool
	dbPath      string
	display     string
	stride      int
	logFile     string
	verbose     bool
	version     bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{interval: 100 * time.Millisecond}
	fs := flag.NewFlagSet("frame-producer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "Producer config file (.json, .yaml or .yml)")
	fs.StringVar(&o.host, "host", "127.0.0.1", "Receiver host")
	fs.IntVar(&o.port, "port", 61649, "Image stream port; reset packets go to port+1")
	fs.StringVar(&o.hosts, "hosts", "", "Comma separated receiver hosts")
	fs.BoolVar(&o.multihosts, "multihosts", false, "Send to the default receiver nodes 192.168.{0..3}.1")
	fs.IntVar(&o.frames, "frames", 0, "Number of frames to send")
	fs.IntVar(&o.frames, "n", 0, "Shorthand for -frames")
	fs.IntVar(&o.startFrame, "start-frame", 0, "Number given to the first frame, to continue a previous run's sequence")
	fs.Var(seconds{&o.interval}, "interval", "Pause between frames, in seconds or as a duration")
	fs.Var(seconds{&o.interval}, "t", "Shorthand for -interval")
	fs.IntVar(&o.payload, "payload", 8192, "Maximum payload bytes per packet")
	fs.BoolVar(&o.continuous, "continuous", false, "Send frames until interrupted")
	fs.UintVar(&o.startFlag, "start-flag", 0, "Value OR'd into the packet number of the first packet of each subframe")
	fs.UintVar(&o.endFlag, "end-flag", 0, "Value OR'd into the packet number of the last packet of each stream")
	fs.IntVar(&o.writeBuffer, "write-buffer", 0, "Socket send buffer size in bytes (0 keeps the OS default)")
	fs.StringVar(&o.capture, "capture", "", "Also write every datagram to this pcap file")
	fs.BoolVar(&o.captureOnly, "capture-only", false, "Write the capture file without sending on the network")
	fs.StringVar(&o.dbPath, "db", "", "Record the run in this sqlite database")
	fs.StringVar(&o.display, "display", "", "Write frame heatmaps and a packet chart to this directory")
	fs.IntVar(&o.stride, "display-stride", 4, "Heatmap decimation")
	fs.StringVar(&o.logFile, "log-file", "", "Also log to this rotating file")
	fs.BoolVar(&o.verbose, "verbose", false, "Log every transmitted subframe")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if o.set["host"] && (o.set["hosts"] || o.multihosts) {
		return nil, fmt.Errorf("-host cannot be combined with -hosts or -multihosts")
	}
	if o.set["hosts"] && o.multihosts {
		return nil, fmt.Errorf("-hosts cannot be combined with -multihosts")
	}
	if o.captureOnly && o.capture == "" {
		return nil, fmt.Errorf("-capture-only needs -capture")
	}
	return o, nil
}

func (o *options) isSet(names ...string) bool {
	for _, n := range names {
		if o.set[n] {
			return true
		}
	}
	return false
}

// producerConfig loads the config file, if any, and overlays the flags that
// were given explicitly.
func (o *options) producerConfig() (*config.ProducerConfig, error) {
	cfg := config.EmptyProducerConfig()
	if o.configPath != "" {
		loaded, err := config.LoadProducerConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	switch {
	case o.set["host"]:
		cfg.Host, cfg.Hosts = config.Ptr(o.host), nil
	case o.set["hosts"]:
		cfg.Host, cfg.Hosts = nil, splitHosts(o.hosts)
	case o.multihosts:
		cfg.Host, cfg.Hosts = nil, append([]string(nil), config.DefaultMultiHosts...)
	}
	if o.isSet("port") {
		cfg.Port = config.Ptr(o.port)
	}
	if o.isSet("frames", "n") {
		cfg.Frames = config.Ptr(o.frames)
	}
	if o.isSet("start-frame") {
		cfg.StartFrame = config.Ptr(o.startFrame)
	}
	if o.isSet("interval", "t") {
		cfg.Interval = config.Ptr(o.interval.String())
	}
	if o.isSet("payload") {
		cfg.PayloadLen = config.Ptr(o.payload)
	}
	if o.isSet("continuous") {
		cfg.Continuous = config.Ptr(o.continuous)
	}
	if o.isSet("start-flag") {
		cfg.StartOfFrameFlag = config.Ptr(int(o.startFlag))
	}
	if o.isSet("end-flag") {
		cfg.EndOfFrameFlag = config.Ptr(int(o.endFlag))
	}
	if o.isSet("write-buffer") {
		cfg.WriteBuffer = config.Ptr(o.writeBuffer)
	}
	if o.isSet("capture") {
		cfg.CapturePath = config.Ptr(o.capture)
	}
	if o.isSet("db") {
		cfg.DBPath = config.Ptr(o.dbPath)
	}
	if o.isSet("display") {
		cfg.DisplayDir = config.Ptr(o.display)
	}
	if o.isSet("display-stride") {
		cfg.DisplayStride = config.Ptr(o.stride)
	}
	if o.isSet("log-file") {
		if cfg.Log == nil {
			cfg.Log = &config.LogConfig{}
		}
		cfg.Log.Path = o.logFile
	}
	if o.isSet("verbose") {
		cfg.Verbose = config.Ptr(o.verbose)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
