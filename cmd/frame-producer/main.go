// Command frame-producer emulates the Percival detector's data acquisition
// output: it generates a synthetic image and reset frame and streams it over
// UDP in the instrument's packet format.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/frame-producer/internal/config"
	"github.com/banshee-data/frame-producer/internal/db"
	"github.com/banshee-data/frame-producer/internal/display"
	"github.com/banshee-data/frame-producer/internal/monitoring"
	"github.com/banshee-data/frame-producer/internal/percival"
	"github.com/banshee-data/frame-producer/internal/percival/network"
	"github.com/banshee-data/frame-producer/internal/percival/pattern"
	"github.com/banshee-data/frame-producer/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process exit, returning the exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "frame-producer: %v\n", err)
		return 2
	}
	if opts.version {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	cfg, err := opts.producerConfig()
	if err != nil {
		fmt.Fprintf(stderr, "frame-producer: %v\n", err)
		return 2
	}

	if logCfg := cfg.GetLogFile(); logCfg.Path != "" {
		closer, err := monitoring.SetupFileLogging(logCfg)
		if err != nil {
			fmt.Fprintf(stderr, "frame-producer: %v\n", err)
			return 1
		}
		defer closer.Close()
	}

	if err := produce(ctx, cfg, opts.captureOnly); err != nil {
		monitoring.Logf("frame-producer: %v", err)
		if errors.Is(err, percival.ErrConfiguration) {
			return 2
		}
		return 1
	}
	return 0
}

// produce generates the frame, transmits it and writes the optional outputs.
func produce(ctx context.Context, cfg *config.ProducerConfig, captureOnly bool) error {
	runCfg, err := cfg.RunConfig()
	if err != nil {
		return err
	}

	frame, err := pattern.Generate(cfg.GetLayout())
	if err != nil {
		return err
	}
	streams := frame.Streams()

	sender, closeSender, err := openSender(cfg, runCfg, captureOnly)
	if err != nil {
		return err
	}
	defer closeSender()

	var chart []display.PacketSize
	firstFrame := cfg.GetStartFrame()
	observe := func(pkt percival.Packet) {
		if pkt.Frame == firstFrame && pkt.Type == percival.PacketImage {
			chart = append(chart, display.PacketSize{Subframe: pkt.Subframe, Index: pkt.Index, Bytes: len(pkt.Payload)})
		}
	}

	tx, err := percival.NewTransmitter(runCfg, streams, sender,
		percival.WithObserver(observe), percival.WithStartFrame(cfg.GetStartFrame()))
	if err != nil {
		return err
	}
	stats, runErr := tx.Run(ctx)

	if path := cfg.GetDBPath(); path != "" {
		if err := recordRun(path, cfg, runCfg, stats, runErr); err != nil {
			monitoring.Logf("Failed to record run: %v", err)
		}
	}
	if dir := cfg.GetDisplayDir(); dir != "" {
		if err := writeDisplay(dir, frame, cfg.GetDisplayStride(), chart); err != nil {
			monitoring.Logf("Failed to write display: %v", err)
		}
	}
	return runErr
}

// openSender builds the sender chain: UDP sockets, a capture file, or both.
func openSender(cfg *config.ProducerConfig, runCfg percival.Config, captureOnly bool) (percival.Sender, func(), error) {
	var (
		senders []percival.Sender
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				monitoring.Logf("close: %v", err)
			}
		}
	}

	if !captureOnly {
		udp, err := network.NewUDPSender(network.UDPSenderConfig{
			Destinations: runCfg.Destinations,
			WriteBuffer:  cfg.GetWriteBuffer(),
		})
		if err != nil {
			return nil, nil, err
		}
		senders = append(senders, udp)
		closers = append(closers, udp)
	}
	if path := cfg.GetCapturePath(); path != "" {
		capture, err := network.CreateCaptureFile(path, network.CaptureConfig{})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		monitoring.Logf("Capturing packets to %s", path)
		senders = append(senders, capture)
		closers = append(closers, capture)
	}

	if len(senders) == 1 {
		return senders[0], closeAll, nil
	}
	return network.Tee(senders), closeAll, nil
}

func recordRun(path string, cfg *config.ProducerConfig, runCfg percival.Config, stats percival.RunStats, runErr error) error {
	store, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := db.RunRecord{
		RunID:       stats.RunID,
		Started:     stats.Started,
		Frames:      stats.Frames,
		Packets:     stats.Packets,
		Bytes:       stats.Bytes,
		Elapsed:     stats.Elapsed,
		Continuous:  runCfg.Continuous,
		PayloadLen:  runCfg.PayloadLen,
		StreamBytes: runCfg.Geometry.StreamSize(),
	}
	for _, d := range runCfg.Destinations {
		rec.Destinations = append(rec.Destinations, d.String())
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := store.RecordRun(rec); err != nil {
		return err
	}
	monitoring.Logf("Recorded run %s in %s", rec.RunID, path)
	return nil
}

func writeDisplay(dir string, frame *pattern.Frame, stride int, chart []display.PacketSize) error {
	paths, err := display.WriteHeatmaps(dir, frame, stride)
	if err != nil {
		return err
	}
	for _, p := range paths {
		monitoring.Logf("Wrote %s", p)
	}
	if len(chart) == 0 {
		return nil
	}
	chartPath := filepath.Join(dir, "packets.html")
	if err := display.WritePacketChart(chartPath, "Image packets, first frame", chart); err != nil {
		return err
	}
	monitoring.Logf("Wrote %s", chartPath)
	return nil
}
