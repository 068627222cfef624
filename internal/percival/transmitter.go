package percival

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/frame-producer/internal/monitoring"
	"github.com/banshee-data/frame-producer/internal/timeutil"
)

// Sender delivers one datagram to one endpoint and reports how many bytes
// the transport accepted. Implementations must not retain datagram.
type Sender interface {
	Send(ep Endpoint, datagram []byte) (int, error)
}

// Observer is called after a packet has been sent to every destination.
type Observer func(pkt Packet)

// RunStats summarises a completed or aborted run.
type RunStats struct {
	RunID   string
	Started time.Time
	Frames  int
	Packets int64
	// Bytes counts header and payload bytes accepted by the transport,
	// summed over all destinations.
	Bytes   int64
	Elapsed time.Duration
}

// Transmitter sends every packet of a run to every destination, in order.
type Transmitter struct {
	cfg      Config
	streams  Streams
	sender   Sender
	clock    timeutil.Clock
	observer Observer
	start    int
}

// Option configures a Transmitter.
type Option func(*Transmitter)

// WithClock replaces the clock used for pacing and elapsed time.
func WithClock(c timeutil.Clock) Option {
	return func(t *Transmitter) { t.clock = c }
}

// WithStartFrame numbers the first transmitted frame n instead of 0, so that
// a receiver sees one unbroken sequence across consecutive runs.
func WithStartFrame(n int) Option {
	return func(t *Transmitter) { t.start = n }
}

// WithObserver registers a callback invoked for each transmitted packet.
func WithObserver(o Observer) Option {
	return func(t *Transmitter) { t.observer = o }
}

// NewTransmitter validates the run configuration up front so that Run only
// fails on encoding or transport errors.
func NewTransmitter(cfg Config, streams Streams, sender Sender, opts ...Option) (*Transmitter, error) {
	if sender == nil {
		return nil, configErrorf("no sender")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateStreams(streams); err != nil {
		return nil, err
	}
	t := &Transmitter{
		cfg:     cfg,
		streams: streams,
		sender:  sender,
		clock:   timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.start < 0 {
		return nil, configErrorf("start frame must not be negative, got %d", t.start)
	}
	return t, nil
}

// Run transmits the configured frames. The context is only consulted between
// frames; a cancelled continuous run is a normal stop and returns no error.
func (t *Transmitter) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{RunID: uuid.NewString(), Started: t.clock.Now()}

	seq, err := NewSequencer(t.cfg, t.streams)
	if err != nil {
		return stats, err
	}
	if err := seq.StartAt(t.start); err != nil {
		return stats, err
	}

	monitoring.Logf("Starting Percival data transmission to %s ...", t.destinationList())

	buf := make([]byte, 0, HeaderSize+t.cfg.PayloadLen)
	frame := -1
	var subframeBytes int64

	finish := func(err error) (RunStats, error) {
		stats.Frames = seq.FramesCompleted()
		stats.Elapsed = t.clock.Since(stats.Started)
		monitoring.Logf("%d frames completed, %d bytes sent in %.3f secs",
			stats.Frames, stats.Bytes, stats.Elapsed.Seconds())
		return stats, err
	}

	for {
		pkt, err := seq.Next()
		if errors.Is(err, io.EOF) {
			return finish(nil)
		}
		if err != nil {
			return finish(err)
		}

		if pkt.Frame != frame {
			if frame >= 0 {
				if t.cfg.Interval > 0 {
					t.clock.Sleep(t.cfg.Interval)
				}
				if err := ctx.Err(); err != nil {
					if t.cfg.Continuous {
						return finish(nil)
					}
					return finish(err)
				}
			}
			frame = pkt.Frame
			monitoring.Logf("frame: %d", frame)
		}

		buf, err = pkt.Header.AppendBinary(buf[:0])
		if err != nil {
			return finish(t.transmitError(ErrEncoding, pkt, "", err))
		}
		buf = append(buf, pkt.Payload...)

		for _, d := range t.cfg.Destinations {
			ep := d.Endpoint(pkt.Type)
			n, err := t.sender.Send(ep, buf)
			if err != nil {
				return finish(t.transmitError(ErrTransport, pkt, ep.String(), err))
			}
			stats.Bytes += int64(n)
			subframeBytes += int64(n)
		}
		stats.Packets++

		if t.observer != nil {
			t.observer(pkt)
		}

		if pkt.EndOfSubframe {
			if t.cfg.Verbose {
				monitoring.Logf("  Sent %s frame: %d subframe: %d packets: %d bytes: %d",
					pkt.Type, pkt.Frame, pkt.Subframe, pkt.Index+1, subframeBytes)
			}
			subframeBytes = 0
		}
	}
}

func (t *Transmitter) transmitError(kind error, pkt Packet, endpoint string, err error) error {
	return &TransmitError{
		Kind:     kind,
		Frame:    pkt.Frame,
		Type:     pkt.Type,
		Subframe: pkt.Subframe,
		Packet:   pkt.Index,
		Endpoint: endpoint,
		Err:      err,
	}
}

func (t *Transmitter) destinationList() string {
	if len(t.cfg.Destinations) == 1 {
		return t.cfg.Destinations[0].String()
	}
	return fmt.Sprintf("%d destinations", len(t.cfg.Destinations))
}
