package percival

import (
	"math"
	"math/bits"
	"net"
	"strconv"
	"time"
)

const (
	// MaxDatagramLen is the largest UDP payload an IPv4 datagram can carry.
	MaxDatagramLen = 65507

	// DefaultPort is the base port of the real instrument's receivers.
	DefaultPort = 61649
)

// Geometry describes the pixel layout of one stream.
type Geometry struct {
	Rows           int
	Cols           int
	BytesPerPixel  int
	SubframePixels int
	Subframes      int
}

// DefaultGeometry returns the Percival P2M sensor layout: 1484 rows of 1408
// 16-bit pixels, split into two horizontal subframes.
func DefaultGeometry() Geometry {
	const rows, cols = 2 * 106 * 7, 2 * 22 * 32
	return Geometry{
		Rows:           rows,
		Cols:           cols,
		BytesPerPixel:  2,
		SubframePixels: rows * cols / 2,
		Subframes:      2,
	}
}

// SubframeSize is the number of bytes in one subframe.
func (g Geometry) SubframeSize() int { return g.SubframePixels * g.BytesPerPixel }

// StreamSize is the number of bytes in one image or reset stream.
func (g Geometry) StreamSize() int { return g.Rows * g.Cols * g.BytesPerPixel }

// Validate checks that the geometry tiles a stream into whole subframes.
func (g Geometry) Validate() error {
	switch {
	case g.Rows <= 0 || g.Cols <= 0:
		return configErrorf("pixel dimensions must be positive, got %dx%d", g.Rows, g.Cols)
	case g.BytesPerPixel <= 0:
		return configErrorf("bytes per pixel must be positive, got %d", g.BytesPerPixel)
	case g.Subframes <= 0:
		return configErrorf("subframe count must be positive, got %d", g.Subframes)
	case g.Subframes > math.MaxInt8+1:
		return configErrorf("subframe count %d does not fit the subframe number field", g.Subframes)
	case g.SubframePixels <= 0:
		return configErrorf("subframe size must be positive, got %d pixels", g.SubframePixels)
	case g.SubframePixels*g.Subframes != g.Rows*g.Cols:
		return configErrorf("%d subframes of %d pixels do not cover %dx%d pixels",
			g.Subframes, g.SubframePixels, g.Rows, g.Cols)
	}
	return nil
}

// Destination is a receiver host. Image packets go to BasePort, reset
// packets to BasePort+1.
type Destination struct {
	Host     string
	BasePort int
}

// Endpoint returns the address that packets of type t are sent to.
func (d Destination) Endpoint(t PacketType) Endpoint {
	return Endpoint{Host: d.Host, Port: d.BasePort + int(t)}
}

func (d Destination) String() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.BasePort))
}

// Validate checks that both stream ports of d are usable.
func (d Destination) Validate() error {
	if d.Host == "" {
		return configErrorf("destination host is empty")
	}
	if d.BasePort < 1 || d.BasePort+len(PacketTypes)-1 > math.MaxUint16 {
		return configErrorf("destination %s: base port %d out of range", d.Host, d.BasePort)
	}
	return nil
}

// Endpoint is a single UDP address.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Config holds the validated, immutable parameters of a run.
type Config struct {
	Geometry   Geometry
	PayloadLen int

	// Frames is the number of frames to send. Zero sends nothing unless
	// Continuous is set, in which case frames are sent until the context
	// passed to Run is cancelled.
	Frames     int
	Continuous bool

	// Interval is the advisory pause between frames.
	Interval time.Duration

	// StartOfFrameFlag is OR'd into the packet number of the first packet of
	// each subframe and EndOfFrameFlag into the last packet of each stream.
	// Both are zero on the instrument.
	StartOfFrameFlag uint16
	EndOfFrameFlag   uint16

	Destinations []Destination

	// Verbose logs one line per transmitted subframe.
	Verbose bool
}

// DefaultConfig returns a single-frame run to the local host.
func DefaultConfig() Config {
	return Config{
		Geometry:     DefaultGeometry(),
		PayloadLen:   DefaultPayloadLen,
		Frames:       1,
		Interval:     100 * time.Millisecond,
		Destinations: []Destination{{Host: "127.0.0.1", BasePort: DefaultPort}},
	}
}

// Validate checks every parameter that could make a run misbehave.
func (c Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if c.PayloadLen <= 0 {
		return configErrorf("payload length must be positive, got %d", c.PayloadLen)
	}
	if c.PayloadLen > MaxDatagramLen-HeaderSize {
		return configErrorf("payload length %d exceeds the maximum datagram size", c.PayloadLen)
	}
	if c.Frames < 0 {
		return configErrorf("frame count must not be negative, got %d", c.Frames)
	}
	if c.Interval < 0 {
		return configErrorf("interval must not be negative, got %v", c.Interval)
	}
	if len(c.Destinations) == 0 {
		return configErrorf("no destinations configured")
	}
	for _, d := range c.Destinations {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	packets := PacketsPerSubframe(c.Geometry.SubframeSize(), c.PayloadLen)
	if packets-1 > math.MaxInt16 {
		return configErrorf("%d packets per subframe overflow the packet number field", packets)
	}
	flags := c.StartOfFrameFlag | c.EndOfFrameFlag
	if counterBits := uint16(1)<<bits.Len(uint(packets-1)) - 1; flags&counterBits != 0 {
		return configErrorf("frame flags %#04x overlap packet counter bits %#04x", flags, counterBits)
	}
	return nil
}

// ValidateStreams checks that each stream is either empty or exactly one
// geometry's worth of bytes, so every stream ends on a subframe boundary.
func (c Config) ValidateStreams(streams Streams) error {
	size := c.Geometry.StreamSize()
	nonEmpty := false
	for _, t := range PacketTypes {
		n := len(streams.For(t))
		if n != 0 && n != size {
			return configErrorf("%s stream is %d bytes, want %d", t, n, size)
		}
		nonEmpty = nonEmpty || n > 0
	}
	if c.Continuous && !nonEmpty {
		return configErrorf("continuous mode needs at least one non-empty stream")
	}
	return nil
}
