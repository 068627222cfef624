package network

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/frame-producer/internal/percival"
	"github.com/banshee-data/frame-producer/internal/timeutil"
)

// CaptureSnapLen is the snapshot length written to capture file headers. It
// exceeds the largest frame Send produces: Ethernet, IPv6 and UDP headers
// around a MaxDatagramLen payload.
const CaptureSnapLen = 262144

var (
	captureSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	captureDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// CaptureConfig configures a CaptureSender.
type CaptureConfig struct {
	// SourceIP is the sender address written into each frame. It defaults
	// to the loopback address of the destination's family.
	SourceIP net.IP
	// SourcePort defaults to the destination port.
	SourcePort int
	// Clock stamps captured frames. Defaults to RealClock.
	Clock timeutil.Clock
}

// CaptureSender records every datagram as an Ethernet/IP/UDP frame in pcap
// format instead of (or, through Tee, as well as) putting it on the wire.
// Frames are never fragmented, whatever the datagram size.
type CaptureSender struct {
	w       *pcapgo.Writer
	out     io.Writer
	cfg     CaptureConfig
	buf     gopacket.SerializeBuffer
	addrs   map[percival.Endpoint]*net.UDPAddr
	packets int
}

// CreateCaptureFile creates path and returns a CaptureSender writing to it.
// Close the sender to close the file.
func CreateCaptureFile(path string, cfg CaptureConfig) (*CaptureSender, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file %s: %w", path, err)
	}
	s, err := NewCaptureSender(f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// NewCaptureSender writes a pcap file header to out and returns a sender
// appending one record per datagram.
func NewCaptureSender(out io.Writer, cfg CaptureConfig) (*CaptureSender, error) {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(CaptureSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return &CaptureSender{
		w:     w,
		out:   out,
		cfg:   cfg,
		buf:   gopacket.NewSerializeBuffer(),
		addrs: make(map[percival.Endpoint]*net.UDPAddr),
	}, nil
}

// Packets returns the number of frames written so far.
func (c *CaptureSender) Packets() int { return c.packets }

// Send implements percival.Sender. It reports the full datagram as sent.
func (c *CaptureSender) Send(ep percival.Endpoint, datagram []byte) (int, error) {
	if len(datagram) > percival.MaxDatagramLen {
		return 0, fmt.Errorf("%w: datagram of %d bytes too large to capture", percival.ErrTransport, len(datagram))
	}
	dst, err := c.resolve(ep)
	if err != nil {
		return 0, err
	}

	srcPort := c.cfg.SourcePort
	if srcPort == 0 {
		srcPort = dst.Port
	}
	eth := &layers.Ethernet{SrcMAC: captureSrcMAC, DstMAC: captureDstMAC}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dst.Port)}

	var netLayer gopacket.SerializableLayer
	if dst4 := dst.IP.To4(); dst4 != nil {
		src := net.IPv4(127, 0, 0, 1).To4()
		if c.cfg.SourceIP.To4() != nil {
			src = c.cfg.SourceIP.To4()
		}
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Flags:    layers.IPv4DontFragment,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src,
			DstIP:    dst4,
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return 0, fmt.Errorf("%w: %w", percival.ErrTransport, err)
		}
		netLayer = ip
	} else {
		src := net.IPv6loopback
		if c.cfg.SourceIP != nil && c.cfg.SourceIP.To4() == nil {
			src = c.cfg.SourceIP
		}
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      src,
			DstIP:      dst.IP,
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return 0, fmt.Errorf("%w: %w", percival.ErrTransport, err)
		}
		netLayer = ip
	}

	if err := c.buf.Clear(); err != nil {
		return 0, fmt.Errorf("%w: %w", percival.ErrTransport, err)
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(c.buf, opts, eth, netLayer, udp, gopacket.Payload(datagram)); err != nil {
		return 0, fmt.Errorf("%w: failed to serialize frame for %s: %w", percival.ErrTransport, ep, err)
	}

	frame := c.buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     c.cfg.Clock.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := c.w.WritePacket(ci, frame); err != nil {
		return 0, fmt.Errorf("%w: failed to write capture record: %w", percival.ErrTransport, err)
	}
	c.packets++
	return len(datagram), nil
}

func (c *CaptureSender) resolve(ep percival.Endpoint) (*net.UDPAddr, error) {
	if addr, ok := c.addrs[ep]; ok {
		return addr, nil
	}
	addr, err := net.ResolveUDPAddr("udp", ep.String())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve %s: %w", percival.ErrConfiguration, ep, err)
	}
	c.addrs[ep] = addr
	return addr, nil
}

// Close closes the underlying writer if it is closable.
func (c *CaptureSender) Close() error {
	if closer, ok := c.out.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
