package percival

import "io"

// Streams holds the read-only byte streams of one frame.
type Streams struct {
	Image []byte
	Reset []byte
}

// For returns the stream carried by packets of type t.
func (s Streams) For(t PacketType) []byte {
	if t == PacketReset {
		return s.Reset
	}
	return s.Image
}

// Packet is one datagram's worth of a stream. Payload aliases the stream.
type Packet struct {
	Frame    int
	Type     PacketType
	Subframe int
	// Index is the packet's position within its subframe, without flags.
	Index   int
	Offset  int
	Header  Header
	Payload []byte
	// EndOfSubframe and EndOfStream mark the packet that completes the
	// current subframe or stream.
	EndOfSubframe bool
	EndOfStream   bool
}

// Sequencer walks frames, stream kinds, subframes and packets in
// transmission order, producing one Packet per call to Next.
type Sequencer struct {
	cfg     Config
	streams Streams

	frame      int
	packetType int
	inStream   bool
	completed  int

	stream          []byte
	bytesRemaining  int
	streamPosn      int
	subframeCounter int
	packetCounter   int
	subframeTotal   int
}

// NewSequencer validates cfg and streams and returns a sequencer positioned
// before the first packet of frame 0.
func NewSequencer(cfg Config, streams Streams) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateStreams(streams); err != nil {
		return nil, err
	}
	return &Sequencer{cfg: cfg, streams: streams}, nil
}

// StartAt numbers the next frame n. Frames counts frames sequenced, so a
// bounded run still yields cfg.Frames frames. It must be called before the
// first call to Next.
func (s *Sequencer) StartAt(n int) error {
	if n < 0 {
		return configErrorf("start frame must not be negative, got %d", n)
	}
	s.frame = n
	return nil
}

// Frame returns the index of the frame currently being sequenced.
func (s *Sequencer) Frame() int { return s.frame }

// FramesCompleted returns how many frames have had all their packets yielded.
func (s *Sequencer) FramesCompleted() int { return s.completed }

// Next returns the next packet, or io.EOF once the configured frames have
// been exhausted. A continuous sequencer never returns io.EOF.
func (s *Sequencer) Next() (Packet, error) {
	for {
		if !s.inStream {
			if !s.cfg.Continuous && s.completed >= s.cfg.Frames {
				return Packet{}, io.EOF
			}
			s.beginStream()
		}
		if s.bytesRemaining > 0 {
			return s.emit(), nil
		}
		s.endStream()
	}
}

func (s *Sequencer) beginStream() {
	s.stream = s.streams.For(PacketTypes[s.packetType])
	s.bytesRemaining = len(s.stream)
	s.streamPosn = 0
	s.subframeCounter = 0
	s.packetCounter = 0
	s.subframeTotal = 0
	s.inStream = true
}

func (s *Sequencer) endStream() {
	s.inStream = false
	s.packetType++
	if s.packetType == len(PacketTypes) {
		s.packetType = 0
		s.frame++
		s.completed++
	}
}

func (s *Sequencer) emit() Packet {
	t := PacketTypes[s.packetType]
	subframeSize := s.cfg.Geometry.SubframeSize()
	size := NextPayloadSize(s.bytesRemaining, s.subframeTotal, subframeSize, s.cfg.PayloadLen)

	// The last packet of a stream carries only the end flag, even when it
	// is also the first packet of its subframe.
	number := uint16(s.packetCounter)
	if size == s.bytesRemaining {
		number |= s.cfg.EndOfFrameFlag
	} else if s.packetCounter == 0 {
		number |= s.cfg.StartOfFrameFlag
	}

	pkt := Packet{
		Frame:    s.frame,
		Type:     t,
		Subframe: s.subframeCounter,
		Index:    s.packetCounter,
		Offset:   s.streamPosn,
		Header: Header{
			PacketType:     int(t),
			SubframeNumber: s.subframeCounter,
			FrameNumber:    FrameNumber(s.frame, t),
			PacketNumber:   int(int16(number)),
		},
		Payload: s.stream[s.streamPosn : s.streamPosn+size],
	}

	s.bytesRemaining -= size
	s.streamPosn += size
	s.packetCounter++
	s.subframeTotal += size

	if s.subframeTotal == subframeSize {
		pkt.EndOfSubframe = true
		s.subframeTotal = 0
		s.packetCounter = 0
		s.subframeCounter++
	}
	if s.bytesRemaining == 0 {
		pkt.EndOfStream = true
		s.endStream()
	}
	return pkt
}
