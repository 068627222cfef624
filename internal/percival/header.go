package percival

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire layout of the packet header. All multi-byte fields are big-endian
// and the header has no padding.
const (
	offPacketType     = 0
	offSubframeNumber = 1
	offFrameNumber    = 2
	offPacketNumber   = 6
	offInformation    = 8

	// InformationLen is the number of reserved information bytes.
	InformationLen = 14

	// HeaderSize is the encoded header length in bytes.
	HeaderSize = offInformation + InformationLen
)

// PacketType discriminates the image and reset streams of a frame.
type PacketType int

const (
	PacketImage PacketType = 0
	PacketReset PacketType = 1
)

// PacketTypes lists the stream kinds in transmission order.
var PacketTypes = [...]PacketType{PacketImage, PacketReset}

func (t PacketType) String() string {
	switch t {
	case PacketImage:
		return "Image"
	case PacketReset:
		return "Reset"
	default:
		return fmt.Sprintf("PacketType(%d)", int(t))
	}
}

// FrameNumber interleaves image and reset numbering into one counter.
func FrameNumber(frame int, t PacketType) int64 {
	return int64(frame)*2 + int64(t)
}

// Header is the decoded form of a packet header. Fields are wider than their
// wire widths so that out-of-range values are reported by the encoder rather
// than silently truncated.
type Header struct {
	PacketType     int
	SubframeNumber int
	FrameNumber    int64
	PacketNumber   int
	// Information is reserved metadata. A nil slice encodes as zeros,
	// otherwise it must hold exactly InformationLen values.
	Information []int8
}

// Validate reports whether every field fits its wire width.
func (h Header) Validate() error {
	if h.PacketType < math.MinInt8 || h.PacketType > math.MaxInt8 {
		return fmt.Errorf("%w: packet type %d overflows int8", ErrEncoding, h.PacketType)
	}
	if h.SubframeNumber < math.MinInt8 || h.SubframeNumber > math.MaxInt8 {
		return fmt.Errorf("%w: subframe number %d overflows int8", ErrEncoding, h.SubframeNumber)
	}
	if h.FrameNumber < math.MinInt32 || h.FrameNumber > math.MaxInt32 {
		return fmt.Errorf("%w: frame number %d overflows int32", ErrEncoding, h.FrameNumber)
	}
	if h.PacketNumber < math.MinInt16 || h.PacketNumber > math.MaxInt16 {
		return fmt.Errorf("%w: packet number %d overflows int16", ErrEncoding, h.PacketNumber)
	}
	if h.Information != nil && len(h.Information) != InformationLen {
		return fmt.Errorf("%w: information has %d elements, want %d", ErrEncoding, len(h.Information), InformationLen)
	}
	return nil
}

// AppendBinary appends the HeaderSize-byte encoding of h to dst.
func (h Header) AppendBinary(dst []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return dst, err
	}

	var buf [HeaderSize]byte
	buf[offPacketType] = byte(int8(h.PacketType))
	buf[offSubframeNumber] = byte(int8(h.SubframeNumber))
	binary.BigEndian.PutUint32(buf[offFrameNumber:], uint32(int32(h.FrameNumber)))
	binary.BigEndian.PutUint16(buf[offPacketNumber:], uint16(int16(h.PacketNumber)))
	for i, v := range h.Information {
		buf[offInformation+i] = byte(v)
	}
	return append(dst, buf[:]...), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}

// DecodeHeader parses the first HeaderSize bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrEncoding, HeaderSize, len(b))
	}
	h := Header{
		PacketType:     int(int8(b[offPacketType])),
		SubframeNumber: int(int8(b[offSubframeNumber])),
		FrameNumber:    int64(int32(binary.BigEndian.Uint32(b[offFrameNumber:]))),
		PacketNumber:   int(int16(binary.BigEndian.Uint16(b[offPacketNumber:]))),
		Information:    make([]int8, InformationLen),
	}
	for i := range h.Information {
		h.Information[i] = int8(b[offInformation+i])
	}
	return h, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Header) UnmarshalBinary(b []byte) error {
	decoded, err := DecodeHeader(b)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}
