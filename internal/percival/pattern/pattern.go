// Package pattern generates the synthetic image and reset frames the
// producer transmits.
//
// The sensor is read out through ADC column blocks. Every pixel value encodes
// where it came from so a receiver can check that data landed in the right
// place: bits 10-15 hold the column block ("coarse" LVDS pair), bits 2-9 the
// ADC index and bits 0-1 the horizontal region. Reset pixels carry only the
// column block and a constant ADC value of 1.
package pattern

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/frame-producer/internal/percival"
)

// Layout describes the readout structure of the sensor.
type Layout struct {
	QuarterRows         int
	QuarterCols         int
	ColBlocksPerQuarter int
	ColsPerColBlock     int
	RowBlocksPerQuarter int
	RowsPerRowBlock     int
	ADCs                int
	// Regions is the number of horizontal regions a subframe is split into.
	Regions   int
	Subframes int
}

// DefaultLayout is the P2M sensor: four quarters of 704 x 742 pixels read by
// 224 ADCs per row block.
func DefaultLayout() Layout {
	return Layout{
		QuarterRows:         2,
		QuarterCols:         2,
		ColBlocksPerQuarter: 22,
		ColsPerColBlock:     32,
		RowBlocksPerQuarter: 106,
		RowsPerRowBlock:     7,
		ADCs:                224,
		Regions:             4,
		Subframes:           2,
	}
}

// Rows is the number of pixel rows.
func (l Layout) Rows() int { return l.QuarterRows * l.RowBlocksPerQuarter * l.RowsPerRowBlock }

// Cols is the number of pixel columns.
func (l Layout) Cols() int { return l.QuarterCols * l.ColBlocksPerQuarter * l.ColsPerColBlock }

// Pixels is the number of pixels in a frame.
func (l Layout) Pixels() int { return l.Rows() * l.Cols() }

// SubframePixels is the number of pixels in one subframe.
func (l Layout) SubframePixels() int {
	if l.Subframes <= 0 {
		return 0
	}
	return l.Pixels() / l.Subframes
}

func (l Layout) rowBlocks() int { return l.QuarterRows * l.RowBlocksPerQuarter }

func (l Layout) rowStride() int { return l.ColBlocksPerQuarter * l.ADCs }

// Validate checks that the readout pattern covers each subframe exactly once
// and that every value fits in 16 bits.
func (l Layout) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"quarter rows", l.QuarterRows},
		{"quarter cols", l.QuarterCols},
		{"col blocks per quarter", l.ColBlocksPerQuarter},
		{"cols per col block", l.ColsPerColBlock},
		{"row blocks per quarter", l.RowBlocksPerQuarter},
		{"rows per row block", l.RowsPerRowBlock},
		{"ADCs", l.ADCs},
		{"regions", l.Regions},
		{"subframes", l.Subframes},
	} {
		if f.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", percival.ErrConfiguration, f.name, f.v)
		}
	}
	switch {
	case l.Pixels()%l.Subframes != 0:
		return fmt.Errorf("%w: %d pixels do not split into %d subframes", percival.ErrConfiguration, l.Pixels(), l.Subframes)
	case l.rowBlocks()*l.rowStride() != l.SubframePixels():
		return fmt.Errorf("%w: %d row blocks of %d ADC samples do not tile a %d pixel subframe",
			percival.ErrConfiguration, l.rowBlocks(), l.rowStride(), l.SubframePixels())
	case l.rowBlocks()%l.Regions != 0:
		return fmt.Errorf("%w: %d row blocks do not split into %d regions", percival.ErrConfiguration, l.rowBlocks(), l.Regions)
	case l.ColBlocksPerQuarter > 64:
		return fmt.Errorf("%w: %d column blocks overflow the coarse field", percival.ErrConfiguration, l.ColBlocksPerQuarter)
	case l.ADCs > 256:
		return fmt.Errorf("%w: %d ADCs overflow the ADC field", percival.ErrConfiguration, l.ADCs)
	case l.Regions > 4:
		return fmt.Errorf("%w: %d regions overflow the region field", percival.ErrConfiguration, l.Regions)
	}
	return nil
}

// Geometry returns the transmitter geometry for pixels of bytesPerPixel bytes.
func (l Layout) Geometry(bytesPerPixel int) percival.Geometry {
	return percival.Geometry{
		Rows:           l.Rows(),
		Cols:           l.Cols(),
		BytesPerPixel:  bytesPerPixel,
		SubframePixels: l.SubframePixels(),
		Subframes:      l.Subframes,
	}
}

// Frame holds the generated pixel arrays in row-major order.
type Frame struct {
	Layout Layout
	Image  []uint16
	Reset  []uint16
}

// Generate fills an image and a reset array according to the readout layout.
func Generate(l Layout) (*Frame, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	f := &Frame{
		Layout: l,
		Image:  make([]uint16, l.Pixels()),
		Reset:  make([]uint16, l.Pixels()),
	}

	subframePixels := l.SubframePixels()
	rowStride := l.rowStride()
	regionRows := l.rowBlocks() / l.Regions
	for subframe := 0; subframe < l.Subframes; subframe++ {
		region := 0
		for row := 0; row < l.rowBlocks(); row++ {
			if row != 0 && row%regionRows == 0 {
				region++
			}
			for col := 0; col < l.ColBlocksPerQuarter; col++ {
				coarse := uint16(col) << 10
				index := subframe*subframePixels + row*rowStride + col*l.ADCs
				for adc := 0; adc < l.ADCs; adc++ {
					f.Image[index+adc] = coarse | uint16(adc)<<2 | uint16(region)
					f.Reset[index+adc] = coarse | 1<<2
				}
			}
		}
	}
	return f, nil
}

// Streams serialises both arrays as little-endian 16-bit pixels, the byte
// order the instrument's readout produces.
func (f *Frame) Streams() percival.Streams {
	return percival.Streams{
		Image: pixelBytes(f.Image),
		Reset: pixelBytes(f.Reset),
	}
}

// BytesPerPixel is the serialised pixel width.
const BytesPerPixel = 2

func pixelBytes(pixels []uint16) []byte {
	out := make([]byte, len(pixels)*BytesPerPixel)
	for i, p := range pixels {
		binary.LittleEndian.PutUint16(out[i*BytesPerPixel:], p)
	}
	return out
}
