package pattern

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/frame-producer/internal/percival"
)

func TestDefaultLayout_Dimensions(t *testing.T) {
	l := DefaultLayout()
	require.NoError(t, l.Validate())
	assert.Equal(t, 1484, l.Rows())
	assert.Equal(t, 1408, l.Cols())
	assert.Equal(t, 1044736, l.SubframePixels())

	g := l.Geometry(BytesPerPixel)
	assert.Equal(t, percival.DefaultGeometry(), g)
	require.NoError(t, g.Validate())
}

func TestLayout_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Layout)
	}{
		{"zero ADCs", func(l *Layout) { l.ADCs = 0 }},
		{"negative subframes", func(l *Layout) { l.Subframes = -1 }},
		{"pixels not divisible", func(l *Layout) { l.Subframes = 3 }},
		{"ADCs do not tile", func(l *Layout) { l.ADCs = 200 }},
		{"regions do not divide", func(l *Layout) { l.Regions = 3 }},
		{"too many regions", func(l *Layout) { l.Regions = 212 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLayout()
			tt.mutate(&l)
			err := l.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, percival.ErrConfiguration))
		})
	}
}

func TestLayout_ValidateReportsFirstBadField(t *testing.T) {
	for i := 0; i < 20; i++ {
		err := Layout{}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quarter rows must be positive")
	}
}

// tinyLayout keeps generation cheap: 2x2 quarters of 2 blocks of 4 columns,
// 2 row blocks of 4 rows, read by 16 ADCs. Each of the 4 row blocks of a
// subframe holds 2 column blocks of 16 samples.
func tinyLayout() Layout {
	return Layout{
		QuarterRows:         2,
		QuarterCols:         2,
		ColBlocksPerQuarter: 2,
		ColsPerColBlock:     4,
		RowBlocksPerQuarter: 2,
		RowsPerRowBlock:     4,
		ADCs:                16,
		Regions:             2,
		Subframes:           2,
	}
}

func TestGenerate_Tiny(t *testing.T) {
	l := tinyLayout()
	require.NoError(t, l.Validate())

	f, err := Generate(l)
	require.NoError(t, err)
	require.Len(t, f.Image, 256)
	require.Len(t, f.Reset, 256)

	// Row block 0, column block 1, ADC 3 of subframe 0: region 0.
	assert.Equal(t, uint16(1<<10|3<<2|0), f.Image[0*32+1*16+3])
	// Row block 2 starts region 1.
	assert.Equal(t, uint16(0<<10|5<<2|1), f.Image[2*32+0*16+5])
	// Last sample of the subframe: row block 3, column block 1, ADC 15.
	assert.Equal(t, uint16(1<<10|15<<2|1), f.Image[127])
	// Second subframe repeats the pattern from region 0.
	assert.Equal(t, f.Image[:128], f.Image[128:])

	for i, v := range f.Reset {
		assert.Equal(t, uint16(1<<2), v&0x3ff, "reset pixel %d", i)
	}
}

func TestGenerate_DefaultRegions(t *testing.T) {
	l := DefaultLayout()
	f, err := Generate(l)
	require.NoError(t, err)

	rowStride := l.ColBlocksPerQuarter * l.ADCs
	regionOf := func(rowBlock int) uint16 { return f.Image[rowBlock*rowStride] & 0x3 }
	assert.Equal(t, uint16(0), regionOf(0))
	assert.Equal(t, uint16(0), regionOf(52))
	assert.Equal(t, uint16(1), regionOf(53))
	assert.Equal(t, uint16(3), regionOf(211))

	last := f.Image[l.SubframePixels()-1]
	assert.Equal(t, uint16(21), last>>10)
	assert.Equal(t, uint16(223), (last>>2)&0xff)
}

func TestGenerate_InvalidLayout(t *testing.T) {
	_, err := Generate(Layout{})
	assert.ErrorIs(t, err, percival.ErrConfiguration)
}

func TestFrame_StreamsLittleEndian(t *testing.T) {
	f, err := Generate(tinyLayout())
	require.NoError(t, err)

	s := f.Streams()
	require.Len(t, s.Image, len(f.Image)*BytesPerPixel)
	require.Len(t, s.Reset, len(f.Reset)*BytesPerPixel)
	for i, p := range f.Image {
		require.Equal(t, p, binary.LittleEndian.Uint16(s.Image[i*2:]))
	}
	assert.Equal(t, byte(1<<2), s.Reset[0])

	g := f.Layout.Geometry(BytesPerPixel)
	assert.Equal(t, g.StreamSize(), len(s.Image))
}
