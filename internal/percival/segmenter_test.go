package percival

import "testing"

func TestNextPayloadSize(t *testing.T) {
	tests := []struct {
		name                                             string
		bytesRemaining, subframeTotal, subframeSize, max int
		want                                             int
	}{
		{"full packet", 17920, 0, 8960, 8192, 8192},
		{"subframe remainder", 9728, 8192, 8960, 8192, 768},
		{"last packet of stream", 768, 8192, 8960, 8192, 768},
		{"exact fit", 8192, 0, 8192, 8192, 8192},
		{"stream shorter than payload", 100, 0, 100, 8192, 100},
		{"subframe boundary at packet multiple", 16384, 8192, 16384, 8192, 8192},
		{"payload larger than subframe", 20, 0, 10, 25, 10},
		{"payload larger than subframe, second subframe", 10, 0, 10, 25, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextPayloadSize(tt.bytesRemaining, tt.subframeTotal, tt.subframeSize, tt.max)
			if got != tt.want {
				t.Errorf("NextPayloadSize(%d, %d, %d, %d) = %d, want %d",
					tt.bytesRemaining, tt.subframeTotal, tt.subframeSize, tt.max, got, tt.want)
			}
		})
	}
}

// Exhaustively walks small streams and checks the segmenter never produces an
// empty packet, never exceeds the payload cap and never crosses a subframe.
func TestNextPayloadSize_Bounds(t *testing.T) {
	for subframeSize := 1; subframeSize <= 40; subframeSize++ {
		for subframes := 1; subframes <= 3; subframes++ {
			for payloadLen := 1; payloadLen <= 45; payloadLen++ {
				remaining := subframeSize * subframes
				subframeTotal := 0
				for remaining > 0 {
					size := NextPayloadSize(remaining, subframeTotal, subframeSize, payloadLen)
					if size <= 0 || size > payloadLen {
						t.Fatalf("sf=%d n=%d p=%d: size %d out of (0, %d]", subframeSize, subframes, payloadLen, size, payloadLen)
					}
					if subframeTotal+size > subframeSize {
						t.Fatalf("sf=%d n=%d p=%d: packet of %d crosses subframe at %d", subframeSize, subframes, payloadLen, size, subframeTotal)
					}
					remaining -= size
					subframeTotal += size
					if subframeTotal == subframeSize {
						subframeTotal = 0
					}
				}
				if subframeTotal != 0 {
					t.Fatalf("sf=%d n=%d p=%d: stream ended mid-subframe", subframeSize, subframes, payloadLen)
				}
			}
		}
	}
}

func TestPacketsPerSubframe(t *testing.T) {
	if got := PacketsPerSubframe(8960, 8192); got != 2 {
		t.Errorf("PacketsPerSubframe(8960, 8192) = %d, want 2", got)
	}
	if got := PacketsPerSubframe(DefaultGeometry().SubframeSize(), DefaultPayloadLen); got != 256 {
		t.Errorf("default geometry packets per subframe = %d, want 256", got)
	}
	if got := PacketsPerSubframe(0, 8192); got != 0 {
		t.Errorf("PacketsPerSubframe(0, 8192) = %d, want 0", got)
	}
}
