package audio

import (
	"encoding/binary"
	"testing"
)

func TestResampleSameRatePassthrough(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	out := Resample(in, 24000, 24000)
	if &out[0] != &in[0] {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestResampleLengthScales(t *testing.T) {
	tests := []struct {
		name      string
		frames    int
		from, to  int
		wantOutFr int
	}{
		{"downsample 2:1", 1000, 48000, 24000, 500},
		{"upsample 1:2", 500, 22050, 44100, 1000},
		{"24k to 44.1k", 2400, 24000, 44100, 4410},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]byte, tt.frames*2)
			out := Resample(in, tt.from, tt.to)
			if got := len(out) / 2; got != tt.wantOutFr {
				t.Errorf("output frames = %d, want %d", got, tt.wantOutFr)
			}
		})
	}
}

func TestResampleInterpolatesBetweenSamples(t *testing.T) {
	// Two frames 0 and 1000 upsampled 1:2 should pass through a
	// midpoint near 500.
	in := make([]byte, 4)
	binary.LittleEndian.PutUint16(in[0:], uint16(int16(0)))
	binary.LittleEndian.PutUint16(in[2:], uint16(int16(1000)))

	out := Resample(in, 12000, 24000)
	if len(out) < 4 {
		t.Fatalf("output too short: %d bytes", len(out))
	}
	mid := int16(binary.LittleEndian.Uint16(out[2:]))
	if mid < 400 || mid > 600 {
		t.Errorf("interpolated sample = %d, want near 500", mid)
	}
}

func TestResampleEmptyInput(t *testing.T) {
	if out := Resample(nil, 48000, 24000); len(out) != 0 {
		t.Errorf("resampling empty input yielded %d bytes", len(out))
	}
}
