package audio

import "encoding/binary"

// Resample converts 16-bit signed LE mono PCM from one sample rate to
// another using linear interpolation. The device runs a single fixed
// output rate, so items arriving at other rates pass through here
// before playback.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}

	frames := len(pcm) / 2
	if frames == 0 {
		return nil
	}

	outFrames := int(int64(frames) * int64(to) / int64(from))
	if outFrames == 0 {
		outFrames = 1
	}

	out := make([]byte, outFrames*2)
	ratio := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		src := float64(i) * ratio
		i0 := int(src)
		if i0 >= frames-1 {
			i0 = frames - 1
		}
		i1 := i0 + 1
		if i1 >= frames {
			i1 = frames - 1
		}
		frac := src - float64(i0)

		s0 := int16(binary.LittleEndian.Uint16(pcm[i0*2:]))
		s1 := int16(binary.LittleEndian.Uint16(pcm[i1*2:]))
		sample := float64(s0)*(1-frac) + float64(s1)*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample)))
	}
	return out
}
