package audio

import (
	"encoding/binary"
	"math"
)

// ResampleInt16 linearly interpolates mono samples from one rate to
// another. Good enough for speech headed to a transcription model; this
// is not a mastering-grade resampler.
func ResampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(toRate) / float64(fromRate)
	out := make([]int16, int(math.Ceil(float64(len(samples))*ratio)))

	for i := range out {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		if srcIdx >= len(samples) {
			break
		}
		if srcIdx+1 >= len(samples) {
			out[i] = samples[srcIdx]
			continue
		}
		frac := srcPos - float64(srcIdx)
		a, b := float64(samples[srcIdx]), float64(samples[srcIdx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}
