package audio

import (
	"math"
)

// CalculateRMS calculates the root mean square (RMS) of audio samples
// Useful for detecting audio levels and silence
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Level returns the RMS level of a chunk normalized to 0..1 of full scale.
// Only 16-bit data is measured; other depths report 0.
func (f Format) Level(chunk []byte) float64 {
	if f.BitDepth != 16 || len(chunk) < 2 {
		return 0
	}

	samples := make([]int16, len(chunk)/2)
	for i := range samples {
		// Little-endian 16-bit signed integer
		samples[i] = int16(chunk[i*2]) | int16(chunk[i*2+1])<<8
	}

	return CalculateRMS(samples) / 32768.0
}
