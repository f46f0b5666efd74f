package audio

import "math"

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// ClampGain limits a volume to the [0,1] range. NaN is treated as silence.
func ClampGain(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MixGain adds src into acc, scaling each sample frame by a gain that moves
// from `from` to `to` along a smoothstep curve. A change of gain between two
// frames therefore never produces a step discontinuity.
// acc and src are interleaved with the same channel count.
func MixGain(acc []float64, src []int16, from, to float64) {
	frames := len(src) / Channels
	if frames == 0 {
		return
	}
	for f := 0; f < frames; f++ {
		g := to
		if from != to {
			g = from + (to-from)*Smoothstep(float64(f+1)/float64(frames))
		}
		for c := 0; c < Channels; c++ {
			i := f*Channels + c
			if i >= len(acc) {
				return
			}
			acc[i] += float64(src[i]) * g
		}
	}
}

// Clip converts a mixed accumulator to int16, clipping to the int16 range.
func Clip(acc []float64, dst []int16) {
	for i := range dst {
		v := acc[i]
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		dst[i] = int16(v)
	}
}
