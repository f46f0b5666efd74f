// Package analysis implements the shared analysis node that sits between the
// per-track gain stages and the output. It keeps the most recent mixed
// samples and turns them into per-bin byte magnitudes for visualization.
package analysis

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-vecmath"
)

const (
	DefaultFFTSize   = 256
	DefaultSmoothing = 0.8
	MinDecibels      = -100.0
	MaxDecibels      = -30.0
)

// Analyser buffers the last FFTSize mono samples written to it. Reads
// compute a Blackman-windowed FFT, smooth magnitudes over time and map them
// to bytes between MinDecibels and MaxDecibels.
type Analyser struct {
	mu sync.Mutex

	fftSize   int
	smoothing float64

	ring  []float64
	write int

	window   []float64
	plan     *algofft.Plan[complex128]
	frame    []float64
	in       []complex128
	out      []complex128
	re, im   []float64
	mag      []float64
	smoothed []float64
}

// New creates an analyser. fftSize must be a power of two between 32 and
// 32768; smoothing is clamped to [0,1).
func New(fftSize int, smoothing float64) (*Analyser, error) {
	if fftSize < 32 || fftSize > 32768 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("analyser fft size must be a power of two in [32, 32768]: %d", fftSize)
	}
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("analyser init fft plan: %w", err)
	}
	if smoothing < 0 {
		smoothing = 0
	}
	if smoothing >= 1 {
		smoothing = 0.99
	}

	bins := fftSize / 2
	return &Analyser{
		fftSize:   fftSize,
		smoothing: smoothing,
		ring:      make([]float64, fftSize),
		window:    window.Generate(window.TypeBlackman, fftSize, window.WithPeriodic()),
		plan:      plan,
		frame:     make([]float64, fftSize),
		in:        make([]complex128, fftSize),
		out:       make([]complex128, fftSize),
		re:        make([]float64, bins),
		im:        make([]float64, bins),
		mag:       make([]float64, bins),
		smoothed:  make([]float64, bins),
	}, nil
}

// FrequencyBinCount is the number of bins returned by ByteFrequencyData.
func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

// Write pushes an interleaved frame of PCM into the analyser, downmixed to mono.
func (a *Analyser) Write(samples []int16, channels int) {
	if channels < 1 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+channels <= len(samples); i += channels {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i+c])
		}
		a.ring[a.write] = sum / float64(channels) / 32768
		a.write++
		if a.write >= a.fftSize {
			a.write = 0
		}
	}
}

// ByteFrequencyData fills dst with one magnitude byte per bin, up to
// FrequencyBinCount entries.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	read := a.write
	for i := 0; i < a.fftSize; i++ {
		a.frame[i] = a.ring[read]
		read++
		if read >= a.fftSize {
			read = 0
		}
	}
	vecmath.MulBlockInPlace(a.frame, a.window)
	for i, s := range a.frame {
		a.in[i] = complex(s, 0)
	}

	if err := a.plan.Forward(a.out, a.in); err != nil {
		return
	}

	bins := len(a.mag)
	for k := 0; k < bins; k++ {
		a.re[k] = real(a.out[k])
		a.im[k] = imag(a.out[k])
	}
	vecmath.Magnitude(a.mag, a.re, a.im)

	scale := 1 / float64(a.fftSize)
	for k := 0; k < bins; k++ {
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*a.mag[k]*scale
	}

	n := min(len(dst), bins)
	for k := 0; k < n; k++ {
		dst[k] = toByte(a.smoothed[k])
	}
}

// Reset clears buffered samples and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.write = 0
}

func toByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - MinDecibels) / (MaxDecibels - MinDecibels)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
