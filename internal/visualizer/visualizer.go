// Package visualizer draws frequency bars from the analysis node on a fixed
// frame cadence while playback runs.
package visualizer

import (
	"sync"
	"time"
)

// DefaultInterval is roughly one display refresh at 60 Hz.
const DefaultInterval = time.Second / 60

// FrequencySource is the analysis node read on every frame.
type FrequencySource interface {
	FrequencyBinCount() int
	ByteFrequencyData(dst []byte)
}

// Canvas is the drawing target.
type Canvas interface {
	Size() (width, height int)
	Clear()
	Draw(bars []Bar)
}

// Bar is one frequency bin drawn as a rectangle rising from the bottom edge.
type Bar struct {
	X      int  `json:"x"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
	Level  byte `json:"level"`
}

// Bars lays out one bar per bin across width, each scaled to height by its
// magnitude. It depends only on the given frame.
func Bars(data []byte, width, height int) []Bar {
	if len(data) == 0 || width <= 0 || height <= 0 {
		return nil
	}
	barWidth := max(width/len(data), 1)
	bars := make([]Bar, 0, len(data))
	for i, v := range data {
		x := i * barWidth
		if x >= width {
			break
		}
		bars = append(bars, Bar{
			X:      x,
			Width:  barWidth,
			Height: int(v) * height / 255,
			Level:  v,
		})
	}
	return bars
}

// Visualizer runs the frame loop. The zero value is not usable; call New.
type Visualizer struct {
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	canvas  Canvas
	wg      sync.WaitGroup
}

// New creates a visualizer ticking at interval (DefaultInterval if <= 0).
func New(interval time.Duration) *Visualizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Visualizer{interval: interval}
}

// Start begins drawing src onto canvas, replacing any running loop. When
// until is closed the loop stops and clears the canvas as if Stop were
// called; a nil until runs until Stop.
func (v *Visualizer) Start(src FrequencySource, canvas Canvas, until <-chan struct{}) {
	v.Stop()

	v.mu.Lock()
	v.running = true
	v.stop = make(chan struct{})
	v.canvas = canvas
	stop := v.stop
	v.wg.Add(1)
	v.mu.Unlock()

	go v.loop(src, canvas, stop, until)
}

// Running reports whether the frame loop is active.
func (v *Visualizer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// Stop cancels the loop and clears the canvas. No frame is drawn after Stop
// returns. Safe to call when not running.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	v.running = false
	close(v.stop)
	v.canvas.Clear()
	v.mu.Unlock()

	v.wg.Wait()
}

func (v *Visualizer) loop(src FrequencySource, canvas Canvas, stop, until <-chan struct{}) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	data := make([]byte, src.FrequencyBinCount())
	for {
		select {
		case <-stop:
			return
		case <-until:
			v.mu.Lock()
			v.expireLocked(stop)
			v.mu.Unlock()
			return
		case <-ticker.C:
		}

		v.mu.Lock()
		select {
		case <-stop:
			// Stop won the lock; the canvas is already cleared.
			v.mu.Unlock()
			return
		case <-until:
			v.expireLocked(stop)
			v.mu.Unlock()
			return
		default:
		}
		src.ByteFrequencyData(data)
		w, h := canvas.Size()
		canvas.Draw(Bars(data, w, h))
		v.mu.Unlock()
	}
}

// expireLocked ends the loop owning stop after its source finished.
func (v *Visualizer) expireLocked(stop <-chan struct{}) {
	if !v.running || v.stop != stop {
		return
	}
	v.running = false
	close(v.stop)
	v.canvas.Clear()
}
