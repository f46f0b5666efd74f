package graph

import (
	"strings"
	"sync"
	"time"

	"github.com/satindergrewal/vocalbooth/internal/audio"
)

// EndReason says why a handle stopped rendering.
type EndReason int

const (
	EndReasonNone EndReason = iota
	EndReasonEnded
	EndReasonStopped
)

func (r EndReason) String() string {
	switch r {
	case EndReasonEnded:
		return "ended"
	case EndReasonStopped:
		return "stopped"
	default:
		return "none"
	}
}

// voice is one source with its gain stage.
type voice struct {
	track   Track
	buf     *audio.Buffer
	gain    float64 // target, guarded by Handle.mu
	applied float64 // gain reached at the end of the last rendered frame
}

// Handle is the runtime state of one play. It is never restarted: a new
// play always builds a new Handle.
type Handle struct {
	id          uint64
	voices      []*voice
	governing   *voice
	totalFrames int
	startedAt   time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	reason   EndReason
	position int
}

func newHandle(id uint64) *Handle {
	return &Handle{
		id:   id,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// ID identifies the handle within its graph.
func (h *Handle) ID() uint64 { return h.id }

// Done is closed once the handle has stopped rendering, for any reason.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Reason reports why the handle finished; EndReasonNone while rendering.
func (h *Handle) Reason() EndReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Governing returns the track whose end completes the handle. ok is false
// for a handle with no sources.
func (h *Handle) Governing() (track Track, ok bool) {
	if h.governing == nil {
		return 0, false
	}
	return h.governing.track, true
}

// Position is the amount of audio rendered so far.
func (h *Handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.position) * audio.FrameDuration
}

// Duration is the length of the governing source.
func (h *Handle) Duration() time.Duration {
	if h.governing == nil {
		return 0
	}
	return h.governing.buf.Duration()
}

// StartedAt is the wall-clock instant all sources started.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Gain returns the target gain of a track, or false if it has no source.
func (h *Handle) Gain(track Track) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.voices {
		if v.track == track {
			return v.gain, true
		}
	}
	return 0, false
}

func (h *Handle) setGain(track Track, gain float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.voices {
		if v.track == track {
			v.gain = gain
		}
	}
}

// render mixes frame pos of every voice into a fresh int16 frame.
func (h *Handle) render(pos int, acc []float64) []int16 {
	clear(acc)

	h.mu.Lock()
	for _, v := range h.voices {
		start := pos * audio.FrameSamples
		if start >= len(v.buf.Samples) {
			continue
		}
		end := min(start+audio.FrameSamples, len(v.buf.Samples))
		audio.MixGain(acc[:end-start], v.buf.Samples[start:end], v.applied, v.gain)
		v.applied = v.gain
	}
	h.mu.Unlock()

	frame := make([]int16, audio.FrameSamples)
	audio.Clip(acc, frame)
	return frame
}

func (h *Handle) advance(pos int) {
	h.mu.Lock()
	h.position = pos
	h.mu.Unlock()
}

func (h *Handle) halt() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Handle) finish(reason EndReason) {
	h.mu.Lock()
	if h.reason != EndReasonNone {
		h.mu.Unlock()
		return
	}
	h.reason = reason
	h.mu.Unlock()
	close(h.done)
}

func (h *Handle) describe() string {
	names := make([]string, 0, len(h.voices))
	for _, v := range h.voices {
		names = append(names, v.track.String())
	}
	return strings.Join(names, "+")
}
