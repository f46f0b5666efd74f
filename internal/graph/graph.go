// Package graph plays an instrumental and a vocal in lockstep: each present
// track becomes a source with its own gain stage, the stages sum into a shared
// analyser, and the mix leaves as 20ms PCM frames on the output channel.
package graph

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/satindergrewal/vocalbooth/internal/analysis"
	"github.com/satindergrewal/vocalbooth/internal/audio"
)

// Track names one of the two mixer inputs.
type Track int

const (
	Instrumental Track = iota
	Vocal
)

func (t Track) String() string {
	switch t {
	case Instrumental:
		return "instrumental"
	case Vocal:
		return "vocal"
	default:
		return fmt.Sprintf("track(%d)", int(t))
	}
}

// Loader decodes an asset by URI.
type Loader interface {
	Decode(ctx context.Context, uri string) (*audio.Buffer, error)
}

// Request describes one play. An empty URI leaves that track silent.
type Request struct {
	InstrumentalURI    string
	VocalURI           string
	InstrumentalVolume float64
	VocalVolume        float64
}

// Graph owns at most one playing Handle at a time.
type Graph struct {
	loader   Loader
	out      chan<- []int16
	analyser *analysis.Analyser
	frameDur time.Duration

	mu     sync.Mutex
	active *Handle
	nextID uint64
}

// Option configures a Graph.
type Option func(*Graph)

// WithFrameDuration sets the wall-clock interval between rendered frames.
// Each frame still carries audio.FrameDuration of audio.
func WithFrameDuration(d time.Duration) Option {
	return func(g *Graph) {
		if d > 0 {
			g.frameDur = d
		}
	}
}

// New creates a graph that writes mixed frames to out and taps them into
// analyser. analyser may be nil.
func New(loader Loader, out chan<- []int16, analyser *analysis.Analyser, opts ...Option) *Graph {
	g := &Graph{
		loader:   loader,
		out:      out,
		analyser: analyser,
		frameDur: audio.FrameDuration,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Analyser returns the shared analysis node.
func (g *Graph) Analyser() *analysis.Analyser {
	return g.analyser
}

// Play stops any current playback, decodes every requested asset and only
// then starts all sources on the same frame. If any decode fails nothing is
// started and the graph stays stopped.
func (g *Graph) Play(ctx context.Context, req Request) (*Handle, error) {
	g.Stop()

	var instrumental, vocal *audio.Buffer
	var err error
	if req.InstrumentalURI != "" {
		if instrumental, err = g.loader.Decode(ctx, req.InstrumentalURI); err != nil {
			return nil, fmt.Errorf("decode instrumental: %w", err)
		}
	}
	if req.VocalURI != "" {
		if vocal, err = g.loader.Decode(ctx, req.VocalURI); err != nil {
			return nil, fmt.Errorf("decode vocal: %w", err)
		}
	}

	g.mu.Lock()
	g.nextID++
	h := newHandle(g.nextID)
	g.mu.Unlock()

	if instrumental != nil {
		h.voices = append(h.voices, &voice{track: Instrumental, buf: instrumental, gain: audio.ClampGain(req.InstrumentalVolume)})
	}
	if vocal != nil {
		h.voices = append(h.voices, &voice{track: Vocal, buf: vocal, gain: audio.ClampGain(req.VocalVolume)})
	}
	for _, v := range h.voices {
		v.applied = v.gain
	}

	if len(h.voices) == 0 {
		h.finish(EndReasonEnded)
		return h, nil
	}

	h.governing = governingVoice(h.voices)
	h.totalFrames = (h.governing.buf.Frames() + audio.FrameSize - 1) / audio.FrameSize

	if g.analyser != nil {
		g.analyser.Reset()
	}

	g.mu.Lock()
	g.active = h
	g.mu.Unlock()

	h.startedAt = time.Now()
	go g.run(h)

	log.Printf("Playback started: %s (governed by %s, %s)", h.describe(), h.governing.track, h.governing.buf.Duration().Round(time.Millisecond))
	return h, nil
}

// governingVoice picks the longer source; on a tie the vocal governs.
func governingVoice(voices []*voice) *voice {
	var best *voice
	for _, v := range voices {
		switch {
		case best == nil:
			best = v
		case v.buf.Frames() > best.buf.Frames():
			best = v
		case v.buf.Frames() == best.buf.Frames() && v.track == Vocal:
			best = v
		}
	}
	return best
}

// Stop halts the active handle and waits for its render loop to exit.
// Safe to call when nothing is playing.
func (g *Graph) Stop() {
	g.mu.Lock()
	h := g.active
	g.active = nil
	g.mu.Unlock()

	if h == nil {
		return
	}
	h.halt()
	<-h.done
}

// Playing reports whether a handle is currently rendering.
func (g *Graph) Playing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active != nil
}

// Active returns the rendering handle, or nil.
func (g *Graph) Active() *Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// SetGain changes a track's volume on the live gain stage. The source keeps
// its position; the render loop ramps to the new value over one frame.
func (g *Graph) SetGain(track Track, v float64) {
	g.mu.Lock()
	h := g.active
	g.mu.Unlock()
	if h != nil {
		h.setGain(track, audio.ClampGain(v))
	}
}

func (g *Graph) run(h *Handle) {
	ticker := time.NewTicker(g.frameDur)
	defer ticker.Stop()

	acc := make([]float64, audio.FrameSamples)
	for pos := 0; pos < h.totalFrames; pos++ {
		select {
		case <-h.stop:
			g.release(h, EndReasonStopped)
			return
		case <-ticker.C:
		}

		frame := h.render(pos, acc)
		if g.analyser != nil {
			g.analyser.Write(frame, audio.Channels)
		}

		select {
		case g.out <- frame:
		case <-h.stop:
			g.release(h, EndReasonStopped)
			return
		}
		h.advance(pos + 1)
	}

	g.release(h, EndReasonEnded)
	log.Printf("Playback ended: %s", h.describe())
}

func (g *Graph) release(h *Handle, reason EndReason) {
	g.mu.Lock()
	if g.active == h {
		g.active = nil
	}
	g.mu.Unlock()
	h.finish(reason)
}
