// Package stream is the studio's output device: mixed PCM frames from the
// playback graphs fan out to HTTP and WebRTC listeners.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/vocalbooth/internal/audio"
)

// Broadcaster fans out PCM frames from one source to N listeners. With
// silence fill enabled it also keeps the stream continuous between plays.
type Broadcaster struct {
	silenceAfter time.Duration

	mu        sync.RWMutex
	listeners map[*Listener]struct{}

	frames  atomic.Uint64
	silent  atomic.Uint64
	dropped atomic.Uint64
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}
	once sync.Once
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Stats counts frames since the broadcaster started.
type Stats struct {
	Frames  uint64 `json:"frames"`
	Silent  uint64 `json:"silent"`
	Dropped uint64 `json:"dropped"`
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithSilenceFill emits a silent frame every frame period once no source
// frame has arrived for gap. Listeners then never starve while the studio
// is idle.
func WithSilenceFill(gap time.Duration) Option {
	return func(b *Broadcaster) { b.silenceAfter = gap }
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{listeners: make(map[*Listener]struct{})}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Calling it twice
// is harmless.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Stats returns the frame counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Frames:  b.frames.Load(),
		Silent:  b.silent.Load(),
		Dropped: b.dropped.Load(),
	}
}

// Run reads frames from source and fans out to all listeners until ctx is
// done or source is closed. Slow listeners get frames dropped rather than
// blocking the graphs.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	var tick <-chan time.Time
	if b.silenceAfter > 0 {
		ticker := time.NewTicker(audio.FrameDuration)
		defer ticker.Stop()
		tick = ticker.C
	}
	silence := make([]int16, audio.FrameSamples)
	lastFrame := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			lastFrame = time.Now()
			b.frames.Add(1)
			b.publish(frame)
		case now := <-tick:
			if now.Sub(lastFrame) >= b.silenceAfter {
				b.silent.Add(1)
				b.publish(silence)
			}
		}
	}
}

func (b *Broadcaster) publish(frame []int16) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
			b.dropped.Add(1)
		}
	}
}
