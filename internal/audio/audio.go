package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is a decoded asset: interleaved stereo int16 PCM at SampleRate.
// A Buffer belongs to the graph that decoded it and is never shared between plays.
type Buffer struct {
	Samples []int16
}

// Frames returns the number of sample frames (one sample per channel).
func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.Samples) / Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / SampleRate
}
