// Package recorder captures microphone input into a single audio capture.
package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/satindergrewal/vocalbooth/internal/audio"
)

var (
	// ErrPermissionDenied means the microphone could not be acquired.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrAlreadyRecording is returned by Start on an active session.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by Stop when nothing is being captured.
	ErrNotRecording = errors.New("not recording")
)

// MimeWAV is the encoding of every capture produced by a Session.
const MimeWAV = "audio/wav"

// Format describes the PCM layout a microphone delivers: signed 16-bit
// little-endian, interleaved.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is mono at the engine sample rate.
var DefaultFormat = Format{SampleRate: audio.SampleRate, Channels: 1}

// Microphone opens a live capture stream. onChunk receives raw s16le bytes
// in arrival order; the slice may be reused by the device after the call.
// Implementations return an error wrapping ErrPermissionDenied when access
// is refused.
type Microphone interface {
	Open(format Format, onChunk func(chunk []byte)) (Stream, error)
}

// Stream is an open capture device.
type Stream interface {
	Close() error
}

// Capture is a finalized recording.
type Capture struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Session records one take at a time from a Microphone.
type Session struct {
	mic    Microphone
	format Format

	mu        sync.Mutex
	stream    Stream
	chunks    [][]byte
	recording bool
	started   time.Time
}

// NewSession creates a recording session bound to mic.
func NewSession(mic Microphone, format Format) *Session {
	return &Session{mic: mic, format: format}
}

// Start opens the microphone and begins buffering chunks.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.chunks = nil
	s.recording = true
	s.mu.Unlock()

	stream, err := s.mic.Open(s.format, s.onChunk)
	if err != nil {
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	s.mu.Lock()
	s.stream = stream
	s.started = time.Now()
	s.mu.Unlock()

	log.Printf("Recording started (%d Hz, %d ch)", s.format.SampleRate, s.format.Channels)
	return nil
}

// Recording reports whether a take is in progress.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Stop closes the device and returns the take. The device is released even
// when encoding fails.
func (s *Session) Stop() (*Capture, error) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream := s.stream
	s.stream = nil
	s.recording = false
	started := s.started
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			log.Printf("Microphone close failed: %v", err)
		}
	}

	// The device is closed, so no further chunks arrive.
	s.mu.Lock()
	chunks := s.chunks
	s.chunks = nil
	s.mu.Unlock()

	pcm := bytes.Join(chunks, nil)
	data, err := audio.EncodeWAV(audio.BytesToSamples(pcm), s.format.SampleRate, s.format.Channels)
	if err != nil {
		return nil, fmt.Errorf("finalize capture: %w", err)
	}

	log.Printf("Recording stopped after %s (%d bytes)", time.Since(started).Round(time.Millisecond), len(pcm))
	frames := len(pcm) / 2 / s.format.Channels
	dur := time.Duration(frames) * time.Second / time.Duration(s.format.SampleRate)
	return &Capture{Data: data, MimeType: MimeWAV, Duration: dur}, nil
}

func (s *Session) onChunk(chunk []byte) {
	c := make([]byte, len(chunk))
	copy(c, chunk)

	s.mu.Lock()
	if s.recording {
		s.chunks = append(s.chunks, c)
	}
	s.mu.Unlock()
}
