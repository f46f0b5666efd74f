// Package device binds the recorder to real capture hardware through malgo.
package device

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/satindergrewal/vocalbooth/internal/recorder"
)

// Microphone opens the default capture device. Each Open allocates its own
// malgo context so a closed stream releases everything it acquired.
type Microphone struct{}

// NewMicrophone creates a malgo-backed microphone.
func NewMicrophone() *Microphone {
	return &Microphone{}
}

type stream struct {
	once   sync.Once
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// Open starts capturing s16le frames in the requested format. A device that
// cannot be initialized or started is reported as a denied permission: the
// caller cannot distinguish a refused prompt from a missing device.
func (m *Microphone) Open(format recorder.Format, onChunk func([]byte)) (recorder.Stream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing audio context: %w", recorder.ErrPermissionDenied, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onChunk(input)
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		logRelease(freeContext(ctx))
		return nil, fmt.Errorf("%w: initializing capture device: %w", recorder.ErrPermissionDenied, err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		logRelease(freeContext(ctx))
		return nil, fmt.Errorf("%w: starting capture device: %w", recorder.ErrPermissionDenied, err)
	}

	return &stream{ctx: ctx, device: dev}, nil
}

// Close stops the device and frees the context. Safe to call more than once.
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		if stopErr := s.device.Stop(); stopErr != nil {
			err = fmt.Errorf("stopping capture device: %w", stopErr)
		}
		s.device.Uninit()
		err = errors.Join(err, freeContext(s.ctx))
	})
	return err
}

// releaser is the teardown surface of a malgo context.
type releaser interface {
	Uninit() error
	Free()
}

// freeContext uninitializes and frees ctx. The memory is freed even when
// Uninit fails.
func freeContext(ctx releaser) error {
	err := ctx.Uninit()
	ctx.Free()
	if err != nil {
		return fmt.Errorf("releasing audio context: %w", err)
	}
	return nil
}

func logRelease(err error) {
	if err != nil {
		log.Printf("Microphone cleanup after failed open: %v", err)
	}
}
