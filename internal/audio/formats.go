package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dh1tw/gosamplerate"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const wavFormatPCM = 1

func decodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file", ErrDecode)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: wav: %w", ErrDecode, err)
	}

	format := dec.Format()
	bitDepth := int(dec.SampleBitDepth())
	if format == nil || format.NumChannels < 1 || format.SampleRate < 1 || bitDepth == 0 {
		return nil, fmt.Errorf("%w: wav: missing format chunk", ErrDecode)
	}

	bytesPerSample := (bitDepth-1)/8 + 1
	nsamples := int(dec.PCMLen()) / bytesPerSample
	if nsamples < format.NumChannels {
		return nil, fmt.Errorf("%w: wav: no samples", ErrDecode)
	}

	buf := &goaudio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	n, err := dec.PCMBuffer(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: wav: %w", ErrDecode, err)
	}

	factor := float32(math.Pow(2, float64(bitDepth-1)))
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32(buf.Data[i]) / factor
	}

	return normalize(samples, format.NumChannels, format.SampleRate)
}

func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %w", ErrDecode, err)
	}

	// go-mp3 always yields 16-bit little-endian stereo.
	pcm, err := io.ReadAll(dec)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: mp3: %w", ErrDecode, err)
	}
	raw := BytesToSamples(pcm)
	if len(raw) < Channels {
		return nil, fmt.Errorf("%w: mp3: no samples", ErrDecode)
	}

	if dec.SampleRate() == SampleRate {
		return &Buffer{Samples: raw[:len(raw)-len(raw)%Channels]}, nil
	}

	samples := make([]float32, len(raw))
	for i, s := range raw {
		samples[i] = float32(s) / 32768
	}
	return normalize(samples, Channels, dec.SampleRate())
}

// normalize converts interleaved float samples in [-1,1] with any channel
// count and rate into a stereo Buffer at SampleRate.
func normalize(samples []float32, channels, rate int) (*Buffer, error) {
	stereo := toStereo(samples, channels)

	if rate != SampleRate {
		out, err := gosamplerate.Simple(stereo, float64(SampleRate)/float64(rate), Channels, gosamplerate.SRC_SINC_MEDIUM_QUALITY)
		if err != nil {
			return nil, fmt.Errorf("%w: resample %d Hz: %w", ErrDecode, rate, err)
		}
		stereo = out
	}

	frames := len(stereo) / Channels
	if frames == 0 {
		return nil, fmt.Errorf("%w: no samples after resampling", ErrDecode)
	}
	out := make([]int16, frames*Channels)
	for i := range out {
		v := float64(stereo[i]) * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return &Buffer{Samples: out}, nil
}

// toStereo duplicates mono input and keeps the first two channels of
// anything wider.
func toStereo(samples []float32, channels int) []float32 {
	if channels == Channels {
		return samples[:len(samples)-len(samples)%Channels]
	}
	frames := len(samples) / channels
	out := make([]float32, frames*Channels)
	for f := 0; f < frames; f++ {
		l := samples[f*channels]
		r := l
		if channels > 1 {
			r = samples[f*channels+1]
		}
		out[f*Channels] = l
		out[f*Channels+1] = r
	}
	return out
}

// EncodeWAV wraps s16 PCM in a WAV container.
func EncodeWAV(pcm []int16, sampleRate, channels int) ([]byte, error) {
	var ws writeSeeker
	enc := wav.NewEncoder(&ws, sampleRate, BitDepth, channels, wavFormatPCM)

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: BitDepth,
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav finalize: %w", err)
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek: negative position %d", abs)
	}
	w.pos = int(abs)
	return abs, nil
}
