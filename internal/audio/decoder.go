package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// BlobResolver returns the bytes behind a "blob:" URL.
type BlobResolver interface {
	ResolveBlob(uri string) ([]byte, error)
}

// Decoder fetches audio by URI and decodes it to a Buffer at SampleRate.
// Nothing is cached: every call re-reads and re-decodes.
type Decoder struct {
	http  *http.Client
	blobs BlobResolver
}

// NewDecoder creates a decoder. blobs may be nil if no blob URLs are in use.
func NewDecoder(blobs BlobResolver) *Decoder {
	return &Decoder{
		http:  &http.Client{Timeout: 30 * time.Second},
		blobs: blobs,
	}
}

// Decode fetches uri and decodes it. Read failures wrap ErrFetch,
// unplayable bytes wrap ErrDecode.
func (d *Decoder) Decode(ctx context.Context, uri string) (*Buffer, error) {
	data, err := d.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	buf, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return buf, nil
}

func (d *Decoder) fetch(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "blob:"):
		if d.blobs == nil {
			return nil, fmt.Errorf("%w: %s: no blob resolver", ErrFetch, uri)
		}
		data, err := d.blobs.ResolveBlob(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetch, uri, err)
		}
		return data, nil

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetch, uri, err)
		}
		resp, err := d.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetch, uri, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s: status %d", ErrFetch, uri, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetch, uri, err)
		}
		return data, nil

	default:
		path := strings.TrimPrefix(uri, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetch, uri, err)
		}
		return data, nil
	}
}

// DecodeBytes sniffs the container (WAV or MP3) and decodes it.
func DecodeBytes(data []byte) (*Buffer, error) {
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	case isWAV(data):
		return decodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized container", ErrDecode)
	}
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples converts little-endian s16 bytes to samples. A trailing odd
// byte is dropped.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}
