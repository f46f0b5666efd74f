// Package session serializes the studio project to a text key-value store.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/satindergrewal/vocalbooth/internal/audio"
)

// Key is the storage key of the persisted project.
const Key = "studioProject"

const (
	DefaultInstrumentalVolume = 0.8
	DefaultVocalVolume        = 1.0
)

// ErrStorageCorrupt marks a persisted record that cannot be decoded.
var ErrStorageCorrupt = errors.New("stored session is corrupt")

// ErrNotFound is returned by a Backend for a missing key.
var ErrNotFound = errors.New("key not found")

// State is the whole project snapshot. RecordedAudioBase64 is nil when
// nothing has been recorded; otherwise it holds a base64 data URL.
type State struct {
	SelectedBeatURL     string  `json:"selectedBeatUrl"`
	InstrumentalVolume  float64 `json:"instrumentalVolume"`
	VocalVolume         float64 `json:"vocalVolume"`
	RecordedAudioBase64 *string `json:"recordedAudioBase64"`
	LyricTopic          string  `json:"lyricTopic"`
	GeneratedLyrics     string  `json:"generatedLyrics"`
}

// Defaults returns the state of an untouched project.
func Defaults() State {
	return State{
		InstrumentalVolume: DefaultInstrumentalVolume,
		VocalVolume:        DefaultVocalVolume,
	}
}

// Encode renders the state as JSON.
func Encode(s State) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

// Decode parses a persisted record. Volumes outside [0,1] are clamped;
// anything unparseable wraps ErrStorageCorrupt.
func Decode(raw string) (State, error) {
	s := Defaults()
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Defaults(), fmt.Errorf("%w: %w", ErrStorageCorrupt, err)
	}
	s.InstrumentalVolume = audio.ClampGain(s.InstrumentalVolume)
	s.VocalVolume = audio.ClampGain(s.VocalVolume)
	if s.RecordedAudioBase64 != nil {
		if _, _, err := DecodeAudio(*s.RecordedAudioBase64); err != nil {
			return Defaults(), err
		}
	}
	return s, nil
}

// EncodeAudio turns capture bytes into a printable data URL.
func EncodeAudio(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeAudio reverses EncodeAudio. A bare base64 string without the data
// URL prefix is accepted and typed as WAV.
func DecodeAudio(encoded string) (data []byte, mimeType string, err error) {
	mimeType = "audio/wav"
	payload := encoded
	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("%w: data URL without payload", ErrStorageCorrupt)
		}
		mt, isBase64 := strings.CutSuffix(header, ";base64")
		if !isBase64 {
			return nil, "", fmt.Errorf("%w: data URL is not base64", ErrStorageCorrupt)
		}
		if mt != "" {
			mimeType = mt
		}
		payload = body
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: recorded audio: %w", ErrStorageCorrupt, err)
	}
	return data, mimeType, nil
}

// Backend is a durable text key-value store.
type Backend interface {
	Get(key string) (string, error)
	Put(key, value string) error
	Delete(key string) error
}

// Store saves and loads the single project record.
type Store struct {
	backend Backend
}

// NewStore creates a store on top of backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Save overwrites the persisted record with s.
func (st *Store) Save(s State) error {
	raw, err := Encode(s)
	if err != nil {
		return err
	}
	if err := st.backend.Put(Key, raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the persisted record. A missing, unreadable or corrupt record
// yields Defaults and false; the cause is logged, never returned.
func (st *Store) Load() (State, bool) {
	raw, err := st.backend.Get(Key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("Session load failed: %v", err)
		}
		return Defaults(), false
	}
	s, err := Decode(raw)
	if err != nil {
		log.Printf("Session record ignored: %v", err)
		return Defaults(), false
	}
	return s, true
}

// Clear deletes the persisted record.
func (st *Store) Clear() error {
	if err := st.backend.Delete(Key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
