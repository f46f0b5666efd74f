package audio

import "errors"

var (
	// ErrFetch means the asset bytes could not be read from their source.
	ErrFetch = errors.New("audio fetch failed")
	// ErrDecode means the bytes were read but are not playable audio.
	ErrDecode = errors.New("audio decode failed")
)
