package studio

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrRevoked is returned when resolving a URL that was revoked or never issued.
var ErrRevoked = errors.New("blob URL revoked")

const blobScheme = "blob:"

type blob struct {
	data     []byte
	mimeType string
}

// URLRegistry issues "blob:<uuid>" URLs for in-memory captures. A URL stays
// resolvable until revoked.
type URLRegistry struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewURLRegistry creates an empty registry.
func NewURLRegistry() *URLRegistry {
	return &URLRegistry{blobs: make(map[string]blob)}
}

// Create registers data and returns its URL.
func (r *URLRegistry) Create(data []byte, mimeType string) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.blobs[id] = blob{data: data, mimeType: mimeType}
	r.mu.Unlock()
	return blobScheme + id
}

// Replace revokes old (if any) and registers data under a fresh URL.
func (r *URLRegistry) Replace(old string, data []byte, mimeType string) string {
	r.Revoke(old)
	return r.Create(data, mimeType)
}

// Revoke releases url. Unknown or empty URLs are ignored.
func (r *URLRegistry) Revoke(url string) {
	id, ok := strings.CutPrefix(url, blobScheme)
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.blobs, id)
	r.mu.Unlock()
}

// ResolveBlob returns the bytes behind url.
func (r *URLRegistry) ResolveBlob(url string) ([]byte, error) {
	id, ok := strings.CutPrefix(url, blobScheme)
	if !ok {
		return nil, ErrRevoked
	}
	data, _, ok := r.Lookup(id)
	if !ok {
		return nil, ErrRevoked
	}
	return data, nil
}

// Lookup finds a blob by the id part of its URL.
func (r *URLRegistry) Lookup(id string) (data []byte, mimeType string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[id]
	return b.data, b.mimeType, ok
}

// Len is the number of live URLs.
func (r *URLRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
