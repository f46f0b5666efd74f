// Package catalog lists the instrumentals a project can record over.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Track identifies a loadable instrumental.
type Track struct {
	Name      string `yaml:"name" json:"name"`
	SourceURI string `yaml:"sourceUri" json:"sourceUri"`
}

// Catalog is the fixed ordered list of instrumentals, read-only after Load.
type Catalog struct {
	tracks []Track
}

var defaultTracks = []Track{
	{Name: "Trap Beat", SourceURI: "beats/trap-beat.mp3"},
	{Name: "Boom Bap", SourceURI: "beats/boom-bap.mp3"},
	{Name: "Lofi Chill", SourceURI: "beats/lofi-chill.mp3"},
	{Name: "Drill", SourceURI: "beats/drill.mp3"},
	{Name: "R&B Slow Jam", SourceURI: "beats/rnb-slow-jam.mp3"},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	tracks := make([]Track, len(defaultTracks))
	copy(tracks, defaultTracks)
	return &Catalog{tracks: tracks}
}

type file struct {
	Tracks []Track `yaml:"tracks"`
}

// Load reads a catalog from a YAML file. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML of the form:
//
//	tracks:
//	  - name: Trap Beat
//	    sourceUri: beats/trap-beat.mp3
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Tracks) == 0 {
		return nil, errors.New("catalog has no tracks")
	}
	seen := make(map[string]bool, len(f.Tracks))
	for i, t := range f.Tracks {
		t.Name = strings.TrimSpace(t.Name)
		t.SourceURI = strings.TrimSpace(t.SourceURI)
		if t.Name == "" || t.SourceURI == "" {
			return nil, fmt.Errorf("catalog track %d: name and sourceUri are required", i)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("catalog track %q listed twice", t.Name)
		}
		seen[t.Name] = true
		f.Tracks[i] = t
	}
	return &Catalog{tracks: f.Tracks}, nil
}

// Tracks returns the catalog in order.
func (c *Catalog) Tracks() []Track {
	out := make([]Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Find looks a track up by name.
func (c *Catalog) Find(name string) (Track, bool) {
	for _, t := range c.tracks {
		if t.Name == name {
			return t, true
		}
	}
	return Track{}, false
}

// NameOf returns the name of the track with the given source, if any.
func (c *Catalog) NameOf(uri string) (string, bool) {
	for _, t := range c.tracks {
		if t.SourceURI == uri {
			return t.Name, true
		}
	}
	return "", false
}

// Resolve accepts either a track name or a source URI and returns the URI.
// Unknown values are passed through so ad-hoc files and URLs still load.
func (c *Catalog) Resolve(ref string) string {
	if t, ok := c.Find(ref); ok {
		return t.SourceURI
	}
	return ref
}
