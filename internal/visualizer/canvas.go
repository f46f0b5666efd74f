package visualizer

import "sync"

// Snapshot is the most recent frame held by a SnapshotCanvas.
type Snapshot struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Frame  uint64 `json:"frame"`
	Bars   []Bar  `json:"bars"`
}

// SnapshotCanvas keeps the last drawn frame in memory so it can be polled,
// for example by the spectrum endpoint.
type SnapshotCanvas struct {
	width, height int

	mu    sync.RWMutex
	frame uint64
	bars  []Bar
}

// NewSnapshotCanvas creates a canvas of the given pixel size.
func NewSnapshotCanvas(width, height int) *SnapshotCanvas {
	return &SnapshotCanvas{width: width, height: height}
}

func (c *SnapshotCanvas) Size() (int, int) {
	return c.width, c.height
}

func (c *SnapshotCanvas) Clear() {
	c.mu.Lock()
	c.bars = nil
	c.mu.Unlock()
}

func (c *SnapshotCanvas) Draw(bars []Bar) {
	c.mu.Lock()
	c.bars = bars
	c.frame++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current frame.
func (c *SnapshotCanvas) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars := make([]Bar, len(c.bars))
	copy(bars, c.bars)
	return Snapshot{Width: c.width, Height: c.height, Frame: c.frame, Bars: bars}
}
