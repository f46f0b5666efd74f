package visualizer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type constSource struct {
	level byte
	reads atomic.Int64
}

func (s *constSource) FrequencyBinCount() int { return 4 }

func (s *constSource) ByteFrequencyData(dst []byte) {
	s.reads.Add(1)
	for i := range dst {
		dst[i] = s.level
	}
}

// recordingCanvas fails the test if a draw follows Clear.
type recordingCanvas struct {
	mu      sync.Mutex
	draws   int
	cleared bool
	late    bool
}

func (c *recordingCanvas) Size() (int, int) { return 100, 50 }

func (c *recordingCanvas) Clear() {
	c.mu.Lock()
	c.cleared = true
	c.mu.Unlock()
}

func (c *recordingCanvas) Draw([]Bar) {
	c.mu.Lock()
	if c.cleared {
		c.late = true
	}
	c.draws++
	c.mu.Unlock()
}

func TestBarsScaleToHeight(t *testing.T) {
	bars := Bars([]byte{0, 255, 51, 128}, 100, 50)
	if len(bars) != 4 {
		t.Fatalf("got %d bars, want 4", len(bars))
	}
	want := []Bar{
		{X: 0, Width: 25, Height: 0, Level: 0},
		{X: 25, Width: 25, Height: 50, Level: 255},
		{X: 50, Width: 25, Height: 10, Level: 51},
		{X: 75, Width: 25, Height: 25, Level: 128},
	}
	for i := range want {
		if bars[i] != want[i] {
			t.Errorf("bar %d = %+v, want %+v", i, bars[i], want[i])
		}
	}
}

func TestBarsDegenerate(t *testing.T) {
	if Bars(nil, 100, 100) != nil {
		t.Error("no data should draw nothing")
	}
	if Bars([]byte{1}, 0, 100) != nil {
		t.Error("zero width should draw nothing")
	}
	// More bins than pixels: one pixel per bar, clipped at the edge.
	bars := Bars(make([]byte, 10), 4, 10)
	if len(bars) != 4 {
		t.Errorf("got %d bars, want 4", len(bars))
	}
}

func TestBarsIsPure(t *testing.T) {
	data := []byte{10, 20, 30}
	a := Bars(data, 30, 30)
	b := Bars(data, 30, 30)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same frame produced different bars")
		}
	}
}

func TestStartDrawsAndStopClears(t *testing.T) {
	src := &constSource{level: 255}
	canvas := NewSnapshotCanvas(40, 20)
	v := New(time.Millisecond)

	v.Start(src, canvas, nil)
	if !v.Running() {
		t.Fatal("Running() = false after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for canvas.Snapshot().Frame < 3 {
		if time.Now().After(deadline) {
			t.Fatal("visualizer drew no frames")
		}
		time.Sleep(time.Millisecond)
	}
	snap := canvas.Snapshot()
	if len(snap.Bars) != 4 || snap.Bars[0].Height != 20 {
		t.Errorf("snapshot bars = %+v", snap.Bars)
	}

	v.Stop()
	if v.Running() {
		t.Error("Running() = true after Stop")
	}
	if n := len(canvas.Snapshot().Bars); n != 0 {
		t.Errorf("canvas holds %d bars after Stop, want 0", n)
	}

	reads := src.reads.Load()
	time.Sleep(20 * time.Millisecond)
	if src.reads.Load() != reads {
		t.Error("analyser read after Stop")
	}
}

func TestNoFrameAfterStop(t *testing.T) {
	for i := 0; i < 50; i++ {
		canvas := &recordingCanvas{}
		v := New(time.Microsecond)
		v.Start(&constSource{level: 1}, canvas, nil)
		time.Sleep(time.Duration(i%5) * 100 * time.Microsecond)
		v.Stop()
		time.Sleep(time.Millisecond)

		canvas.mu.Lock()
		late := canvas.late
		canvas.mu.Unlock()
		if late {
			t.Fatalf("iteration %d: frame drawn after Stop cleared the canvas", i)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	v := New(0)
	v.Stop()
	v.Stop()
	if v.Running() {
		t.Error("Running() = true on fresh visualizer")
	}
}

func TestRestartReplacesLoop(t *testing.T) {
	first := &recordingCanvas{}
	second := NewSnapshotCanvas(8, 8)
	v := New(time.Millisecond)

	v.Start(&constSource{level: 1}, first, nil)
	v.Start(&constSource{level: 2}, second, nil)
	defer v.Stop()

	first.mu.Lock()
	cleared := first.cleared
	first.mu.Unlock()
	if !cleared {
		t.Error("restarting should clear the previous canvas")
	}
}

func TestSourceEndStopsLoop(t *testing.T) {
	src := &constSource{level: 255}
	canvas := NewSnapshotCanvas(40, 20)
	ended := make(chan struct{})
	v := New(time.Millisecond)

	v.Start(src, canvas, ended)
	deadline := time.Now().Add(2 * time.Second)
	for canvas.Snapshot().Frame == 0 {
		if time.Now().After(deadline) {
			t.Fatal("visualizer drew no frames")
		}
		time.Sleep(time.Millisecond)
	}

	close(ended)
	for v.Running() {
		if time.Now().After(deadline) {
			t.Fatal("loop kept running after its source ended")
		}
		time.Sleep(time.Millisecond)
	}
	frame := canvas.Snapshot().Frame
	time.Sleep(20 * time.Millisecond)
	snap := canvas.Snapshot()
	if snap.Frame != frame || len(snap.Bars) != 0 {
		t.Errorf("after source end: frame %d -> %d, %d bars", frame, snap.Frame, len(snap.Bars))
	}

	v.Stop()
	v.Start(src, canvas, nil)
	if !v.Running() {
		t.Error("visualizer did not restart after its source ended")
	}
	v.Stop()
}
