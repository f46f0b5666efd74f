package studio

import (
	"fmt"
	"log"
	"time"

	"github.com/satindergrewal/vocalbooth/internal/analysis"
	"github.com/satindergrewal/vocalbooth/internal/graph"
	"github.com/satindergrewal/vocalbooth/internal/recorder"
	"github.com/satindergrewal/vocalbooth/internal/visualizer"
)

// AudioSessionContext holds every live audio resource of a project: the
// playback graph and its analyser, the monitor graph used while recording,
// the microphone session and the visualizer loop. It is created on the
// first gesture that needs audio and torn down by NewProject or Close.
type AudioSessionContext struct {
	analyser  *analysis.Analyser
	playback  *graph.Graph
	monitor   *graph.Graph
	viz       *visualizer.Visualizer
	recording *recorder.Session
}

func newAudioSessionContext(loader graph.Loader, out chan<- []int16, fftSize int, smoothing float64, vizInterval, frameDur time.Duration) (*AudioSessionContext, error) {
	an, err := analysis.New(fftSize, smoothing)
	if err != nil {
		return nil, fmt.Errorf("analyser: %w", err)
	}
	var opts []graph.Option
	if frameDur > 0 {
		opts = append(opts, graph.WithFrameDuration(frameDur))
	}
	log.Printf("Audio session opened (fft %d)", fftSize)
	return &AudioSessionContext{
		analyser: an,
		playback: graph.New(loader, out, an, opts...),
		// The monitor is not visualized, so it has no analyser.
		monitor: graph.New(loader, out, nil, opts...),
		viz:     visualizer.New(vizInterval),
	}, nil
}

// close stops everything. A take still in progress is discarded.
func (a *AudioSessionContext) close() {
	a.viz.Stop()
	a.playback.Stop()
	a.monitor.Stop()
	if a.recording != nil {
		if _, err := a.recording.Stop(); err != nil {
			log.Printf("Discarding take failed: %v", err)
		}
		a.recording = nil
	}
	log.Printf("Audio session closed")
}
