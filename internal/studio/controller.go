// Package studio is the session state machine: it owns the selected
// instrumental, the vocal take and the mix parameters, and drives playback,
// recording, visualization and persistence from user controls.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/satindergrewal/vocalbooth/internal/analysis"
	"github.com/satindergrewal/vocalbooth/internal/audio"
	"github.com/satindergrewal/vocalbooth/internal/catalog"
	"github.com/satindergrewal/vocalbooth/internal/graph"
	"github.com/satindergrewal/vocalbooth/internal/ollama"
	"github.com/satindergrewal/vocalbooth/internal/recorder"
	"github.com/satindergrewal/vocalbooth/internal/session"
	"github.com/satindergrewal/vocalbooth/internal/visualizer"
)

// State is the controller's session state.
type State int

const (
	Idle State = iota
	Recording
	Playing
	RecordingAndMonitoring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	case RecordingAndMonitoring:
		return "recording_monitoring"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recording reports whether the microphone is capturing in this state.
func (s State) Recording() bool {
	return s == Recording || s == RecordingAndMonitoring
}

var (
	ErrBusy                 = errors.New("stop playback or recording first")
	ErrNothingToPlay        = errors.New("select a beat or record a take first")
	ErrConfirmationRequired = errors.New("a new project discards the current one and must be confirmed")
)

// Notices shown to the user after a recovered failure.
const (
	NoticeMicDenied      = "Microphone access was denied."
	NoticeLoadFailed     = "Couldn't load the audio for playback."
	NoticeMonitorFailed  = "Recording without the beat: the instrumental couldn't be loaded."
	NoticeTakeLost       = "The take couldn't be saved."
	NoticeLyricsFailed   = ollama.FailureMessage
	NoticeNoLyricService = "Lyric generation is not configured."
)

// LyricWriter turns a topic into lyrics.
type LyricWriter interface {
	Write(ctx context.Context, topic string) (string, error)
}

// Config wires a Controller to its collaborators.
type Config struct {
	Catalog    *catalog.Catalog
	Store      *session.Store      // nil disables persistence
	Microphone recorder.Microphone // nil makes every record attempt fail as denied
	Lyrics     LyricWriter         // nil disables generation
	Output     chan<- []int16      // required; must be drained
	Canvas     visualizer.Canvas   // nil disables visualization
	URLs       *URLRegistry        // nil creates a private registry
	Loader     graph.Loader        // nil decodes with audio.Decoder over URLs

	RecordFormat       recorder.Format
	FFTSize            int
	Smoothing          float64
	VisualizerInterval time.Duration
	FrameDuration      time.Duration // wall-clock pacing of the graphs, 0 for real time
}

// Status is a point-in-time view of the controller.
type Status struct {
	State              string  `json:"state"`
	SelectedBeat       string  `json:"selectedBeat"`
	BeatName           string  `json:"beatName,omitempty"`
	InstrumentalVolume float64 `json:"instrumentalVolume"`
	VocalVolume        float64 `json:"vocalVolume"`
	VocalURL           string  `json:"vocalUrl,omitempty"`
	TakeSeconds        float64 `json:"takeSeconds"`
	CanPlay            bool    `json:"canPlay"`
	PositionSeconds    float64 `json:"positionSeconds"`
	DurationSeconds    float64 `json:"durationSeconds"`
	LyricTopic         string  `json:"lyricTopic"`
	GeneratedLyrics    string  `json:"generatedLyrics"`
	Generating         bool    `json:"generating"`
	Notice             string  `json:"notice,omitempty"`
}

// Controller serializes every transition behind one mutex. Graph completion
// arrives on handle Done channels and is applied by watcher goroutines that
// re-enter the mutex and ignore handles that are no longer current.
type Controller struct {
	cfg    Config
	urls   *URLRegistry
	loader graph.Loader

	mu         sync.Mutex
	state      State
	audio      *AudioSessionContext
	beat       string
	instVol    float64
	vocVol     float64
	topic      string
	lyrics     string
	take       *recorder.Capture
	vocalURL   string
	playing    *graph.Handle
	monitoring *graph.Handle
	notice     string
	generating int // lyric requests in flight
	project    uint64

	watchers sync.WaitGroup
}

// New creates an idle controller with default parameters. Call Restore to
// pick up a persisted project.
func New(cfg Config) (*Controller, error) {
	if cfg.Output == nil {
		return nil, errors.New("studio: output channel is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.RecordFormat.SampleRate == 0 {
		cfg.RecordFormat = recorder.DefaultFormat
	}
	if cfg.VisualizerInterval <= 0 {
		cfg.VisualizerInterval = visualizer.DefaultInterval
	}
	c := &Controller{
		cfg:     cfg,
		urls:    cfg.URLs,
		loader:  cfg.Loader,
		instVol: session.DefaultInstrumentalVolume,
		vocVol:  session.DefaultVocalVolume,
	}
	if cfg.FFTSize == 0 {
		c.cfg.FFTSize = analysis.DefaultFFTSize
	}
	if cfg.Smoothing == 0 {
		c.cfg.Smoothing = analysis.DefaultSmoothing
	}
	if c.urls == nil {
		c.urls = NewURLRegistry()
	}
	if c.loader == nil {
		c.loader = audio.NewDecoder(c.urls)
	}
	return c, nil
}

// URLs exposes the blob registry so captures can be served.
func (c *Controller) URLs() *URLRegistry { return c.urls }

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Restore loads the persisted project, if any, and republishes the take
// under a fresh URL. It reports whether a project was found.
func (c *Controller) Restore() bool {
	if c.cfg.Store == nil {
		return false
	}
	st, ok := c.cfg.Store.Load()
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.beat = st.SelectedBeatURL
	c.instVol = st.InstrumentalVolume
	c.vocVol = st.VocalVolume
	c.topic = st.LyricTopic
	c.lyrics = st.GeneratedLyrics

	if st.RecordedAudioBase64 != nil {
		data, mimeType, err := session.DecodeAudio(*st.RecordedAudioBase64)
		if err != nil {
			log.Printf("Restored take ignored: %v", err)
		} else {
			take := &recorder.Capture{Data: data, MimeType: mimeType}
			if buf, err := audio.DecodeBytes(data); err == nil {
				take.Duration = buf.Duration()
			}
			c.take = take
			c.vocalURL = c.urls.Replace(c.vocalURL, data, mimeType)
		}
	}

	log.Printf("Session restored (beat %q, take %v)", c.beat, c.take != nil)
	return true
}

// SelectBeat stops any activity and makes ref (a catalog name or a source
// URI) the instrumental. An empty ref clears the selection.
func (c *Controller) SelectBeat(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.stopLocked()
	c.beat = c.cfg.Catalog.Resolve(ref)
	c.persistLocked()
	log.Printf("Beat selected: %q", c.beat)
	return err
}

// ToggleRecord starts a take from Idle or Playing, and finalizes it from a
// recording state. Starting monitors the selected beat, if any.
func (c *Controller) ToggleRecord(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Recording() {
		return c.finishTakeLocked()
	}
	c.stopPlaybackLocked()
	return c.startTakeLocked(ctx)
}

func (c *Controller) startTakeLocked(ctx context.Context) error {
	a, err := c.sessionLocked()
	if err != nil {
		return err
	}
	if c.cfg.Microphone == nil {
		c.notice = NoticeMicDenied
		return fmt.Errorf("%w: no microphone", recorder.ErrPermissionDenied)
	}

	// The beat starts before the microphone opens so a slow decode never
	// shows up as leading silence in the take.
	var monitor *graph.Handle
	if c.beat != "" {
		monitor, err = a.monitor.Play(ctx, graph.Request{
			InstrumentalURI:    c.beat,
			InstrumentalVolume: c.instVol,
		})
		if err != nil {
			log.Printf("Monitor unavailable: %v", err)
			monitor = nil
		}
	}

	rec := recorder.NewSession(c.cfg.Microphone, c.cfg.RecordFormat)
	if err := rec.Start(); err != nil {
		a.monitor.Stop()
		c.state = Idle
		c.notice = NoticeMicDenied
		log.Printf("Record aborted: %v", err)
		return err
	}
	a.recording = rec

	switch {
	case monitor != nil:
		c.monitoring = monitor
		c.state = RecordingAndMonitoring
		c.notice = ""
		c.watch(monitor)
	case c.beat != "":
		c.state = Recording
		c.notice = NoticeMonitorFailed
	default:
		c.state = Recording
		c.notice = ""
	}
	return nil
}

// finishTakeLocked ends the take, publishes it under a fresh URL (revoking
// the previous one) and persists the project.
func (c *Controller) finishTakeLocked() error {
	a := c.audio
	if c.monitoring != nil {
		a.monitor.Stop()
		c.monitoring = nil
	}
	rec := a.recording
	a.recording = nil
	c.state = Idle
	if rec == nil {
		return nil
	}

	take, err := rec.Stop()
	if err != nil {
		c.notice = NoticeTakeLost
		log.Printf("Take lost: %v", err)
		return err
	}
	c.take = take
	c.vocalURL = c.urls.Replace(c.vocalURL, take.Data, take.MimeType)
	c.persistLocked()
	log.Printf("Take ready: %s (%s)", c.vocalURL, take.Duration.Round(time.Millisecond))
	return nil
}

// Play starts the instrumental and the take together. Decode failures
// leave the controller idle.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return ErrBusy
	}
	if c.beat == "" && c.vocalURL == "" {
		return ErrNothingToPlay
	}
	a, err := c.sessionLocked()
	if err != nil {
		return err
	}

	h, err := a.playback.Play(ctx, graph.Request{
		InstrumentalURI:    c.beat,
		VocalURI:           c.vocalURL,
		InstrumentalVolume: c.instVol,
		VocalVolume:        c.vocVol,
	})
	if err != nil {
		c.notice = NoticeLoadFailed
		log.Printf("Play failed: %v", err)
		return err
	}

	c.playing = h
	c.state = Playing
	c.notice = ""
	if c.cfg.Canvas != nil {
		a.viz.Start(a.analyser, c.cfg.Canvas, h.Done())
	}
	c.watch(h)
	return nil
}

// Stop returns to Idle from any state. A take in progress is finalized.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	var err error
	if c.state.Recording() {
		err = c.finishTakeLocked()
	}
	c.stopPlaybackLocked()
	c.state = Idle
	return err
}

func (c *Controller) stopPlaybackLocked() {
	if c.playing == nil {
		return
	}
	// The visualizer stops first so no frame is drawn from a dead graph.
	c.audio.viz.Stop()
	c.audio.playback.Stop()
	c.playing = nil
	if c.state == Playing {
		c.state = Idle
	}
	log.Printf("Playback stopped")
}

// watch applies the natural end of h, unless h was replaced meanwhile.
func (c *Controller) watch(h *graph.Handle) {
	c.watchers.Add(1)
	go func() {
		defer c.watchers.Done()
		<-h.Done()

		c.mu.Lock()
		defer c.mu.Unlock()
		switch h {
		case c.playing:
			c.audio.viz.Stop()
			c.playing = nil
			c.state = Idle
			log.Printf("Playback finished (%s)", h.Reason())
		case c.monitoring:
			c.monitoring = nil
			if c.state == RecordingAndMonitoring {
				c.state = Recording
			}
			log.Printf("Monitor reached the end of the beat")
		}
	}()
}

// NewProject discards everything: activity, take, parameters and the
// persisted record. The audio session is torn down.
func (c *Controller) NewProject(confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.audio != nil {
		c.audio.close()
		c.audio = nil
	}
	c.playing = nil
	c.monitoring = nil
	c.urls.Revoke(c.vocalURL)
	c.vocalURL = ""
	c.take = nil
	c.beat = ""
	c.instVol = session.DefaultInstrumentalVolume
	c.vocVol = session.DefaultVocalVolume
	c.topic = ""
	c.lyrics = ""
	c.notice = ""
	c.state = Idle
	c.project++

	if c.cfg.Store != nil {
		if err := c.cfg.Store.Clear(); err != nil {
			log.Printf("Session clear failed: %v", err)
		}
	}
	log.Printf("New project started")
	return nil
}

// SetInstrumentalVolume updates the live gain stage and returns the
// clamped value.
func (c *Controller) SetInstrumentalVolume(v float64) float64 {
	v = audio.ClampGain(v)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.instVol = v
	if c.audio != nil {
		c.audio.playback.SetGain(graph.Instrumental, v)
		c.audio.monitor.SetGain(graph.Instrumental, v)
	}
	c.persistLocked()
	return v
}

// SetVocalVolume updates the live gain stage and returns the clamped value.
func (c *Controller) SetVocalVolume(v float64) float64 {
	v = audio.ClampGain(v)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vocVol = v
	if c.audio != nil {
		c.audio.playback.SetGain(graph.Vocal, v)
	}
	c.persistLocked()
	return v
}

// SetLyricTopic stores the topic for the next generation.
func (c *Controller) SetLyricTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = topic
	c.persistLocked()
}

// GenerateLyrics asks the lyric writer for lyrics on the current topic.
// The call runs outside the controller lock. On failure the previous lyrics
// stay and a notice is set.
func (c *Controller) GenerateLyrics(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cfg.Lyrics == nil {
		c.notice = NoticeNoLyricService
		c.mu.Unlock()
		return "", fmt.Errorf("%w: no lyric writer configured", ollama.ErrGeneration)
	}
	topic := c.topic
	project := c.project
	c.generating++
	c.mu.Unlock()

	text, err := c.cfg.Lyrics.Write(ctx, topic)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generating--
	if project != c.project {
		return "", fmt.Errorf("%w: project was replaced during generation", ollama.ErrGeneration)
	}
	if err != nil {
		c.notice = NoticeLyricsFailed
		if !errors.Is(err, ollama.ErrGeneration) {
			err = fmt.Errorf("%w: %w", ollama.ErrGeneration, err)
		}
		return "", err
	}
	c.lyrics = text
	c.notice = ""
	c.persistLocked()
	return text, nil
}

// Status returns a snapshot for display.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:              c.state.String(),
		SelectedBeat:       c.beat,
		InstrumentalVolume: c.instVol,
		VocalVolume:        c.vocVol,
		VocalURL:           c.vocalURL,
		CanPlay:            c.state == Idle && (c.beat != "" || c.vocalURL != ""),
		LyricTopic:         c.topic,
		GeneratedLyrics:    c.lyrics,
		Generating:         c.generating > 0,
		Notice:             c.notice,
	}
	if name, ok := c.cfg.Catalog.NameOf(c.beat); ok {
		st.BeatName = name
	}
	if c.take != nil {
		st.TakeSeconds = c.take.Duration.Seconds()
	}
	if c.playing != nil {
		st.PositionSeconds = c.playing.Position().Seconds()
		st.DurationSeconds = c.playing.Duration().Seconds()
	}
	return st
}

// Close finalizes any take, stops playback and releases the audio session.
func (c *Controller) Close() error {
	c.mu.Lock()
	err := c.stopLocked()
	if c.audio != nil {
		c.audio.close()
		c.audio = nil
	}
	c.mu.Unlock()

	c.watchers.Wait()
	return err
}

// sessionLocked returns the audio session, opening it on first use.
func (c *Controller) sessionLocked() (*AudioSessionContext, error) {
	if c.audio != nil {
		return c.audio, nil
	}
	a, err := newAudioSessionContext(c.loader, c.cfg.Output, c.cfg.FFTSize, c.cfg.Smoothing, c.cfg.VisualizerInterval, c.cfg.FrameDuration)
	if err != nil {
		return nil, err
	}
	c.audio = a
	return a, nil
}

// persistLocked saves the project when it has content worth keeping.
// Storage failures are logged and otherwise ignored.
func (c *Controller) persistLocked() {
	if c.cfg.Store == nil {
		return
	}
	if c.beat == "" && c.take == nil {
		return
	}
	st := session.State{
		SelectedBeatURL:    c.beat,
		InstrumentalVolume: c.instVol,
		VocalVolume:        c.vocVol,
		LyricTopic:         c.topic,
		GeneratedLyrics:    c.lyrics,
	}
	if c.take != nil {
		enc := session.EncodeAudio(c.take.Data, c.take.MimeType)
		st.RecordedAudioBase64 = &enc
	}
	if err := c.cfg.Store.Save(st); err != nil {
		log.Printf("Session save failed: %v", err)
	}
}
