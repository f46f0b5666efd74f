package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satindergrewal/vocalbooth/internal/analysis"
	"github.com/satindergrewal/vocalbooth/internal/audio"
)

type fakeLoader struct {
	assets map[string]*audio.Buffer
	errs   map[string]error
	calls  []string
}

func (l *fakeLoader) Decode(_ context.Context, uri string) (*audio.Buffer, error) {
	l.calls = append(l.calls, uri)
	if err, ok := l.errs[uri]; ok {
		return nil, err
	}
	if b, ok := l.assets[uri]; ok {
		return b, nil
	}
	return nil, audio.ErrFetch
}

// stepped returns a buffer of n 20ms frames; every sample in frame i is (i+1)*step.
func stepped(n int, step int16) *audio.Buffer {
	s := make([]int16, n*audio.FrameSamples)
	for i := range s {
		s[i] = int16(i/audio.FrameSamples+1) * step
	}
	return &audio.Buffer{Samples: s}
}

func newTestGraph(l Loader) (*Graph, chan []int16) {
	out := make(chan []int16)
	return New(l, out, nil, WithFrameDuration(time.Millisecond)), out
}

// drain collects frames until the handle finishes.
func drain(t *testing.T, h *Handle, out <-chan []int16) [][]int16 {
	t.Helper()
	var frames [][]int16
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f := <-out:
			frames = append(frames, f)
		case <-h.Done():
			return frames
		case <-timeout:
			t.Fatal("timeout waiting for playback to finish")
		}
	}
}

func TestPlayInstrumentalOnly(t *testing.T) {
	l := &fakeLoader{assets: map[string]*audio.Buffer{"trap.wav": stepped(4, 100)}}
	g, out := newTestGraph(l)

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "trap.wav", InstrumentalVolume: 1, VocalVolume: 1})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !g.Playing() {
		t.Error("Playing() = false right after Play")
	}

	frames := drain(t, h, out)
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	// Time-zero alignment: the first frame is the first frame of the source.
	if frames[0][0] != 100 {
		t.Errorf("first sample = %d, want 100", frames[0][0])
	}
	if h.Reason() != EndReasonEnded {
		t.Errorf("Reason = %v, want ended", h.Reason())
	}
	if g.Playing() {
		t.Error("Playing() = true after natural end")
	}
	if h.Position() != 4*audio.FrameDuration {
		t.Errorf("Position = %v, want %v", h.Position(), 4*audio.FrameDuration)
	}
}

func TestPlayMixesInLockstep(t *testing.T) {
	l := &fakeLoader{assets: map[string]*audio.Buffer{
		"beat":  stepped(3, 100),
		"vocal": stepped(3, 10),
	}}
	g, out := newTestGraph(l)

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "beat", VocalURI: "vocal", InstrumentalVolume: 1, VocalVolume: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	frames := drain(t, h, out)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		want := int16((i+1)*100) + int16((i+1)*5)
		if f[0] != want {
			t.Errorf("frame %d sample = %d, want %d", i, f[0], want)
		}
	}
}

func TestLongerTrackGoverns(t *testing.T) {
	l := &fakeLoader{assets: map[string]*audio.Buffer{
		"beat":  stepped(2, 100),
		"vocal": stepped(5, 10),
	}}
	g, out := newTestGraph(l)

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "beat", VocalURI: "vocal", InstrumentalVolume: 1, VocalVolume: 1})
	if err != nil {
		t.Fatal(err)
	}
	if track, _ := h.Governing(); track != Vocal {
		t.Errorf("Governing = %v, want vocal", track)
	}
	frames := drain(t, h, out)
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5 (longer track)", len(frames))
	}
	// Instrumental exhausted after frame 2, only vocal remains.
	if frames[4][0] != 50 {
		t.Errorf("last frame sample = %d, want 50", frames[4][0])
	}
}

func TestEqualLengthVocalGoverns(t *testing.T) {
	l := &fakeLoader{assets: map[string]*audio.Buffer{
		"beat":  stepped(2, 100),
		"vocal": stepped(2, 10),
	}}
	g, out := newTestGraph(l)

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "beat", VocalURI: "vocal", InstrumentalVolume: 1, VocalVolume: 1})
	if err != nil {
		t.Fatal(err)
	}
	if track, ok := h.Governing(); !ok || track != Vocal {
		t.Errorf("Governing = %v (ok=%v), want vocal on a tie", track, ok)
	}
	drain(t, h, out)
}

func TestDecodeFailureStartsNothing(t *testing.T) {
	l := &fakeLoader{
		assets: map[string]*audio.Buffer{"beat": stepped(10, 100)},
		errs:   map[string]error{"blob:vocal": audio.ErrDecode},
	}
	g, out := newTestGraph(l)

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "beat", VocalURI: "blob:vocal", InstrumentalVolume: 1, VocalVolume: 1})
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if h != nil {
		t.Error("handle returned on failed play")
	}
	if g.Playing() {
		t.Error("graph playing after failed decode")
	}

	select {
	case <-out:
		t.Fatal("frame emitted after failed decode")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPlayNothingIsNoop(t *testing.T) {
	g, _ := newTestGraph(&fakeLoader{})
	h, err := g.Play(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("empty play should finish immediately")
	}
	if g.Playing() {
		t.Error("empty play should leave graph stopped")
	}
	if _, ok := h.Governing(); ok {
		t.Error("empty play has no governing track")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := &fakeLoader{assets: map[string]*audio.Buffer{"beat": stepped(1000, 1)}}
	g, out := newTestGraph(l)

	// Never started.
	g.Stop()
	g.Stop()

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "beat", InstrumentalVolume: 1})
	if err != nil {
		t.Fatal(err)
	}
	<-out
	<-out

	g.Stop()
	if h.Reason() != EndReasonStopped {
		t.Errorf("Reason = %v, want stopped", h.Reason())
	}
	if g.Playing() {
		t.Error("Playing() = true after Stop")
	}
	g.Stop()

	select {
	case <-out:
		t.Fatal("frame emitted after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPlayTearsDownPrevious(t *testing.T) {
	l := &fakeLoader{assets: map[string]*audio.Buffer{
		"a": stepped(1000, 1),
		"b": stepped(2, 7),
	}}
	g, out := newTestGraph(l)

	first, err := g.Play(context.Background(), Request{InstrumentalURI: "a", InstrumentalVolume: 1})
	if err != nil {
		t.Fatal(err)
	}
	<-out

	second, err := g.Play(context.Background(), Request{InstrumentalURI: "b", InstrumentalVolume: 1})
	if err != nil {
		t.Fatal(err)
	}
	if first.Reason() != EndReasonStopped {
		t.Errorf("first handle Reason = %v, want stopped", first.Reason())
	}
	if first == second || first.ID() == second.ID() {
		t.Error("handles must not be reused across plays")
	}
	frames := drain(t, second, out)
	if len(frames) != 2 || frames[0][0] != 7 {
		t.Errorf("second play frames = %d, first sample %v", len(frames), frames)
	}
}

func TestSetGainLiveWithoutRestart(t *testing.T) {
	const n = 20
	l := &fakeLoader{assets: map[string]*audio.Buffer{"beat": stepped(n, 10)}}
	g, out := newTestGraph(l)

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "beat", InstrumentalVolume: 1})
	if err != nil {
		t.Fatal(err)
	}
	first := <-out
	g.SetGain(Instrumental, 0.5)

	if gain, ok := h.Gain(Instrumental); !ok || gain != 0.5 {
		t.Errorf("Gain = %v (ok=%v), want 0.5", gain, ok)
	}

	frames := append([][]int16{first}, drain(t, h, out)...)
	if len(frames) != n {
		t.Fatalf("got %d frames, want %d: source must not restart", len(frames), n)
	}
	if frames[0][0] != 10 {
		t.Errorf("first frame = %d, want 10", frames[0][0])
	}
	last := frames[n-1]
	if last[0] != n*10/2 {
		t.Errorf("last frame = %d, want %d at half gain", last[0], n*10/2)
	}
}

func TestAnalyserReceivesMix(t *testing.T) {
	a, err := analysis.New(analysis.DefaultFFTSize, 0)
	if err != nil {
		t.Fatal(err)
	}
	s := make([]int16, 4*audio.FrameSamples)
	for i := range s {
		if (i/2)%8 < 4 {
			s[i] = 20000
		} else {
			s[i] = -20000
		}
	}
	l := &fakeLoader{assets: map[string]*audio.Buffer{"beat": {Samples: s}}}
	out := make(chan []int16, 8)
	g := New(l, out, a, WithFrameDuration(time.Millisecond))

	h, err := g.Play(context.Background(), Request{InstrumentalURI: "beat", InstrumentalVolume: 1})
	if err != nil {
		t.Fatal(err)
	}
	<-h.Done()

	data := make([]byte, a.FrequencyBinCount())
	a.ByteFrequencyData(data)
	var sum int
	for _, v := range data {
		sum += int(v)
	}
	if sum == 0 {
		t.Error("analyser saw no signal")
	}
}
