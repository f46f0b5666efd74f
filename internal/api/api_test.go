package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/satindergrewal/vocalbooth/internal/audio"
	"github.com/satindergrewal/vocalbooth/internal/catalog"
	"github.com/satindergrewal/vocalbooth/internal/recorder"
	"github.com/satindergrewal/vocalbooth/internal/session"
	"github.com/satindergrewal/vocalbooth/internal/stream"
	"github.com/satindergrewal/vocalbooth/internal/studio"
	"github.com/satindergrewal/vocalbooth/internal/visualizer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopStream struct{}

func (nopStream) Close() error { return nil }

type testMic struct {
	mu      sync.Mutex
	deny    bool
	onChunk func([]byte)
}

func (m *testMic) Open(_ recorder.Format, onChunk func([]byte)) (recorder.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deny {
		return nil, errors.New("device busy")
	}
	m.onChunk = onChunk
	return nopStream{}, nil
}

func (m *testMic) speak(chunks int) {
	m.mu.Lock()
	fn := m.onChunk
	m.mu.Unlock()
	chunk := make([]byte, audio.SampleRate/50*2)
	for i := 0; i < chunks; i++ {
		fn(chunk)
	}
}

type failingLyrics struct{}

func (failingLyrics) Write(context.Context, string) (string, error) {
	return "", errors.New("model offline")
}

type testServer struct {
	router *gin.Engine
	studio *studio.Controller
	mic    *testMic
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	pcm := make([]int16, 10*audio.SampleRate*audio.Channels) // 10s
	wav, err := audio.EncodeWAV(pcm, audio.SampleRate, audio.Channels)
	if err != nil {
		t.Fatal(err)
	}
	beat := filepath.Join(dir, "beat.wav")
	if err := os.WriteFile(beat, wav, 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Parse([]byte("tracks:\n  - name: Trap Beat\n    sourceUri: " + beat + "\n"))
	if err != nil {
		t.Fatal(err)
	}

	out := make(chan []int16)
	ctx, cancel := context.WithCancel(context.Background())
	b := stream.NewBroadcaster()
	go b.Run(ctx, out)

	mic := &testMic{}
	canvas := visualizer.NewSnapshotCanvas(32, 16)
	ctrl, err := studio.New(studio.Config{
		Catalog:            cat,
		Store:              session.NewStore(session.NewMemoryBackend()),
		Microphone:         mic,
		Lyrics:             failingLyrics{},
		Output:             out,
		Canvas:             canvas,
		VisualizerInterval: time.Millisecond,
		FrameDuration:      time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctrl.Close()
		cancel()
	})

	return &testServer{
		router: NewRouter(Deps{Studio: ctrl, Catalog: cat, Canvas: canvas, Broadcaster: b}),
		studio: ctrl,
		mic:    mic,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	resp := decode[StatusResponse](t, w)
	if resp.State != "idle" || resp.CanPlay {
		t.Errorf("fresh status = %+v", resp.Status)
	}
	if resp.InstrumentalVolume != session.DefaultInstrumentalVolume || resp.VocalVolume != session.DefaultVocalVolume {
		t.Errorf("volumes = %v / %v", resp.InstrumentalVolume, resp.VocalVolume)
	}
}

func TestBeats(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/beats", "")
	resp := decode[struct {
		Tracks []catalog.Track `json:"tracks"`
	}](t, w)
	if len(resp.Tracks) != 1 || resp.Tracks[0].Name != "Trap Beat" {
		t.Errorf("tracks = %+v", resp.Tracks)
	}
}

func TestSelectBeat(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/beat", `{"beat":"Trap Beat"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("select code = %d body = %s", w.Code, w.Body)
	}
	st := decode[studio.Status](t, w)
	if st.BeatName != "Trap Beat" || !st.CanPlay {
		t.Errorf("status after select = %+v", st)
	}

	w = s.do(t, http.MethodPost, "/api/beat", `{"beat":"Polka"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown beat code = %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/beat", `{"beat":""}`)
	if w.Code != http.StatusOK || decode[studio.Status](t, w).SelectedBeat != "" {
		t.Errorf("clearing the beat failed: %d %s", w.Code, w.Body)
	}
}

func TestPlayAndStop(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/play", "")
	if w.Code != http.StatusConflict || decode[ErrorResponse](t, w).Error != "nothing_to_play" {
		t.Fatalf("play with nothing selected: %d %s", w.Code, w.Body)
	}

	s.do(t, http.MethodPost, "/api/beat", `{"beat":"Trap Beat"}`)
	w = s.do(t, http.MethodPost, "/api/play", "")
	if w.Code != http.StatusOK || decode[studio.Status](t, w).State != "playing" {
		t.Fatalf("play: %d %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodPost, "/api/play", "")
	if w.Code != http.StatusConflict || decode[ErrorResponse](t, w).Error != "busy" {
		t.Errorf("second play: %d %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodPost, "/api/stop", "")
	if w.Code != http.StatusOK || decode[studio.Status](t, w).State != "idle" {
		t.Errorf("stop: %d %s", w.Code, w.Body)
	}
}

func TestNewProjectNeedsConfirmation(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/beat", `{"beat":"Trap Beat"}`)

	w := s.do(t, http.MethodPost, "/api/new", "")
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("unconfirmed new: %d %s", w.Code, w.Body)
	}
	w = s.do(t, http.MethodPost, "/api/new", `{"confirm":true}`)
	if w.Code != http.StatusOK || decode[studio.Status](t, w).SelectedBeat != "" {
		t.Errorf("confirmed new: %d %s", w.Code, w.Body)
	}
	w = s.do(t, http.MethodPost, "/api/new", `{"confirm":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed new: %d", w.Code)
	}
}

func TestVolume(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path string
		body string
		code int
		want float64
	}{
		{"/api/volume/instrumental", `{"value":0.25}`, http.StatusOK, 0.25},
		{"/api/volume/instrumental", `{"value":3}`, http.StatusOK, 1},
		{"/api/volume/vocal", `{"value":-1}`, http.StatusOK, 0},
		{"/api/volume/vocal", `{}`, http.StatusBadRequest, 0},
		{"/api/volume/vocal", `{"value":"loud"}`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		w := s.do(t, http.MethodPost, tt.path, tt.body)
		if w.Code != tt.code {
			t.Errorf("%s %s: code = %d", tt.path, tt.body, w.Code)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		st := decode[studio.Status](t, w)
		got := st.InstrumentalVolume
		if strings.HasSuffix(tt.path, "vocal") {
			got = st.VocalVolume
		}
		if got != tt.want {
			t.Errorf("%s %s: volume = %v, want %v", tt.path, tt.body, got, tt.want)
		}
	}
}

func TestRecordAndServeBlob(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/record", "")
	if w.Code != http.StatusOK || decode[studio.Status](t, w).State != "recording" {
		t.Fatalf("start recording: %d %s", w.Code, w.Body)
	}
	s.mic.speak(10)
	w = s.do(t, http.MethodPost, "/api/record", "")
	st := decode[studio.Status](t, w)
	if st.State != "idle" || !strings.HasPrefix(st.VocalURL, "blob:") {
		t.Fatalf("stop recording: %+v", st)
	}

	w = s.do(t, http.MethodGet, "/blob/"+strings.TrimPrefix(st.VocalURL, "blob:"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("blob code = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != recorder.MimeWAV {
		t.Errorf("content type = %q", ct)
	}
	if _, err := audio.DecodeBytes(w.Body.Bytes()); err != nil {
		t.Errorf("served take does not decode: %v", err)
	}

	if w := s.do(t, http.MethodGet, "/blob/does-not-exist", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown blob code = %d", w.Code)
	}
}

func TestRecordDenied(t *testing.T) {
	s := newTestServer(t)
	s.mic.deny = true
	w := s.do(t, http.MethodPost, "/api/record", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Message != studio.NoticeMicDenied {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestGenerateFailure(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/topic", `{"topic":"  late trains  "}`)
	if got := s.studio.Status().LyricTopic; got != "late trains" {
		t.Errorf("topic = %q", got)
	}

	w := s.do(t, http.MethodPost, "/api/generate", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("code = %d", w.Code)
	}
	resp := decode[ErrorResponse](t, w)
	if resp.Error != "generation_failed" || resp.Message == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSpectrum(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/spectrum", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	snap := decode[visualizer.Snapshot](t, w)
	if snap.Width != 32 || snap.Height != 16 || len(snap.Bars) != 0 {
		t.Errorf("idle snapshot = %+v", snap)
	}

	r := NewRouter(Deps{Studio: s.studio})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/spectrum", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("spectrum without canvas code = %d", w.Code)
	}
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{studio.ErrBusy, http.StatusConflict},
		{recorder.ErrPermissionDenied, http.StatusForbidden},
		{audio.ErrFetch, http.StatusBadGateway},
		{audio.ErrDecode, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		handleStudioError(c, tt.err, "test")
		if w.Code != tt.code {
			t.Errorf("%v: code = %d, want %d", tt.err, w.Code, tt.code)
		}
	}
}
