package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/satindergrewal/vocalbooth/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// WebRTCHandler negotiates low-latency Opus sessions for monitoring the
// studio output in a browser.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	bitrate     int

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]struct{}
}

// NewWebRTCHandler creates a WebRTC stream handler; bitrate is in bit/s.
func NewWebRTCHandler(b *Broadcaster, bitrate int) *WebRTCHandler {
	if bitrate <= 0 {
		bitrate = 128000
	}
	return &WebRTCHandler{
		broadcaster: b,
		bitrate:     bitrate,
		peers:       make(map[*webrtc.PeerConnection]struct{}),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, status, err := h.answer(offer)
	if err != nil {
		log.Printf("WebRTC negotiation failed: %v", err)
		http.Error(w, err.Error(), status)
		return
	}

	h.mu.Lock()
	h.peers[pc] = struct{}{}
	h.mu.Unlock()
	log.Printf("WebRTC peer connected (total: %d)", h.PeerCount())

	gone := make(chan struct{})
	var goneOnce sync.Once
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			goneOnce.Do(func() {
				close(gone)
				h.removePeer(pc)
				pc.Close()
				log.Printf("WebRTC peer disconnected (remaining: %d)", h.PeerCount())
			})
		}
	})

	go h.streamToPeer(track, gone)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// answer builds a peer connection with one Opus track and completes ICE
// gathering so the answer needs no trickle.
func (h *WebRTCHandler) answer(offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, int, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, http.StatusInternalServerError, err
	}
	fail := func(status int, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, int, error) {
		pc.Close()
		return nil, nil, status, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio",
		"vocalbooth-mix",
	)
	if err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	<-gatherComplete
	return pc, track, http.StatusOK, nil
}

func (h *WebRTCHandler) streamToPeer(track *webrtc.TrackLocalStaticSample, gone <-chan struct{}) {
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("WebRTC: opus encoder error: %v", err)
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		log.Printf("WebRTC: opus bitrate %d rejected: %v", h.bitrate, err)
	}

	opusBuf := make([]byte, 4000)
	for {
		select {
		case <-gone:
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				log.Printf("WebRTC: opus encode error: %v", err)
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	delete(h.peers, pc)
	h.mu.Unlock()
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc := range h.peers {
		peers = append(peers, pc)
	}
	h.peers = make(map[*webrtc.PeerConnection]struct{})
	h.mu.Unlock()

	for _, pc := range peers {
		pc.Close()
	}
}
