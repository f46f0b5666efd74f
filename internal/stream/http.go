package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/vocalbooth/internal/audio"
)

// HTTPHandler serves the studio output as a chunked MP3 stream. Each
// connection runs its own ffmpeg process encoding PCM to MP3 in real time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	ffmpeg      string
	bitrate     int
	name        string
}

// NewHTTPHandler creates an MP3 stream handler. ffmpegPath defaults to
// "ffmpeg" on PATH; bitrate is in kbit/s.
func NewHTTPHandler(b *Broadcaster, ffmpegPath string, bitrate int, name string) *HTTPHandler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if bitrate <= 0 {
		bitrate = 192
	}
	return &HTTPHandler{broadcaster: b, ffmpeg: ffmpegPath, bitrate: bitrate, name: name}
}

// encoderArgs reads s16le stereo PCM on stdin and writes MP3 on stdout.
func encoderArgs(bitrate int) []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", bitrate),
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.ffmpeg, encoderArgs(h.bitrate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("HTTP stream: stdin pipe error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("HTTP stream: stdout pipe error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("HTTP stream: ffmpeg start error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if h.name != "" {
		w.Header().Set("ICY-Name", h.name)
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.Printf("HTTP listener connected (total: %d)", h.broadcaster.ListenerCount())
	defer log.Printf("HTTP listener disconnected")

	go feedPCM(ctx, listener, stdin)

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("HTTP stream: ffmpeg read error: %v", err)
			}
			return
		}
	}
}

// feedPCM writes listener frames to the encoder until either side stops.
func feedPCM(ctx context.Context, l *Listener, dst io.WriteCloser) {
	defer dst.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame := <-l.C:
			if _, err := dst.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
