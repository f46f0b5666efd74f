package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/satindergrewal/vocalbooth/internal/api"
	"github.com/satindergrewal/vocalbooth/internal/audio"
	"github.com/satindergrewal/vocalbooth/internal/catalog"
	"github.com/satindergrewal/vocalbooth/internal/config"
	"github.com/satindergrewal/vocalbooth/internal/device"
	"github.com/satindergrewal/vocalbooth/internal/ollama"
	"github.com/satindergrewal/vocalbooth/internal/recorder"
	"github.com/satindergrewal/vocalbooth/internal/session"
	"github.com/satindergrewal/vocalbooth/internal/stream"
	"github.com/satindergrewal/vocalbooth/internal/studio"
	"github.com/satindergrewal/vocalbooth/internal/visualizer"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("vocalbooth starting up...")

	// Session storage
	var backend session.Backend
	if cfg.DBPath == "" {
		backend = session.NewMemoryBackend()
		log.Println("Session storage: memory (STUDIO_DB_PATH is empty)")
	} else {
		db, err := session.OpenSQLite(cfg.DBPath)
		if err != nil {
			log.Fatalf("Open session database: %v", err)
		}
		defer db.Close()
		backend = db
		log.Printf("Session storage: %s", cfg.DBPath)
	}

	beats, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Load catalog: %v", err)
	}
	log.Printf("Catalog: %d beats", len(beats.Tracks()))

	// Ollama LLM (optional -- enables lyric generation)
	var lyrics studio.LyricWriter
	if cfg.OllamaURL != "" {
		client := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel)
		readyCtx, readyCancel := context.WithTimeout(ctx, 30*time.Second)
		if client.WaitForReady(readyCtx, 2*time.Second) {
			log.Printf("Ollama connected: %s (lyric generation enabled)", client.Model())
		} else {
			log.Println("Ollama not reachable yet, lyric requests will retry on demand")
		}
		readyCancel()
		lyrics = ollama.NewLyricWriter(client)
	} else {
		log.Println("Ollama not configured (set OLLAMA_URL to enable lyric generation)")
	}

	var mic recorder.Microphone
	if cfg.MicEnabled {
		mic = device.NewMicrophone()
	} else {
		log.Println("Microphone disabled, recording will be refused")
	}

	// Broadcaster: fan-out the studio mix to all listeners
	var opts []stream.Option
	if cfg.SilenceFill {
		opts = append(opts, stream.WithSilenceFill(2*audio.FrameDuration))
	}
	broadcaster := stream.NewBroadcaster(opts...)
	mix := make(chan []int16, 8)
	go broadcaster.Run(ctx, mix)

	canvas := visualizer.NewSnapshotCanvas(cfg.CanvasWidth, cfg.CanvasHeight)

	ctrl, err := studio.New(studio.Config{
		Catalog:            beats,
		Store:              session.NewStore(backend),
		Microphone:         mic,
		Lyrics:             lyrics,
		Output:             mix,
		Canvas:             canvas,
		FFTSize:            cfg.FFTSize,
		Smoothing:          cfg.Smoothing,
		VisualizerInterval: cfg.VizInterval,
	})
	if err != nil {
		log.Fatalf("Studio: %v", err)
	}
	if ctrl.Restore() {
		log.Println("Restored saved project")
	}

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.OpusBitrate)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		Studio:      ctrl,
		Catalog:     beats,
		Canvas:      canvas,
		Broadcaster: broadcaster,
		MP3:         stream.NewHTTPHandler(broadcaster, cfg.FFmpegPath, cfg.MP3Bitrate, "vocalbooth"),
		WebRTC:      webrtcHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		webrtcHandler.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	log.Printf("vocalbooth live on %s", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server error: %v", err)
	}
	ctrl.Close()
}
