package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Storage and content
	DBPath      string // SQLite session file; empty keeps the session in memory
	CatalogPath string // optional YAML beat list; empty uses the built-in one

	// Lyric generation (optional)
	OllamaURL   string
	OllamaModel string

	// Devices
	MicEnabled bool

	// Visualization
	FFTSize      int
	Smoothing    float64
	VizInterval  time.Duration
	CanvasWidth  int
	CanvasHeight int

	// Output streams
	FFmpegPath  string
	MP3Bitrate  int // kbit/s
	OpusBitrate int // bit/s
	SilenceFill bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	fps := envInt("STUDIO_VIZ_FPS", 60)
	if fps <= 0 {
		fps = 60
	}
	return Config{
		Port: envInt("STUDIO_PORT", 8080),

		DBPath:      envSet("STUDIO_DB_PATH", "vocalbooth.db"),
		CatalogPath: envStr("STUDIO_CATALOG", ""),

		OllamaURL:   envStr("OLLAMA_URL", ""),
		OllamaModel: envStr("OLLAMA_MODEL", "qwen3:8b"),

		MicEnabled: envBool("STUDIO_MIC", true),

		FFTSize:      envInt("STUDIO_FFT_SIZE", 256),
		Smoothing:    envFloat("STUDIO_FFT_SMOOTHING", 0.8),
		VizInterval:  time.Second / time.Duration(fps),
		CanvasWidth:  envInt("STUDIO_CANVAS_WIDTH", 512),
		CanvasHeight: envInt("STUDIO_CANVAS_HEIGHT", 128),

		FFmpegPath:  envStr("STUDIO_FFMPEG", "ffmpeg"),
		MP3Bitrate:  envInt("STUDIO_MP3_BITRATE", 192),
		OpusBitrate: envInt("STUDIO_OPUS_BITRATE", 128000),
		SilenceFill: envBool("STUDIO_SILENCE_FILL", true),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envSet is envStr except that a variable set to the empty string is kept.
func envSet(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
