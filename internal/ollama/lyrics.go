package ollama

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrGeneration wraps any failure to produce usable lyrics.
var ErrGeneration = errors.New("lyric generation failed")

// FailureMessage is shown in place of lyrics when generation fails.
const FailureMessage = "Couldn't write lyrics right now. Try again in a moment."

// Generator is anything that turns a system and user prompt into text.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, opts Options) (string, error)
}

// LyricOptions favour varied wording over the model's defaults and cap the
// reply at about a verse and a hook. Generation stops at a second verse.
var LyricOptions = Options{
	Temperature:   0.9,
	TopP:          0.95,
	MaxTokens:     400,
	RepeatPenalty: 1.15,
	Stop:          []string{"[Verse 2]"},
}

// LyricWriter turns a topic into song lyrics.
type LyricWriter struct {
	gen  Generator
	opts Options
}

// NewLyricWriter creates a lyric writer backed by gen, usually a *Client,
// sampling with LyricOptions.
func NewLyricWriter(gen Generator) *LyricWriter {
	return &LyricWriter{gen: gen, opts: LyricOptions}
}

// WithOptions returns a copy of w that samples with opts.
func (w *LyricWriter) WithOptions(opts Options) *LyricWriter {
	return &LyricWriter{gen: w.gen, opts: opts}
}

const lyricsSystemPrompt = `You are a songwriter helping an artist in a home recording booth.

Given a topic, write lyrics the artist can rap or sing over a beat.

Rules:
- One verse of 8 lines followed by a 4 line hook
- Label the sections on their own lines as [Verse] and [Hook]
- Short punchy lines that fit a 4/4 bar, with internal rhyme
- Stay on the topic; concrete images over abstractions

NEVER include explanations, titles, chord names, or anything outside the lyrics.

/no_think`

// Write generates lyrics for topic. Every failure wraps ErrGeneration.
func (w *LyricWriter) Write(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: empty topic", ErrGeneration)
	}

	raw, err := w.gen.Generate(ctx, lyricsSystemPrompt, "Topic: "+topic, w.opts)
	if err != nil {
		log.Printf("Ollama lyric generation failed: %v", err)
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	text := cleanResponse(raw)
	if len(text) < 20 {
		log.Printf("Ollama returned unusable lyrics: %q", text)
		return "", fmt.Errorf("%w: response too short", ErrGeneration)
	}

	log.Printf("LLM lyrics [%s]: %d lines", topic, strings.Count(text, "\n")+1)
	return text, nil
}

// cleanResponse strips common LLM artifacts from output.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	// Qwen-style thinking leakage
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	prefixes := []string{
		"Here are the lyrics:",
		"Here are your lyrics:",
		"Lyrics:",
	}
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			s = s[len(p):]
			break
		}
	}

	return strings.TrimSpace(s)
}
