// Package tts provides the narrator side of the pipeline: synchronous
// text-to-speech through a platform speech binary. Speak blocks until
// playback finishes so chat messages are never spoken out of order or on top
// of each other.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
)

// Narrator converts text to audible speech.
type Narrator interface {
	Name() string
	// Speak synthesizes and plays text, returning only after playback ends.
	Speak(ctx context.Context, text string) error
}

// Config selects and tunes the speech engine.
type Config struct {
	Engine string // "say", "espeak", "log", or "" for platform default
	Voice  string // engine voice name, engine default when empty
	Rate   int    // words per minute, engine default when <= 0
}

// New picks a narrator for cfg. With an empty Engine it prefers the native
// platform engine (`say` on macOS, `espeak` elsewhere) and falls back to
// log-only output when no speech binary is on PATH, so the service still runs
// on headless hosts.
func New(cfg Config) Narrator {
	switch cfg.Engine {
	case "say":
		return &sayNarrator{voice: cfg.Voice, rate: cfg.Rate}
	case "espeak":
		return &espeakNarrator{voice: cfg.Voice, rate: cfg.Rate}
	case "log":
		return logNarrator{}
	}
	if runtime.GOOS == "darwin" {
		if _, err := exec.LookPath("say"); err == nil {
			return &sayNarrator{voice: cfg.Voice, rate: cfg.Rate}
		}
	}
	if _, err := exec.LookPath("espeak"); err == nil {
		return &espeakNarrator{voice: cfg.Voice, rate: cfg.Rate}
	}
	slog.Warn("no tts binary found on PATH; narration will be logged only")
	return logNarrator{}
}

// sayNarrator shells out to the macOS `say` command.
type sayNarrator struct {
	voice string
	rate  int
}

func (n *sayNarrator) Name() string { return "say" }

func (n *sayNarrator) Speak(ctx context.Context, text string) error {
	args := sayArgs(n.voice, n.rate, text)
	if err := exec.CommandContext(ctx, "say", args...).Run(); err != nil {
		return fmt.Errorf("say: %w", err)
	}
	return nil
}

func sayArgs(voice string, rate int, text string) []string {
	var args []string
	if voice != "" {
		args = append(args, "-v", voice)
	}
	if rate > 0 {
		args = append(args, "-r", strconv.Itoa(rate))
	}
	return append(args, text)
}

// espeakNarrator shells out to espeak, the common choice on Linux hosts.
type espeakNarrator struct {
	voice string
	rate  int
}

func (n *espeakNarrator) Name() string { return "espeak" }

func (n *espeakNarrator) Speak(ctx context.Context, text string) error {
	args := espeakArgs(n.voice, n.rate, text)
	if err := exec.CommandContext(ctx, "espeak", args...).Run(); err != nil {
		return fmt.Errorf("espeak: %w", err)
	}
	return nil
}

func espeakArgs(voice string, rate int, text string) []string {
	var args []string
	if voice != "" {
		args = append(args, "-v", voice)
	}
	if rate > 0 {
		args = append(args, "-s", strconv.Itoa(rate))
	}
	return append(args, text)
}

// logNarrator writes the text to the log instead of speaking it.
type logNarrator struct{}

func (logNarrator) Name() string { return "log" }

func (logNarrator) Speak(_ context.Context, text string) error {
	slog.Info("narration", slog.String("text", text))
	return nil
}
