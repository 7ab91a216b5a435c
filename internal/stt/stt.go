// Package stt turns recorded command clips into text.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desktop-voice-lab/internal/config"
	"github.com/desktop-voice-lab/internal/logging"
	"github.com/desktop-voice-lab/internal/recorder"
)

var ErrUnavailable = errors.New("speech model unavailable")

// ModelConfig selects the speech model and how it runs.
type ModelConfig struct {
	Name        string // model name ("small") or path to a model file
	Device      string
	ComputeType string
	Language    string
	Threads     int
	CacheDir    string
}

// Backend decodes speech-only audio into text segments.
type Backend interface {
	Segments(ctx context.Context, clip *recorder.Clip, cfg ModelConfig) ([]string, error)
	Check(cfg ModelConfig) config.Capability
	Close() error
}

// Preparer is implemented by backends that can fetch and load their model
// before the first clip arrives.
type Preparer interface {
	Prepare(ctx context.Context, cfg ModelConfig) error
}

// Transcriber reads a clip file, removes silence and hands the rest to a
// backend.
type Transcriber struct {
	backend Backend
	vad     VAD
}

func New(backend Backend, vad VAD) *Transcriber {
	return &Transcriber{backend: backend, vad: vad}
}

// Transcribe returns the text spoken in the WAV at clipPath. A clip without
// speech yields "" and no error; decoding and model failures are returned.
func (t *Transcriber) Transcribe(ctx context.Context, clipPath string, cfg ModelConfig) (string, error) {
	clip, err := recorder.ReadWAV(clipPath)
	if err != nil {
		return "", fmt.Errorf("read clip: %w", err)
	}
	speech := t.vad.Filter(clip.Samples, clip.SampleRate)
	if len(speech) == 0 {
		logging.DebugwCtx(ctx, "no speech in clip", logging.ClipFields(len(clip.Samples), clip.SampleRate)...)
		return "", nil
	}
	start := time.Now()
	segs, err := t.backend.Segments(ctx, &recorder.Clip{Samples: speech, SampleRate: clip.SampleRate}, cfg)
	if err != nil {
		return "", err
	}
	text := JoinSegments(segs)
	logging.DebugwCtx(ctx, "transcribed clip",
		"speech_samples", len(speech), "segments", len(segs), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Prepare readies the backend's model ahead of use. Backends without a
// local model have nothing to do.
func (t *Transcriber) Prepare(ctx context.Context, cfg ModelConfig) error {
	p, ok := t.backend.(Preparer)
	if !ok {
		return nil
	}
	return p.Prepare(ctx, cfg)
}

func (t *Transcriber) Check(cfg ModelConfig) config.Capability { return t.backend.Check(cfg) }
func (t *Transcriber) Close() error                            { return t.backend.Close() }

// JoinSegments trims each segment, drops empty ones and joins the rest with
// single spaces.
func JoinSegments(segs []string) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// ModelFile maps a model name and compute type to a ggml weights file:
// ("small", "int8") → "ggml-small-q8_0.bin". Names that already look like
// files are returned unchanged.
func ModelFile(name, computeType string) string {
	if strings.HasSuffix(name, ".bin") {
		return name
	}
	switch strings.ToLower(computeType) {
	case "int8", "int8_float16", "int8_float32", "q8_0":
		return "ggml-" + name + "-q8_0.bin"
	case "int5", "q5_0":
		return "ggml-" + name + "-q5_0.bin"
	default:
		return "ggml-" + name + ".bin"
	}
}
