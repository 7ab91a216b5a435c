//go:build !whispercpp

package stt

import (
	"context"
	"fmt"

	"github.com/desktop-voice-lab/internal/config"
	"github.com/desktop-voice-lab/internal/recorder"
)

// Whisper is unavailable in builds without libwhisper. Build with
// `-tags whispercpp` (and the whisper.cpp library on the linker path) to
// enable in-process transcription, or use WHISPER_BACKEND=http.
type Whisper struct {
	store *ModelStore
}

func NewWhisper(store *ModelStore) *Whisper { return &Whisper{store: store} }

func (w *Whisper) Check(ModelConfig) config.Capability {
	return config.Capability{
		Name:   "speech model (whisper.cpp)",
		Reason: "binary built without the whispercpp tag",
	}
}

var errNoWhisper = fmt.Errorf("%w: rebuild with -tags whispercpp or set WHISPER_BACKEND=http", ErrUnavailable)

func (w *Whisper) Prepare(context.Context, ModelConfig) error { return errNoWhisper }

func (w *Whisper) Segments(context.Context, *recorder.Clip, ModelConfig) ([]string, error) {
	return nil, errNoWhisper
}

func (w *Whisper) Close() error { return nil }
