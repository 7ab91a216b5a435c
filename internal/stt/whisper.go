//go:build whispercpp

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/desktop-voice-lab/internal/config"
	"github.com/desktop-voice-lab/internal/logging"
	"github.com/desktop-voice-lab/internal/recorder"
)

const (
	whisperRate = 16000
	// closeWait bounds how long Close waits for an abandoned inference.
	closeWait = 30 * time.Second
)

// Whisper runs whisper.cpp in-process. The model is loaded by Prepare or on
// first use and kept for later clips. Every use of the model, including a
// swap or free, happens while holding busy, so a worker abandoned by its
// caller never sees the model closed under it.
type Whisper struct {
	store *ModelStore
	busy  slot

	mu        sync.Mutex
	model     whisper.Model
	modelPath string
}

func NewWhisper(store *ModelStore) *Whisper {
	return &Whisper{store: store, busy: newSlot()}
}

func (w *Whisper) Check(cfg ModelConfig) config.Capability {
	c := config.Capability{Name: "speech model (whisper.cpp)", Available: true, Reason: "weights download at startup"}
	if path, ok := w.store.Cached(cfg); ok {
		c.Reason = path
	}
	return c
}

// Prepare downloads the weights if they are not cached and loads them.
func (w *Whisper) Prepare(ctx context.Context, cfg ModelConfig) error {
	if err := w.busy.acquire(ctx); err != nil {
		return err
	}
	defer w.busy.release()
	_, err := w.load(ctx, cfg)
	return err
}

// load must be called with busy held.
func (w *Whisper) load(ctx context.Context, cfg ModelConfig) (whisper.Model, error) {
	path, err := w.store.Path(ctx, cfg)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model != nil && w.modelPath == path {
		return w.model, nil
	}
	if w.model != nil {
		_ = w.model.Close()
		w.model = nil
	}
	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrUnavailable, path, err)
	}
	logging.Infow("speech model loaded", "path", path, "device", cfg.Device, "multilingual", m.IsMultilingual())
	w.model, w.modelPath = m, path
	return m, nil
}

func (w *Whisper) Segments(ctx context.Context, clip *recorder.Clip, cfg ModelConfig) ([]string, error) {
	if clip.SampleRate != whisperRate {
		return nil, fmt.Errorf("whisper needs %d Hz audio, clip is %d Hz", whisperRate, clip.SampleRate)
	}
	if err := w.busy.acquire(ctx); err != nil {
		return nil, err
	}
	model, err := w.load(ctx, cfg)
	if err != nil {
		w.busy.release()
		return nil, err
	}

	type result struct {
		segs []string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer w.busy.release()
		segs, err := w.run(model, clip, cfg)
		done <- result{segs, err}
	}()
	select {
	case r := <-done:
		return r.segs, r.err
	case <-ctx.Done():
		// whisper.cpp cannot be interrupted; the worker finishes in the
		// background and releases busy.
		return nil, fmt.Errorf("transcription abandoned: %w", ctx.Err())
	}
}

func (w *Whisper) run(model whisper.Model, clip *recorder.Clip, cfg ModelConfig) ([]string, error) {
	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper context: %w", err)
	}
	if cfg.Language != "" && model.IsMultilingual() {
		if err := wctx.SetLanguage(strings.ToLower(cfg.Language)); err != nil {
			return nil, fmt.Errorf("whisper language %q: %w", cfg.Language, err)
		}
	}
	if cfg.Threads > 0 {
		wctx.SetThreads(uint(cfg.Threads))
	}
	samples := make([]float32, len(clip.Samples))
	for i, s := range clip.Samples {
		samples[i] = float32(s) / 32768
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper process: %w", err)
	}
	var segs []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return segs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("whisper segment: %w", err)
		}
		segs = append(segs, seg.Text)
	}
}

// Close frees the model once no inference holds it. If an abandoned worker
// is still running after closeWait the model is left allocated.
func (w *Whisper) Close() error {
	if !w.busy.drain(closeWait) {
		logging.Warnw("speech model still in use, not freeing it", "waited", closeWait)
		return nil
	}
	defer w.busy.release()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
