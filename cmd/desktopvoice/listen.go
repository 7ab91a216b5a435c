package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desktop-voice-lab/internal/audio"
	"github.com/desktop-voice-lab/internal/audio/mic"
	"github.com/desktop-voice-lab/internal/config"
	"github.com/desktop-voice-lab/internal/listener"
	"github.com/desktop-voice-lab/internal/logging"
	"github.com/desktop-voice-lab/internal/recorder"
	"github.com/desktop-voice-lab/internal/sink"
	"github.com/desktop-voice-lab/internal/stt"
	"github.com/desktop-voice-lab/internal/wakeword"
)

const (
	staleClipAge      = time.Hour
	downloadTimeout   = 5 * time.Minute
	sinkTimeout       = 10 * time.Second
	offlineModelHint  = "Connect to the internet once so the model can be downloaded into MODEL_CACHE_DIR, " +
		"or set WAKEWORD to a local .onnx file path in .env."
	offlineSpeechHint = "Connect to the internet once so the speech model can be downloaded into MODEL_CACHE_DIR, " +
		"or set WHISPER_MODEL to a local ggml model file."
)

func runListen(ctx context.Context, cfg config.Config, out io.Writer) error {
	logging.Infow("desktopvoice starting",
		"version", version,
		"wakewords", cfg.Wakewords,
		"threshold", cfg.Threshold,
		"cooldown_s", cfg.Cooldown.Seconds(),
		"wakeword_backend", cfg.WakewordBackend,
		"whisper_backend", cfg.WhisperBackend)
	if n := recorder.SweepStale("", staleClipAge); n > 0 {
		logging.Infow("removed stale command clips", "count", n)
	}

	scorer, err := openScorer(ctx, cfg, out)
	if err != nil {
		return setupFailed(err)
	}
	defer scorer.Close()

	tr, model, tip := openTranscriber(cfg)
	defer tr.Close()
	c := tr.Check(model)
	fmt.Fprintln(out, c)
	if !c.Available {
		return setupFailed(&config.SetupError{
			Err:  fmt.Errorf("%w: %s", stt.ErrUnavailable, c.Reason),
			Hint: "Rebuild with -tags whispercpp, or set WHISPER_BACKEND=http and WHISPER_URL.",
		})
	}
	if err := prepareTranscriber(ctx, tr, model); err != nil {
		return setupFailed(err)
	}

	sinks := openSinks(ctx, cfg)
	defer sinks.Close()

	q := audio.NewQueue[int16](cfg.QueueSize)
	src, err := mic.Open(mic.Config{SampleRate: cfg.SampleRate, FramesPerBuffer: cfg.ChunkFrames()}, q)
	if err != nil {
		return setupFailed(&config.SetupError{
			Err:  err,
			Hint: "Check that a microphone is connected and that this process may use it.",
		})
	}
	defer src.Close()

	gate := wakeword.NewGate(cfg.Threshold, cfg.Cooldown, nil)
	l := listener.New(listener.Options{
		SampleRate:        cfg.SampleRate,
		CommandSeconds:    cfg.CommandSeconds,
		RecordGrace:       cfg.RecordGrace,
		TranscribeTimeout: cfg.TranscribeTimeout,
		Model:             model,
		DeliverTimeout:    sinkTimeout,
	}, listener.Deps{
		Source:      q,
		Scorer:      scorer,
		Gate:        gate,
		Transcriber: tr,
		Sink:        sinks,
		Reporter:    newConsole(out, tip),
	})
	fmt.Fprintf(out, "Listening… say the wake word. (thresh=%.2f cooldown=%.1fs) Ctrl+C to stop.\n",
		gate.Threshold(), gate.Cooldown().Seconds())
	err = l.Run(ctx)
	fmt.Fprintln(out, "\nStopped.")
	logging.Infow("desktopvoice stopped", audio.QueueFieldsOf(q)...)
	return err
}

func openScorer(ctx context.Context, cfg config.Config, out io.Writer) (wakeword.Scorer, error) {
	if cfg.WakewordBackend == "remote" {
		s, err := wakeword.DialRemote(ctx, cfg.WakewordURL, nil)
		c := config.Capability{Name: "wake-word scorer (remote)", Available: err == nil, Reason: cfg.WakewordURL}
		fmt.Fprintln(out, c)
		if err != nil {
			return nil, &config.SetupError{Err: err, Hint: "Start the scoring server or correct WAKEWORD_URL."}
		}
		return s, nil
	}

	c := config.Capability{Name: "wake-word scorer (onnx)", Available: true}
	if err := wakeword.CheckRuntime(cfg.OnnxRuntimeLib); err != nil {
		c.Available, c.Reason = false, err.Error()
		fmt.Fprintln(out, c)
		return nil, &config.SetupError{
			Err:  err,
			Hint: "Install onnxruntime and set ONNXRUNTIME_LIB to the path of the shared library.",
		}
	}
	dctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	r := &wakeword.Resolver{BaseURL: cfg.RegistryURL, CacheDir: cfg.ModelCacheDir, Client: &http.Client{}}
	b, err := r.ResolveBundle(dctx, cfg.Wakewords)
	if err != nil {
		c.Available, c.Reason = false, err.Error()
		fmt.Fprintln(out, c)
		return nil, &config.SetupError{Err: err, Hint: offlineModelHint}
	}
	s, err := wakeword.NewONNXScorer(b, cfg.OnnxRuntimeLib)
	if err != nil {
		c.Available, c.Reason = false, err.Error()
		fmt.Fprintln(out, c)
		hint := offlineModelHint
		if errors.Is(err, wakeword.ErrModelNotFound) {
			hint = "Check the WAKEWORD name, or point it at a local .onnx file."
		}
		return nil, &config.SetupError{Err: err, Hint: hint}
	}
	fmt.Fprintln(out, c)
	return s, nil
}

// openTranscriber also returns the console tip shown after a failed
// transcription.
func openTranscriber(cfg config.Config) (*stt.Transcriber, stt.ModelConfig, string) {
	model := stt.ModelConfig{
		Name:        cfg.WhisperModel,
		Device:      cfg.WhisperDevice,
		ComputeType: cfg.WhisperComputeType,
		Language:    cfg.Language,
		Threads:     cfg.WhisperThreads,
		CacheDir:    cfg.ModelCacheDir,
	}
	vad := stt.DefaultVAD(cfg.VADRMSThreshold)
	if cfg.WhisperBackend == "http" {
		b := &stt.HTTPWhisper{URL: cfg.WhisperURL, Client: &http.Client{}, Attempts: 3, Timeout: cfg.TranscribeTimeout}
		return stt.New(b, vad), model, "check that the server at WHISPER_URL is running and accepts audio/wav."
	}
	store := &stt.ModelStore{BaseURL: stt.DefaultModelURL, Client: &http.Client{}}
	return stt.New(stt.NewWhisper(store), vad), model,
		"check WHISPER_MODEL, or delete a corrupt download from MODEL_CACHE_DIR/whisper."
}

// prepareTranscriber fetches and loads the local speech model before the
// microphone opens, so the first command is not spent downloading weights.
func prepareTranscriber(ctx context.Context, tr *stt.Transcriber, model stt.ModelConfig) error {
	pctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	if err := tr.Prepare(pctx, model); err != nil {
		return &config.SetupError{Err: fmt.Errorf("prepare speech model: %w", err), Hint: offlineSpeechHint}
	}
	return nil
}

// openSinks connects every configured transcript sink. A sink that cannot
// connect is logged and skipped.
func openSinks(ctx context.Context, cfg config.Config) sink.Multi {
	var sinks sink.Multi
	if cfg.TextForwardURL != "" {
		sinks = append(sinks, &sink.HTTPForwarder{URL: cfg.TextForwardURL, Client: &http.Client{}, Attempts: 3, Timeout: sinkTimeout})
	}
	if cfg.MCPServerURL == "" && cfg.MCPCommand == "" {
		return sinks
	}
	m := sink.NewMCPSink(version, cfg.MCPTool)
	cctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	var err error
	if cfg.MCPServerURL != "" {
		err = m.ConnectWebSocket(cctx, cfg.MCPServerURL)
	} else {
		err = m.ConnectCommand(cctx, cfg.MCPCommand)
	}
	if err != nil {
		logging.Warnw("mcp sink unavailable, transcripts will not be sent to it", "error", err)
		return sinks
	}
	return append(sinks, m)
}
