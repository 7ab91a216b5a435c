package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/desktop-voice-lab/internal/audio"
	"github.com/desktop-voice-lab/internal/audio/mic"
	"github.com/desktop-voice-lab/internal/config"
)

func runMeter(ctx context.Context, cfg config.Config, out io.Writer) error {
	q := audio.NewQueue[float32](cfg.QueueSize)
	src, err := mic.Open(mic.Config{SampleRate: cfg.SampleRate, FramesPerBuffer: cfg.ChunkFrames()}, q)
	if err != nil {
		return setupFailed(&config.SetupError{
			Err:  err,
			Hint: "Check that a microphone is connected and that this process may use it.",
		})
	}
	defer src.Close()

	fmt.Fprintln(out, "Starting mic stream… Ctrl+C to stop.")
	err = meter(ctx, q, out)
	fmt.Fprintln(out)
	return err
}

// meter prints one level line per chunk until ctx ends or q closes.
func meter(ctx context.Context, q *audio.Queue[float32], out io.Writer) error {
	for {
		c, err := q.Dequeue(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, audio.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		rms, peak := audio.Level(c.Samples)
		fmt.Fprintf(out, "\rRMS=%0.4f  PEAK=%0.4f  %-50s", rms, peak, audio.Bar(peak))
	}
}
