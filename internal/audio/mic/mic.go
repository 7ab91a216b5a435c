// Package mic captures mono blocks from the default input device through
// PortAudio and publishes them onto an audio.Queue.
package mic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/desktop-voice-lab/internal/audio"
	"github.com/desktop-voice-lab/internal/logging"
)

// Config selects the stream geometry.
type Config struct {
	SampleRate      int
	FramesPerBuffer int
}

// Source is an open, running capture stream. Close must be called on every
// exit path; it is safe to call more than once.
type Source[S audio.Sample] struct {
	stream *portaudio.Stream
	feeder *audio.Feeder[S]
	q      *audio.Queue[S]

	closeOnce sync.Once
	closeErr  error
}

// Open initialises PortAudio and starts a mono input stream whose callback
// feeds q. On failure everything acquired so far is released.
func Open[S audio.Sample](cfg Config, q *audio.Queue[S]) (*Source[S], error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	s := &Source[S]{feeder: audio.NewFeeder(q), q: q}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, s.callback)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open input stream (%d Hz, %d frames): %w", cfg.SampleRate, cfg.FramesPerBuffer, err)
	}
	s.stream = stream
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	logging.Infow("audio input started", "sample_rate", cfg.SampleRate, "frames_per_buffer", cfg.FramesPerBuffer)
	return s, nil
}

func (s *Source[S]) callback(in []S, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	var a audio.Anomaly
	if flags&portaudio.InputOverflow != 0 {
		a |= audio.Overflow
	}
	if flags&portaudio.InputUnderflow != 0 {
		a |= audio.Underflow
	}
	s.feeder.Feed(in, a)
}

// Close stops the stream, releases the device and closes the queue so a
// consumer blocked in Dequeue wakes up.
func (s *Source[S]) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop stream: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
		}
		s.q.Close()
		if len(errs) > 0 {
			s.closeErr = errors.Join(errs...)
			logging.Warnw("audio input close reported errors", "err", s.closeErr)
		}
		logging.Infow("audio input released",
			"enqueued_chunks", s.q.Enqueued(),
			"dropped_chunks", s.q.Dropped(),
			"overflows", s.feeder.Overflows(),
			"underflows", s.feeder.Underflows())
	})
	return s.closeErr
}
