// Package listener runs the detect → record → transcribe loop over the
// capture queue.
package listener

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/desktop-voice-lab/internal/audio"
	"github.com/desktop-voice-lab/internal/logging"
	"github.com/desktop-voice-lab/internal/recorder"
	"github.com/desktop-voice-lab/internal/sink"
	"github.com/desktop-voice-lab/internal/stt"
	"github.com/desktop-voice-lab/internal/wakeword"
)

// Source is the consumer side of the capture queue.
type Source interface {
	recorder.Dequeuer
	Drain() int
}

type Transcriber interface {
	Transcribe(ctx context.Context, clipPath string, cfg stt.ModelConfig) (string, error)
}

// Reporter receives user-facing progress.
type Reporter interface {
	Scores(label string, score float64)
	Detected(label string, score float64)
	Recording(seconds float64)
	Transcribing()
	Heard(text string)
	Failed(stage string, err error)
}

type Options struct {
	SampleRate        int
	CommandSeconds    float64
	RecordGrace       time.Duration
	TranscribeTimeout time.Duration
	Model             stt.ModelConfig

	// DeliverTimeout bounds the hand-off to the sink; zero means
	// DefaultDeliverTimeout.
	DeliverTimeout time.Duration
	// TempDir holds command clips while they are transcribed; "" is the
	// system temp dir.
	TempDir        string
	Clock          func() time.Time
}

const DefaultDeliverTimeout = 10 * time.Second

type Deps struct {
	Source      Source
	Scorer      wakeword.Scorer
	Gate        *wakeword.Gate
	Transcriber Transcriber
	// Sink is optional.
	Sink     sink.Sink
	Reporter Reporter
}

type Listener struct {
	opts  Options
	deps  Deps
	phase *fsm.FSM
	now   func() time.Time
	newID func() string
}

func New(opts Options, deps Deps) *Listener {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = DefaultDeliverTimeout
	}
	l := &Listener{opts: opts, deps: deps, now: now, newID: uuid.NewString}
	l.phase = l.newPhase()
	return l
}

// Phase reports the current listener phase.
func (l *Listener) Phase() string { return l.phase.Current() }

// Run steps until ctx is cancelled or the capture queue closes, both of
// which return nil.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.Step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, audio.ErrQueueClosed):
			return nil
		default:
			return err
		}
	}
}

// Step consumes one chunk. When it triggers the gate, Step also records,
// transcribes and delivers the command before returning. Step refuses to run
// outside the Listening phase.
func (l *Listener) Step(ctx context.Context) error {
	if !l.phase.Is(Listening) {
		return ErrNotListening
	}
	chunk, err := l.deps.Source.Dequeue(ctx)
	if err != nil {
		return err
	}
	scores, err := l.deps.Scorer.Score(ctx, chunk.Samples)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warnw("wake-word scoring failed, chunk skipped", "error", err)
		return nil
	}
	label, score, triggered := l.deps.Gate.Decide(scores, l.now())
	l.deps.Reporter.Scores(label, score)
	if !triggered {
		return nil
	}
	return l.handle(ctx, label, score)
}

func (l *Listener) handle(ctx context.Context, label string, score float64) error {
	cid := l.newID()
	ctx = logging.WithFields(ctx, "correlation_id", cid)
	detectedAt := l.now()
	logging.InfowCtx(ctx, "wake word detected", logging.ScoreFields(label, score)...)
	l.deps.Reporter.Detected(label, score)
	defer l.settle(ctx)
	if !l.fire(ctx, evDetect) {
		return nil
	}

	clip, err := recorder.Record(ctx, l.deps.Source, l.opts.SampleRate, l.opts.CommandSeconds, l.opts.RecordGrace)
	if err != nil {
		l.fire(ctx, evAbort)
		if ctx.Err() != nil || errors.Is(err, audio.ErrQueueClosed) {
			return err
		}
		logging.WarnwCtx(ctx, "command recording failed", "error", err)
		l.deps.Reporter.Failed("record", err)
		return nil
	}
	logging.DebugwCtx(ctx, "command captured", "duration_ms", clip.Duration().Milliseconds())
	path, err := clip.WriteTemp(l.opts.TempDir)
	if err != nil {
		l.fire(ctx, evAbort)
		logging.ErrorwCtx(ctx, "could not stage command clip", "error", err)
		l.deps.Reporter.Failed("record", err)
		return nil
	}
	defer os.Remove(path)
	l.fire(ctx, evRecorded)

	text, err := l.transcribe(ctx, cid, path)
	if err != nil {
		l.fire(ctx, evAbort)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnwCtx(ctx, "transcription failed", "error", err)
		l.deps.Reporter.Failed("transcribe", err)
		return nil
	}
	logging.InfowCtx(ctx, "command transcribed", "text", text, "chars", len(text))
	l.deps.Reporter.Heard(text)

	if text != "" && l.deps.Sink != nil {
		t := sink.Transcript{
			Text:          text,
			Label:         label,
			Score:         score,
			CorrelationID: cid,
			DetectedAt:    detectedAt,
			HandledAt:     l.now(),
		}
		l.deliver(ctx, t)
	}
	l.fire(ctx, evHandled)
	return nil
}

func (l *Listener) transcribe(ctx context.Context, cid, path string) (string, error) {
	if l.opts.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.TranscribeTimeout)
		defer cancel()
	}
	return l.deps.Transcriber.Transcribe(stt.WithCorrelationID(ctx, cid), path, l.opts.Model)
}

// deliver hands t to the sink under DeliverTimeout so a stuck consumer cannot
// hold the loop outside Listening.
func (l *Listener) deliver(ctx context.Context, t sink.Transcript) {
	dctx, cancel := context.WithTimeout(ctx, l.opts.DeliverTimeout)
	defer cancel()
	if err := l.deps.Sink.Deliver(dctx, t); err != nil {
		logging.WarnwCtx(ctx, "transcript delivery failed", "error", err)
	}
}

// settle discards audio captured while the command was handled and restarts
// the cooldown. Every trigger path must have returned the machine to
// Listening by now.
func (l *Listener) settle(ctx context.Context) {
	n := l.deps.Source.Drain()
	l.deps.Gate.MarkHandledNow()
	if !l.phase.Is(Listening) {
		logging.ErrorwCtx(ctx, "trigger handling ended outside listening", "phase", l.phase.Current())
		l.phase.SetState(Listening)
	}
	logging.DebugwCtx(ctx, "listening again", "drained_chunks", n)
}

type nopReporter struct{}

func (nopReporter) Scores(string, float64)   {}
func (nopReporter) Detected(string, float64) {}
func (nopReporter) Recording(float64)        {}
func (nopReporter) Transcribing()            {}
func (nopReporter) Heard(string)             {}
func (nopReporter) Failed(string, error)     {}
