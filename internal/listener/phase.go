package listener

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/desktop-voice-lab/internal/logging"
)

// Listener phases. Chunks are scored only while Listening; the Reporter is
// told about Recording and Transcribing as the machine enters them.
const (
	Listening    = "listening"
	Recording    = "recording"
	Transcribing = "transcribing"
)

const (
	evDetect   = "detect"
	evRecorded = "recorded"
	evHandled  = "handled"
	evAbort    = "abort"
)

var ErrNotListening = errors.New("listener: not in the listening phase")

func (l *Listener) newPhase() *fsm.FSM {
	return fsm.NewFSM(
		Listening,
		fsm.Events{
			{Name: evDetect, Src: []string{Listening}, Dst: Recording},
			{Name: evRecorded, Src: []string{Recording}, Dst: Transcribing},
			{Name: evHandled, Src: []string{Transcribing}, Dst: Listening},
			{Name: evAbort, Src: []string{Recording, Transcribing}, Dst: Listening},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				logging.DebugwCtx(ctx, "listener phase", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
			"enter_" + Recording: func(context.Context, *fsm.Event) {
				l.deps.Reporter.Recording(l.opts.CommandSeconds)
			},
			"enter_" + Transcribing: func(context.Context, *fsm.Event) {
				l.deps.Reporter.Transcribing()
			},
		},
	)
}

// fire moves the phase machine and reports whether the transition happened.
func (l *Listener) fire(ctx context.Context, event string) bool {
	if err := l.phase.Event(ctx, event); err != nil {
		logging.ErrorwCtx(ctx, "listener phase transition rejected", "event", event, "phase", l.phase.Current(), "error", err)
		return false
	}
	return true
}
