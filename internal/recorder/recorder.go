// Package recorder captures the fixed-length command clip that follows a
// wake-word trigger.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/desktop-voice-lab/internal/audio"
	"github.com/desktop-voice-lab/internal/logging"
)

var ErrRecordingTimeout = errors.New("recording timed out")

// Dequeuer is the consumer side of the capture queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (audio.Chunk[int16], error)
}

// Clip is mono 16-bit PCM.
type Clip struct {
	Samples    []int16
	SampleRate int
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Target is the number of samples a recording of seconds must reach.
func Target(sampleRate int, seconds float64) int {
	return int(math.Round(float64(sampleRate) * seconds))
}

// Record pulls whole chunks from src until at least Target(sampleRate,
// seconds) samples are held. The final chunk is kept intact, so the clip may
// run slightly long. If the target is not reached within seconds+grace the
// partial clip is returned with ErrRecordingTimeout.
func Record(ctx context.Context, src Dequeuer, sampleRate int, seconds float64, grace time.Duration) (*Clip, error) {
	need := Target(sampleRate, seconds)
	clip := &Clip{Samples: make([]int16, 0, need), SampleRate: sampleRate}
	limit := time.Duration(seconds*float64(time.Second)) + grace
	rctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	for len(clip.Samples) < need {
		c, err := src.Dequeue(rctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return clip, fmt.Errorf("%w after %s: captured %d of %d samples", ErrRecordingTimeout, limit, len(clip.Samples), need)
			}
			return clip, fmt.Errorf("record: %w", err)
		}
		clip.Samples = append(clip.Samples, c.Samples...)
	}
	logging.Debugw("command recorded", logging.ClipFields(len(clip.Samples), sampleRate)...)
	return clip, nil
}
