package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/desktop-voice-lab/internal/logging"
)

// Anomaly flags reported by a capture driver alongside a block.
type Anomaly uint8

const (
	Overflow Anomaly = 1 << iota
	Underflow
)

// reportEvery bounds how often repeated anomalies and drops are logged.
const reportEvery = 5 * time.Second

// Feeder turns device blocks into queued chunks. Feed runs on the driver's
// real-time thread: it copies the block, offers it to the queue and returns.
// It never blocks, sleeps or retries.
type Feeder[S Sample] struct {
	q   *Queue[S]
	now func() time.Time

	firstBlock  sync.Once
	overflows   atomic.Uint64
	underflows  atomic.Uint64
	lastAnomaly atomic.Int64
	lastDrop    atomic.Int64
}

func NewFeeder[S Sample](q *Queue[S]) *Feeder[S] {
	return &Feeder[S]{q: q, now: time.Now}
}

// Feed handles one block delivered by the driver.
func (f *Feeder[S]) Feed(in []S, flags Anomaly) {
	f.firstBlock.Do(func() {
		logging.Infow("callback frames per block", "frames", len(in))
	})
	if flags != 0 {
		f.noteAnomaly(flags)
	}
	buf := make([]S, len(in))
	copy(buf, in)
	if !f.q.Enqueue(Chunk[S]{Samples: buf, CapturedAt: f.now()}) && f.due(&f.lastDrop) {
		logging.Debugw("dropping chunks; queue full", QueueFieldsOf(f.q)...)
	}
}

// due reports whether a report guarded by last may be logged now, and if so
// claims the slot.
func (f *Feeder[S]) due(last *atomic.Int64) bool {
	now := f.now().UnixNano()
	prev := last.Load()
	if prev != 0 && now-prev < int64(reportEvery) {
		return false
	}
	return last.CompareAndSwap(prev, now)
}

func (f *Feeder[S]) noteAnomaly(flags Anomaly) {
	if flags&Overflow != 0 {
		f.overflows.Add(1)
	}
	if flags&Underflow != 0 {
		f.underflows.Add(1)
	}
	if !f.due(&f.lastAnomaly) {
		return
	}
	logging.Warnw("audio device status",
		"overflow", flags&Overflow != 0,
		"underflow", flags&Underflow != 0,
		"overflows_total", f.overflows.Load(),
		"underflows_total", f.underflows.Load())
}

// Overflows and Underflows report how many blocks carried each flag.
func (f *Feeder[S]) Overflows() uint64  { return f.overflows.Load() }
func (f *Feeder[S]) Underflows() uint64 { return f.underflows.Load() }

// QueueFieldsOf returns the log fields describing q.
func QueueFieldsOf[S Sample](q *Queue[S]) []interface{} {
	return logging.QueueFields(q.Len(), q.Cap(), q.Dropped())
}
