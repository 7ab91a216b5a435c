// Package audio holds the sample types, the bounded chunk queue that sits
// between the device callback and the listener loop, and level metering.
package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrQueueClosed = errors.New("audio: queue closed")

// Sample is a PCM sample format the capture device can deliver.
type Sample interface {
	~int16 | ~float32
}

// Chunk is one device block. The queue owns Samples once enqueued and hands
// ownership to whoever dequeues it.
type Chunk[S Sample] struct {
	Samples    []S
	CapturedAt time.Time
}

// Queue is a bounded FIFO of chunks with drop-newest overflow. Enqueue never
// blocks; a single consumer uses Dequeue and Drain.
type Queue[S Sample] struct {
	ch        chan Chunk[S]
	done      chan struct{}
	closeOnce sync.Once

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

func NewQueue[S Sample](capacity int) *Queue[S] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[S]{
		ch:   make(chan Chunk[S], capacity),
		done: make(chan struct{}),
	}
}

// Enqueue offers c without blocking. When the queue is full (or closed) the
// chunk is discarded, the drop counter advances and false is returned.
func (q *Queue[S]) Enqueue(c Chunk[S]) bool {
	select {
	case <-q.done:
		q.dropped.Add(1)
		return false
	default:
	}
	select {
	case q.ch <- c:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue waits for the oldest buffered chunk. Chunks still buffered when the
// queue is closed are delivered before ErrQueueClosed.
func (q *Queue[S]) Dequeue(ctx context.Context) (Chunk[S], error) {
	select {
	case c := <-q.ch:
		return c, nil
	default:
	}
	select {
	case c := <-q.ch:
		return c, nil
	case <-ctx.Done():
		return Chunk[S]{}, ctx.Err()
	case <-q.done:
		select {
		case c := <-q.ch:
			return c, nil
		default:
			return Chunk[S]{}, ErrQueueClosed
		}
	}
}

// Drain discards every buffered chunk and returns how many were removed.
func (q *Queue[S]) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Close wakes a blocked consumer; later enqueues are dropped.
func (q *Queue[S]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *Queue[S]) Len() int         { return len(q.ch) }
func (q *Queue[S]) Cap() int         { return cap(q.ch) }
func (q *Queue[S]) Dropped() uint64  { return q.dropped.Load() }
func (q *Queue[S]) Enqueued() uint64 { return q.enqueued.Load() }
