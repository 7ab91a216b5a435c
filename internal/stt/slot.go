package stt

import (
	"context"
	"time"
)

// slot is a one-holder lock whose acquisition honours a context. The holder
// may be a goroutine that outlives the caller that started it.
type slot chan struct{}

func newSlot() slot { return make(slot, 1) }

func (s slot) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s slot) release() { <-s }

// drain acquires the slot, giving up after d. It reports whether the slot is
// now held by the caller.
func (s slot) drain(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.acquire(ctx) == nil
}
