package wakeword

import (
	"sync"
	"time"
)

// Gate turns per-chunk scores into trigger decisions. A trigger needs the
// best score to reach the threshold and the cooldown to have elapsed since
// the last trigger. The reference point starts at the zero time.
//
// After a trigger the gate is pending until MarkHandled; pending gates never
// trigger.
type Gate struct {
	threshold float64
	cooldown  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	lastTrigger time.Time
	pending     bool
}

// NewGate returns an idle gate. clock may be nil to use time.Now.
func NewGate(threshold float64, cooldown time.Duration, clock func() time.Time) *Gate {
	if clock == nil {
		clock = time.Now
	}
	return &Gate{threshold: threshold, cooldown: cooldown, now: clock}
}

// Decide picks the best label in scores and reports whether it triggers at
// now. A trigger moves lastTrigger to now.
func (g *Gate) Decide(scores ScoreMap, now time.Time) (label string, score float64, triggered bool) {
	label, score = scores.Best()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending || label == "" {
		return label, score, false
	}
	if score >= g.threshold && now.Sub(g.lastTrigger) >= g.cooldown {
		g.lastTrigger = now
		g.pending = true
		return label, score, true
	}
	return label, score, false
}

// MarkHandledNow restarts the cooldown from the gate clock's current time
// and returns the gate to idle. Call it once the triggered command has been
// recorded and transcribed.
func (g *Gate) MarkHandledNow() { g.MarkHandled(g.now()) }

func (g *Gate) MarkHandled(at time.Time) {
	g.mu.Lock()
	g.lastTrigger = at
	g.pending = false
	g.mu.Unlock()
}

func (g *Gate) LastTrigger() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastTrigger
}

// Pending reports whether a trigger is awaiting MarkHandled.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

func (g *Gate) Threshold() float64      { return g.threshold }
func (g *Gate) Cooldown() time.Duration { return g.cooldown }
