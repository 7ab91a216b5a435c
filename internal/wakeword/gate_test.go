package wakeword

import (
	"testing"
	"time"
)

// at returns a time offset from the gate's initial reference point.
func at(sec float64) time.Time {
	return time.Time{}.Add(time.Duration(sec * float64(time.Second)))
}

func TestGateCooldownMeasuredAgainstTime(t *testing.T) {
	const T, eps = 0.6, 0.01
	cases := []struct {
		times []float64
		want  []bool
	}{
		{times: []float64{0, 0.5}, want: []bool{false, false}},
		{times: []float64{0, 1.5}, want: []bool{false, true}},
	}
	for _, tc := range cases {
		g := NewGate(T, time.Second, nil)
		scores := []float64{T - eps, T + eps}
		for i, sec := range tc.times {
			_, _, got := g.Decide(ScoreMap{"hey_app": scores[i]}, at(sec))
			if got != tc.want[i] {
				t.Fatalf("times=%v step %d: want=%v got=%v", tc.times, i, tc.want[i], got)
			}
		}
	}
}

func TestGateMarkHandledResetsReference(t *testing.T) {
	const C = 1.0
	g := NewGate(0.5, time.Second, nil)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, _, ok := g.Decide(ScoreMap{"a": 0.9}, base); !ok {
		t.Fatalf("expected initial trigger")
	}
	t1 := base.Add(3 * time.Second)
	g.MarkHandled(t1)
	if g.Pending() {
		t.Fatalf("gate should be idle after MarkHandled")
	}
	if _, _, ok := g.Decide(ScoreMap{"a": 0.9}, t1.Add(100*time.Millisecond)); ok {
		t.Fatalf("trigger inside cooldown after handling")
	}
	later := t1.Add(time.Duration((C + 0.1) * float64(time.Second)))
	if _, _, ok := g.Decide(ScoreMap{"a": 0.9}, later); !ok {
		t.Fatalf("expected trigger once cooldown elapsed after handling")
	}
}

func TestGateEndToEndDefaults(t *testing.T) {
	now := time.Now()
	g := NewGate(0.6, 2500*time.Millisecond, func() time.Time { return now })
	if g.Threshold() != 0.6 || g.Cooldown() != 2500*time.Millisecond {
		t.Fatalf("settings: want=(0.6, 2.5s) got=(%v, %v)", g.Threshold(), g.Cooldown())
	}
	label, score, ok := g.Decide(ScoreMap{"hey_app": 0.9}, now)
	if !ok || label != "hey_app" || score != 0.9 {
		t.Fatalf("want (hey_app, 0.9, true) got (%s, %v, %v)", label, score, ok)
	}
	if !g.LastTrigger().Equal(now) {
		t.Fatalf("lastTrigger should be the detection time")
	}
	g.MarkHandledNow()
	_, _, ok = g.Decide(ScoreMap{"hey_app": 0.9}, now.Add(time.Second))
	if ok {
		t.Fatalf("replay within cooldown must not trigger")
	}
}

func TestGatePendingSuppressesTriggers(t *testing.T) {
	g := NewGate(0.5, 0, nil)
	if _, _, ok := g.Decide(ScoreMap{"a": 1}, at(10)); !ok {
		t.Fatalf("expected trigger")
	}
	if _, _, ok := g.Decide(ScoreMap{"a": 1}, at(20)); ok {
		t.Fatalf("pending gate must not trigger again")
	}
	g.MarkHandled(at(20))
	if _, _, ok := g.Decide(ScoreMap{"a": 1}, at(20)); !ok {
		t.Fatalf("zero cooldown should trigger immediately after handling")
	}
}

func TestGateBelowThresholdLeavesState(t *testing.T) {
	g := NewGate(0.6, time.Second, nil)
	label, score, ok := g.Decide(ScoreMap{"a": 0.2, "b": 0.4}, at(5))
	if ok || label != "b" || score != 0.4 {
		t.Fatalf("want (b, 0.4, false) got (%s, %v, %v)", label, score, ok)
	}
	if !g.LastTrigger().IsZero() || g.Pending() {
		t.Fatalf("non-trigger must not change state")
	}
}
