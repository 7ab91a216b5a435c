package wakeword

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNormalizeShapes(t *testing.T) {
	cases := []struct {
		name  string
		raw   any
		label string
		want  float64
	}{
		{"scalar", 0.7, DefaultLabel, 0.7},
		{"float32 scalar", float32(0.5), DefaultLabel, 0.5},
		{"json number", json.Number("0.25"), DefaultLabel, 0.25},
		{"nil", nil, DefaultLabel, 0},
		{"empty map", map[string]float64{}, DefaultLabel, 0},
		{"map", map[string]float64{"hey_jarvis": 0.8}, "hey_jarvis", 0.8},
		{"float32 map", map[string]float32{"alexa": 0.5}, "alexa", 0.5},
		{"decoded json", map[string]any{"x": 0.3}, "x", 0.3},
		{"clamped high", 1.7, DefaultLabel, 1},
		{"clamped low", -0.2, DefaultLabel, 0},
		{"nan", math.NaN(), DefaultLabel, 0},
	}
	for _, tc := range cases {
		m, err := Normalize(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(m) != 1 {
			t.Fatalf("%s: want one entry got %v", tc.name, m)
		}
		if got, ok := m[tc.label]; !ok || got != tc.want {
			t.Fatalf("%s: want %s=%v got %v", tc.name, tc.label, tc.want, m)
		}
	}
}

func TestNormalizeRejectsUnknown(t *testing.T) {
	if _, err := Normalize("loud"); err == nil {
		t.Fatalf("expected error for string score")
	}
	if _, err := Normalize(map[string]any{"a": "high"}); err == nil {
		t.Fatalf("expected error for string map value")
	}
}

func TestBestTieBreakIsLexicographic(t *testing.T) {
	m := ScoreMap{"zulu": 0.8, "alpha": 0.8, "mike": 0.5}
	for i := 0; i < 20; i++ {
		label, score := m.Best()
		if label != "alpha" || score != 0.8 {
			t.Fatalf("want alpha/0.8 got %s/%v", label, score)
		}
	}
	if l, s := (ScoreMap{}).Best(); l != "" || s != 0 {
		t.Fatalf("empty map: want (\"\", 0) got (%q, %v)", l, s)
	}
}
