// Package wakeword scores audio for wake words and gates detections with a
// threshold and cooldown.
package wakeword

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// DefaultLabel names the score of a model that reports a bare number.
const DefaultLabel = "wakeword"

// ScoreMap maps wake-word labels to confidences in [0, 1].
type ScoreMap map[string]float64

// Scorer consumes consecutive 16 kHz int16 chunks and scores each one. It
// keeps a rolling window across calls, so one caller must feed chunks in
// capture order.
type Scorer interface {
	Score(ctx context.Context, samples []int16) (ScoreMap, error)
	Close() error
}

// Best returns the highest-scoring label. Equal scores resolve to the
// lexicographically smallest label so the choice does not depend on map
// iteration order. An empty map yields ("", 0).
func (m ScoreMap) Best() (string, float64) {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	best, score := "", math.Inf(-1)
	for _, l := range labels {
		if m[l] > score {
			best, score = l, m[l]
		}
	}
	if best == "" {
		return "", 0
	}
	return best, score
}

// Normalize converts whatever a scoring backend produced into a ScoreMap.
// Maps keep their labels, a single number becomes {DefaultLabel: v} and nil
// or an empty map becomes {DefaultLabel: 0}. Values are clamped into [0, 1]
// and NaN is treated as 0.
func Normalize(raw any) (ScoreMap, error) {
	out := ScoreMap{}
	switch v := raw.(type) {
	case nil:
	case ScoreMap:
		for k, s := range v {
			out[k] = clamp(s)
		}
	case map[string]float64:
		for k, s := range v {
			out[k] = clamp(s)
		}
	case map[string]float32:
		for k, s := range v {
			out[k] = clamp(float64(s))
		}
	case map[string]any:
		for k, s := range v {
			f, err := number(s)
			if err != nil {
				return nil, fmt.Errorf("score for %q: %w", k, err)
			}
			out[k] = clamp(f)
		}
	default:
		f, err := number(v)
		if err != nil {
			return nil, err
		}
		out[DefaultLabel] = clamp(f)
	}
	if len(out) == 0 {
		out[DefaultLabel] = 0
	}
	return out, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("unsupported score type %T", v)
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
