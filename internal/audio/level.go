package audio

import (
	"math"
	"strings"
)

// Level returns the RMS and absolute peak of float samples in [-1, 1].
func Level(samples []float32) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return math.Sqrt(sum / float64(len(samples))), peak
}

// RMS16 returns the root-mean-square of int16 samples on the int16 scale.
func RMS16(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// MaxBar is the widest meter bar Bar will draw.
const MaxBar = 50

// Bar renders a peak level as a run of '#', one per percent, capped at
// MaxBar.
func Bar(peak float64) string {
	n := int(peak * 100)
	if n < 0 {
		n = 0
	}
	if n > MaxBar {
		n = MaxBar
	}
	return strings.Repeat("#", n)
}
