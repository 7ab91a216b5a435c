package stt

import (
	"github.com/desktop-voice-lab/internal/audio"
)

// VAD is an energy gate applied before transcription. Frames whose RMS
// reaches Threshold count as speech; Hangover frames either side of speech
// are kept so word edges survive. A clip with fewer than MinSpeech speech
// frames is treated as silence.
type VAD struct {
	FrameMs   int
	Threshold float64
	Hangover  int
	MinSpeech int
}

// DefaultVAD uses 30 ms frames with 300 ms of padding.
func DefaultVAD(threshold float64) VAD {
	return VAD{FrameMs: 30, Threshold: threshold, Hangover: 10, MinSpeech: 3}
}

// Filter returns the speech-bearing part of samples in original order, or
// nil when the clip holds no speech.
func (v VAD) Filter(samples []int16, sampleRate int) []int16 {
	frameLen := sampleRate * v.FrameMs / 1000
	if frameLen <= 0 || len(samples) == 0 {
		return nil
	}
	n := (len(samples) + frameLen - 1) / frameLen
	speech := make([]bool, n)
	count := 0
	for i := 0; i < n; i++ {
		end := min((i+1)*frameLen, len(samples))
		if audio.RMS16(samples[i*frameLen:end]) >= v.Threshold {
			speech[i] = true
			count++
		}
	}
	if count == 0 || count < v.MinSpeech {
		return nil
	}
	keep := make([]bool, n)
	for i, s := range speech {
		if !s {
			continue
		}
		for j := max(0, i-v.Hangover); j <= min(n-1, i+v.Hangover); j++ {
			keep[j] = true
		}
	}
	out := make([]int16, 0, len(samples))
	for i, k := range keep {
		if k {
			end := min((i+1)*frameLen, len(samples))
			out = append(out, samples[i*frameLen:end]...)
		}
	}
	return out
}
