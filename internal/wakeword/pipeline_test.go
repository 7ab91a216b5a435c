package wakeword

import (
	"fmt"
	"math"
	"testing"
)

// fakeMel emits one 32-bin frame per 160 samples after the first 400, like
// a 25 ms / 10 ms STFT.
type fakeMel struct{ calls int }

func (f *fakeMel) Infer(shape []int64, data []float32) ([]float32, error) {
	f.calls++
	if len(shape) != 2 || shape[1] != int64(len(data)) {
		return nil, fmt.Errorf("bad mel shape %v for %d samples", shape, len(data))
	}
	frames := 0
	if len(data) >= 400 {
		frames = (len(data)-400)/160 + 1
	}
	return make([]float32, frames*melBins), nil
}
func (f *fakeMel) Close() error { return nil }

// fakeEmb numbers embeddings in creation order in element 0.
type fakeEmb struct{ n int }

func (f *fakeEmb) Infer(shape []int64, data []float32) ([]float32, error) {
	if len(data) != embWindow*melBins {
		return nil, fmt.Errorf("bad embedding window %d", len(data))
	}
	f.n++
	v := make([]float32, embDim)
	v[0] = float32(f.n)
	return v, nil
}
func (f *fakeEmb) Close() error { return nil }

// fakeCls scores a window by the sequence number of its newest embedding.
type fakeCls struct{ calls int }

func (f *fakeCls) Infer(shape []int64, data []float32) ([]float32, error) {
	f.calls++
	rows := int(shape[1])
	if len(data) != rows*embDim {
		return nil, fmt.Errorf("bad classifier input %d for shape %v", len(data), shape)
	}
	newest := data[(rows-1)*embDim]
	return []float32{newest / 100}, nil
}
func (f *fakeCls) Close() error { return nil }

func newTestPipeline() (*pipeline, *fakeMel, *fakeEmb, *fakeCls) {
	mel, emb, cls := &fakeMel{}, &fakeEmb{}, &fakeCls{}
	p := newPipeline(mel, emb, []*classifier{{label: "hey_app", model: cls, frames: defaultFrames}})
	return p, mel, emb, cls
}

func TestPipelineWarmupThenMaxOverBlocks(t *testing.T) {
	p, _, emb, cls := newTestPipeline()
	chunk := make([]int16, 7680)
	for i := 1; i <= warmupPredictions; i++ {
		s, err := p.score(chunk)
		if err != nil {
			t.Fatalf("score %d: %v", i, err)
		}
		if s["hey_app"] != 0 {
			t.Fatalf("warm-up prediction %d: want=0 got=%v", i, s["hey_app"])
		}
	}
	if emb.n != 6*warmupPredictions {
		t.Fatalf("embeddings: want=%d got=%d", 6*warmupPredictions, emb.n)
	}
	s, err := p.score(chunk)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// Six blocks per chunk; the newest window ends at embedding 36.
	if got := s["hey_app"]; math.Abs(got-0.36) > 1e-6 {
		t.Fatalf("score: want=0.36 got=%v", got)
	}
	if cls.calls == 0 {
		t.Fatalf("classifier never ran")
	}
}

func TestPipelineBuffersPartialBlocks(t *testing.T) {
	p, mel, _, _ := newTestPipeline()
	s, err := p.score(make([]int16, 1000))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if mel.calls != 0 {
		t.Fatalf("mel must not run before a full block")
	}
	if v, ok := s["hey_app"]; !ok || v != 0 {
		t.Fatalf("partial input should return previous scores, got %v", s)
	}
	if _, err := p.score(make([]int16, 300)); err != nil {
		t.Fatalf("score: %v", err)
	}
	if mel.calls != 1 {
		t.Fatalf("mel calls after 1300 samples: want=1 got=%d", mel.calls)
	}
	if len(p.remainder) != 20 {
		t.Fatalf("remainder: want=20 got=%d", len(p.remainder))
	}
}

func TestPipelineBoundsBuffers(t *testing.T) {
	p, _, _, _ := newTestPipeline()
	chunk := make([]int16, 7680)
	for i := 0; i < 40; i++ {
		if _, err := p.score(chunk); err != nil {
			t.Fatalf("score: %v", err)
		}
	}
	if len(p.features) > maxFeatureRows {
		t.Fatalf("features: %d rows exceeds %d", len(p.features), maxFeatureRows)
	}
	if len(p.melFrames) > maxMelFrames {
		t.Fatalf("mel frames: %d exceeds %d", len(p.melFrames), maxMelFrames)
	}
	if len(p.raw) > maxRawSamples {
		t.Fatalf("raw: %d exceeds %d", len(p.raw), maxRawSamples)
	}
}
