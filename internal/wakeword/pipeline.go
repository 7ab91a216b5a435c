package wakeword

import (
	"fmt"
)

// openWakeWord streaming geometry at 16 kHz.
const (
	blockSamples      = 1280 // 80 ms; one embedding per block
	melContext        = 480  // extra samples so the STFT sees block edges
	melBins           = 32
	embWindow         = 76 // mel frames per embedding
	embStride         = 8  // mel frames per block
	embDim            = 96
	defaultFrames     = 16 // classifier input rows when the model is dynamic
	maxRawSamples     = 160000
	maxMelFrames      = 970
	maxFeatureRows    = 120
	warmupPredictions = 5
)

// inferer runs one float32 model with a single input and output.
type inferer interface {
	Infer(shape []int64, data []float32) ([]float32, error)
	Close() error
}

type classifier struct {
	label       string
	model       inferer
	frames      int
	predictions int
}

// pipeline turns raw samples into mel frames, mel frames into embeddings and
// embeddings into per-label scores, keeping each stage's rolling buffer.
type pipeline struct {
	mel, emb    inferer
	classifiers []*classifier

	raw         []float32
	remainder   []float32
	accumulated int
	melFrames   [][]float32
	features    [][]float32
	last        ScoreMap
}

func newPipeline(mel, emb inferer, classifiers []*classifier) *pipeline {
	p := &pipeline{mel: mel, emb: emb, classifiers: classifiers, last: ScoreMap{}}
	for i := 0; i < embWindow; i++ {
		row := make([]float32, melBins)
		for j := range row {
			row[j] = 1
		}
		p.melFrames = append(p.melFrames, row)
	}
	for _, c := range classifiers {
		p.last[c.label] = 0
	}
	return p
}

// score feeds samples through the pipeline. Input that does not complete an
// 80 ms block is buffered and the previous scores are returned.
func (p *pipeline) score(samples []int16) (ScoreMap, error) {
	n, err := p.feed(samples)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return copyScores(p.last), nil
	}
	groups := n / blockSamples
	out := make(ScoreMap, len(p.classifiers))
	for _, c := range p.classifiers {
		best := 0.0
		for i := groups - 1; i >= 0; i-- {
			end := len(p.features) - i
			start := end - c.frames
			if start < 0 {
				continue
			}
			res, err := c.model.Infer([]int64{1, int64(c.frames), embDim}, flatten(p.features[start:end]))
			if err != nil {
				return nil, fmt.Errorf("classify %s: %w", c.label, err)
			}
			if len(res) > 0 && float64(res[0]) > best {
				best = float64(res[0])
			}
		}
		c.predictions++
		if c.predictions <= warmupPredictions {
			best = 0
		}
		out[c.label] = best
	}
	p.last = out
	return copyScores(out), nil
}

// feed buffers samples and, once a whole number of blocks is available,
// extends the mel and feature buffers. It returns the samples processed.
func (p *pipeline) feed(samples []int16) (int, error) {
	x := make([]float32, 0, len(p.remainder)+len(samples))
	x = append(x, p.remainder...)
	for _, s := range samples {
		x = append(x, float32(s))
	}
	p.remainder = p.remainder[:0]

	if p.accumulated+len(x) >= blockSamples {
		rem := (p.accumulated + len(x)) % blockSamples
		even := x[:len(x)-rem]
		p.bufferRaw(even)
		p.accumulated += len(even)
		p.remainder = append(p.remainder, x[len(x)-rem:]...)
	} else {
		p.bufferRaw(x)
		p.accumulated += len(x)
	}
	if p.accumulated < blockSamples || p.accumulated%blockSamples != 0 {
		return 0, nil
	}
	n := p.accumulated
	p.accumulated = 0

	if err := p.melspectrogram(n); err != nil {
		return 0, err
	}
	for i := n/blockSamples - 1; i >= 0; i-- {
		end := len(p.melFrames) - embStride*i
		start := end - embWindow
		if start < 0 {
			continue
		}
		vec, err := p.emb.Infer([]int64{1, embWindow, melBins, 1}, flatten(p.melFrames[start:end]))
		if err != nil {
			return 0, fmt.Errorf("embedding: %w", err)
		}
		if len(vec) != embDim {
			return 0, fmt.Errorf("embedding: got %d values, want %d", len(vec), embDim)
		}
		p.features = append(p.features, vec)
	}
	if over := len(p.features) - maxFeatureRows; over > 0 {
		p.features = p.features[over:]
	}
	return n, nil
}

func (p *pipeline) bufferRaw(x []float32) {
	p.raw = append(p.raw, x...)
	if over := len(p.raw) - maxRawSamples; over > 0 {
		p.raw = append(p.raw[:0], p.raw[over:]...)
	}
}

// melspectrogram computes frames for the newest n samples plus context and
// applies openWakeWord's x/10 + 2 scaling.
func (p *pipeline) melspectrogram(n int) error {
	start := len(p.raw) - n - melContext
	if start < 0 {
		start = 0
	}
	in := p.raw[start:]
	out, err := p.mel.Infer([]int64{1, int64(len(in))}, in)
	if err != nil {
		return fmt.Errorf("melspectrogram: %w", err)
	}
	if len(out)%melBins != 0 {
		return fmt.Errorf("melspectrogram: %d values is not a multiple of %d bins", len(out), melBins)
	}
	for i := 0; i < len(out); i += melBins {
		row := make([]float32, melBins)
		for j := range row {
			row[j] = out[i+j]/10 + 2
		}
		p.melFrames = append(p.melFrames, row)
	}
	if over := len(p.melFrames) - maxMelFrames; over > 0 {
		p.melFrames = p.melFrames[over:]
	}
	return nil
}

func (p *pipeline) close() error {
	var first error
	for _, m := range append([]inferer{p.mel, p.emb}, classifierModels(p.classifiers)...) {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func classifierModels(cs []*classifier) []inferer {
	out := make([]inferer, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.model)
	}
	return out
}

func flatten(rows [][]float32) []float32 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float32, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func copyScores(m ScoreMap) ScoreMap {
	out := make(ScoreMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
