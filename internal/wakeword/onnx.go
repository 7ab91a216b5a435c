package wakeword

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/desktop-voice-lab/internal/logging"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireRuntime initialises the process-wide onnxruntime environment on
// first use. libPath may be empty to use the library's default lookup.
func acquireRuntime(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseRuntime() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			logging.Warnw("onnxruntime shutdown failed", "err", err)
		}
	}
}

// CheckRuntime reports whether the onnxruntime shared library can be loaded.
func CheckRuntime(libPath string) error {
	if err := acquireRuntime(libPath); err != nil {
		return err
	}
	releaseRuntime()
	return nil
}

type ortModel struct {
	path    string
	session *ort.DynamicAdvancedSession
	input   ort.InputOutputInfo
}

func openModel(path string) (*ortModel, error) {
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if len(ins) == 0 || len(outs) == 0 {
		return nil, fmt.Errorf("%s: model has no inputs or outputs", path)
	}
	sess, err := ort.NewDynamicAdvancedSession(path, []string{ins[0].Name}, []string{outs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &ortModel{path: path, session: sess, input: ins[0]}, nil
}

func (m *ortModel) Infer(shape []int64, data []float32) ([]float32, error) {
	in, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("%s: input tensor: %w", m.path, err)
	}
	defer in.Destroy()
	outs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("%s: run: %w", m.path, err)
	}
	defer outs[0].Destroy()
	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output %T", m.path, outs[0])
	}
	return append([]float32(nil), t.GetData()...), nil
}

func (m *ortModel) Close() error { return m.session.Destroy() }

// frames reads the classifier's expected feature rows from its input shape
// [batch, frames, 96].
func (m *ortModel) frames() int {
	d := m.input.Dimensions
	if len(d) >= 2 && d[1] > 0 {
		return int(d[1])
	}
	return defaultFrames
}

// ONNXScorer runs openWakeWord models through onnxruntime.
type ONNXScorer struct {
	p *pipeline
}

// NewONNXScorer loads the feature models and one classifier per label in b.
func NewONNXScorer(b Bundle, libPath string) (*ONNXScorer, error) {
	if err := acquireRuntime(libPath); err != nil {
		return nil, err
	}
	var opened []inferer
	fail := func(err error) (*ONNXScorer, error) {
		for _, m := range opened {
			_ = m.Close()
		}
		releaseRuntime()
		return nil, err
	}
	mel, err := openModel(b.Mel)
	if err != nil {
		return fail(err)
	}
	opened = append(opened, mel)
	emb, err := openModel(b.Embedding)
	if err != nil {
		return fail(err)
	}
	opened = append(opened, emb)

	labels := make([]string, 0, len(b.Classifier))
	for l := range b.Classifier {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	var cs []*classifier
	for _, l := range labels {
		m, err := openModel(b.Classifier[l])
		if err != nil {
			return fail(err)
		}
		opened = append(opened, m)
		cs = append(cs, &classifier{label: l, model: m, frames: m.frames()})
		logging.Infow("wake-word model loaded", "label", l, "path", b.Classifier[l], "frames", m.frames())
	}
	return &ONNXScorer{p: newPipeline(mel, emb, cs)}, nil
}

func (s *ONNXScorer) Score(ctx context.Context, samples []int16) (ScoreMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.p.score(samples)
}

func (s *ONNXScorer) Close() error {
	err := s.p.close()
	releaseRuntime()
	return err
}
