package stt

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/desktop-voice-lab/internal/config"
	"github.com/desktop-voice-lab/internal/recorder"
)

type fakeBackend struct {
	segs  []string
	err   error
	calls int
	got   *recorder.Clip
}

func (f *fakeBackend) Segments(_ context.Context, clip *recorder.Clip, _ ModelConfig) ([]string, error) {
	f.calls++
	f.got = clip
	return f.segs, f.err
}
func (f *fakeBackend) Check(ModelConfig) config.Capability { return config.Capability{Available: true} }
func (f *fakeBackend) Close() error                        { return nil }

func tone(n int, amp float64) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return s
}

func writeClip(t *testing.T, samples []int16) string {
	t.Helper()
	p, err := (&recorder.Clip{Samples: samples, SampleRate: 16000}).WriteTemp(t.TempDir())
	if err != nil {
		t.Fatalf("WriteTemp: %v", err)
	}
	return p
}

func TestTranscribeSilenceIsEmptyNotError(t *testing.T) {
	b := &fakeBackend{segs: []string{"should not appear"}}
	tr := New(b, DefaultVAD(500))
	text, err := tr.Transcribe(context.Background(), writeClip(t, make([]int16, 48000)), ModelConfig{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Fatalf("want empty transcript got %q", text)
	}
	if b.calls != 0 {
		t.Fatalf("backend should not run on silence")
	}
}

func TestTranscribeJoinsSegments(t *testing.T) {
	b := &fakeBackend{segs: []string{"  open the ", "", "pod bay doors  "}}
	tr := New(b, DefaultVAD(500))
	samples := append(make([]int16, 16000), tone(16000, 8000)...)
	samples = append(samples, make([]int16, 16000)...)
	text, err := tr.Transcribe(context.Background(), writeClip(t, samples), ModelConfig{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "open the pod bay doors" {
		t.Fatalf("text: want=%q got=%q", "open the pod bay doors", text)
	}
	if b.got == nil || len(b.got.Samples) >= len(samples) {
		t.Fatalf("backend should receive the silence-trimmed clip")
	}
}

func TestTranscribeSurfacesErrors(t *testing.T) {
	boom := errors.New("decoder missing")
	tr := New(&fakeBackend{err: boom}, DefaultVAD(500))
	if _, err := tr.Transcribe(context.Background(), writeClip(t, tone(16000, 8000)), ModelConfig{}); !errors.Is(err, boom) {
		t.Fatalf("want backend error got %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), ModelConfig{}); err == nil {
		t.Fatalf("missing clip should be an error")
	}
}

func TestVADFilter(t *testing.T) {
	v := DefaultVAD(500)
	if got := v.Filter(make([]int16, 16000), 16000); got != nil {
		t.Fatalf("silence should yield nil, got %d samples", len(got))
	}
	click := make([]int16, 16000)
	for i := 0; i < 480; i++ {
		click[i] = 20000
	}
	if got := v.Filter(click, 16000); got != nil {
		t.Fatalf("single-frame click should be rejected")
	}
	samples := append(make([]int16, 32000), tone(8000, 8000)...)
	samples = append(samples, make([]int16, 32000)...)
	got := v.Filter(samples, 16000)
	// 0.5 s of speech, partial edge frames and 300 ms of padding each side.
	if len(got) < 8000 || len(got) > 8000+2*4800+2*480 {
		t.Fatalf("filtered length out of range: %d", len(got))
	}
}

func TestJoinSegmentsAndModelFile(t *testing.T) {
	if got := JoinSegments([]string{" a ", "b", "  ", "c "}); got != "a b c" {
		t.Fatalf("join: got %q", got)
	}
	if JoinSegments(nil) != "" {
		t.Fatalf("join of nothing should be empty")
	}
	cases := map[[2]string]string{
		{"small", "int8"}:      "ggml-small-q8_0.bin",
		{"base.en", "float16"}: "ggml-base.en.bin",
		{"tiny", "q5_0"}:       "ggml-tiny-q5_0.bin",
		{"custom.bin", "int8"}: "custom.bin",
		{"medium", "default"}:  "ggml-medium.bin",
	}
	for in, want := range cases {
		if got := ModelFile(in[0], in[1]); got != want {
			t.Fatalf("ModelFile(%s, %s): want=%s got=%s", in[0], in[1], want, got)
		}
	}
}

func TestModelStoreDownloadsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/ggml-small-q8_0.bin" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ggml"))
	}))
	defer srv.Close()
	s := &ModelStore{BaseURL: srv.URL, Client: srv.Client()}
	cfg := ModelConfig{Name: "small", ComputeType: "int8", CacheDir: t.TempDir()}
	if _, ok := s.Cached(cfg); ok {
		t.Fatalf("nothing should be cached yet")
	}
	p, err := s.Path(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if b, _ := os.ReadFile(p); string(b) != "ggml" {
		t.Fatalf("content: got %q", b)
	}
	if _, err := s.Path(context.Background(), cfg); err != nil || hits != 1 {
		t.Fatalf("second Path should hit the cache: hits=%d err=%v", hits, err)
	}
	cfg.Name = "nonexistent"
	if _, err := s.Path(context.Background(), cfg); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable got %v", err)
	}
}

type preparingBackend struct {
	fakeBackend
	err      error
	prepared []string
}

func (p *preparingBackend) Prepare(_ context.Context, cfg ModelConfig) error {
	p.prepared = append(p.prepared, cfg.Name)
	return p.err
}

func TestPrepareUsesBackendWhenSupported(t *testing.T) {
	if err := New(&fakeBackend{}, DefaultVAD(500)).Prepare(context.Background(), ModelConfig{}); err != nil {
		t.Fatalf("backend without a model: want nil got %v", err)
	}

	b := &preparingBackend{}
	if err := New(b, DefaultVAD(500)).Prepare(context.Background(), ModelConfig{Name: "small"}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(b.prepared) != 1 || b.prepared[0] != "small" {
		t.Fatalf("prepared models: got %v", b.prepared)
	}

	b.err = errors.New("offline")
	if err := New(b, DefaultVAD(500)).Prepare(context.Background(), ModelConfig{}); !errors.Is(err, b.err) {
		t.Fatalf("want backend error got %v", err)
	}
}
