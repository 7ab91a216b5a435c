package wakeword

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestModelFile(t *testing.T) {
	cases := map[string]string{
		"hey_jarvis":           "hey_jarvis_v0.1.onnx",
		"hey_jarvis_v0.1":      "hey_jarvis_v0.1.onnx",
		"alexa_v2":             "alexa_v2.onnx",
		"embedding_model.onnx": "embedding_model.onnx",
	}
	for in, want := range cases {
		if got := ModelFile(in); got != want {
			t.Fatalf("ModelFile(%q): want=%s got=%s", in, want, got)
		}
	}
	if Label("/models/hey_jarvis_v0.1.onnx") != "hey_jarvis_v0.1" {
		t.Fatalf("unexpected label")
	}
}

func TestResolveDownloadsOnceIntoCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/hey_jarvis_v0.1.onnx" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	cache := t.TempDir()
	r := &Resolver{BaseURL: srv.URL + "/", CacheDir: cache, Client: srv.Client()}
	p, err := r.Resolve(context.Background(), "hey_jarvis")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != filepath.Join(cache, "hey_jarvis_v0.1.onnx") {
		t.Fatalf("path: got %s", p)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "onnx-bytes" {
		t.Fatalf("content: got %q", b)
	}
	if _, err := r.Resolve(context.Background(), "hey_jarvis"); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("registry hits: want=1 got=%d", hits.Load())
	}
}

func TestResolveMissingModel(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	r := &Resolver{BaseURL: srv.URL, CacheDir: t.TempDir()}
	if _, err := r.Resolve(context.Background(), "nope"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("want ErrModelNotFound got %v", err)
	}
	if _, err := r.Resolve(context.Background(), filepath.Join(t.TempDir(), "gone.onnx")); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("missing local path: want ErrModelNotFound got %v", err)
	}
}

func TestResolveBundlePrefersSiblingFeatureModels(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"custom.onnx", MelModelName, EmbeddingModelName} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := &Resolver{CacheDir: t.TempDir()}
	b, err := r.ResolveBundle(context.Background(), []string{filepath.Join(dir, "custom.onnx")})
	if err != nil {
		t.Fatalf("ResolveBundle: %v", err)
	}
	if b.Mel != filepath.Join(dir, MelModelName) || b.Embedding != filepath.Join(dir, EmbeddingModelName) {
		t.Fatalf("feature models not taken from classifier dir: %+v", b)
	}
	if b.Classifier["custom"] == "" {
		t.Fatalf("classifier label missing: %+v", b.Classifier)
	}
}
