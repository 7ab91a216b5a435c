package wakeword

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/desktop-voice-lab/internal/fileio"
	"github.com/desktop-voice-lab/internal/logging"
)

var ErrModelNotFound = errors.New("wake-word model not found")

// Shared feature extractors every openWakeWord classifier runs on.
const (
	MelModelName       = "melspectrogram.onnx"
	EmbeddingModelName = "embedding_model.onnx"
)

var versioned = regexp.MustCompile(`_v\d+(\.\d+)*$`)

// Resolver maps wake-word names to local model files, fetching missing ones
// from a release registry into a cache directory on first use.
type Resolver struct {
	BaseURL  string
	CacheDir string
	Client   *http.Client

	mu sync.Mutex
}

// ModelFile returns the registry file name for a wake-word name:
// "hey_jarvis" → "hey_jarvis_v0.1.onnx", "hey_jarvis_v0.1" → "hey_jarvis_v0.1.onnx".
func ModelFile(name string) string {
	if strings.HasSuffix(name, ".onnx") {
		return name
	}
	if versioned.MatchString(name) {
		return name + ".onnx"
	}
	return name + "_v0.1.onnx"
}

// Label is the score label reported for a model path or name.
func Label(nameOrPath string) string {
	return strings.TrimSuffix(filepath.Base(nameOrPath), ".onnx")
}

func isPath(s string) bool {
	return strings.ContainsRune(s, os.PathSeparator) || strings.ContainsRune(s, '/') || strings.HasSuffix(s, ".onnx")
}

// Resolve returns a local path for nameOrPath. Existing files are used in
// place; anything that looks like a path but does not exist is an error.
// Plain names are looked up in the cache and downloaded when absent.
func (r *Resolver) Resolve(ctx context.Context, nameOrPath string) (string, error) {
	if fileio.Exists(nameOrPath) {
		return nameOrPath, nil
	}
	file := ModelFile(nameOrPath)
	if isPath(nameOrPath) && filepath.Base(nameOrPath) != nameOrPath {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, nameOrPath)
	}
	local := filepath.Join(r.CacheDir, file)

	r.mu.Lock()
	defer r.mu.Unlock()
	if fileio.Exists(local) {
		return local, nil
	}
	if r.BaseURL == "" {
		return "", fmt.Errorf("%w: %s (no registry configured)", ErrModelNotFound, file)
	}
	url := strings.TrimSuffix(r.BaseURL, "/") + "/" + file
	logging.Infow("downloading wake-word model (first run only)", "url", url, "path", local)
	if err := r.download(ctx, url, local); err != nil {
		return "", err
	}
	return local, nil
}

func (r *Resolver) download(ctx context.Context, url, dst string) error {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrModelNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	n, err := fileio.CopyAtomic(dst, resp.Body, 0o644)
	if err != nil {
		return fmt.Errorf("store %s: %w", dst, err)
	}
	logging.Debugw("model cached", "path", dst, "bytes", n)
	return nil
}

// Bundle is the set of model files an ONNX scorer needs.
type Bundle struct {
	Mel        string
	Embedding  string
	Classifier map[string]string // label -> path
}

// ResolveBundle resolves the shared feature models and every wake word.
func (r *Resolver) ResolveBundle(ctx context.Context, wakewords []string) (Bundle, error) {
	b := Bundle{Classifier: map[string]string{}}
	var err error
	if b.Mel, err = r.resolveShared(ctx, MelModelName, wakewords); err != nil {
		return b, err
	}
	if b.Embedding, err = r.resolveShared(ctx, EmbeddingModelName, wakewords); err != nil {
		return b, err
	}
	for _, w := range wakewords {
		p, err := r.Resolve(ctx, w)
		if err != nil {
			return b, err
		}
		b.Classifier[Label(p)] = p
	}
	return b, nil
}

// resolveShared prefers a feature model sitting next to a local classifier
// before falling back to the cache and registry.
func (r *Resolver) resolveShared(ctx context.Context, file string, wakewords []string) (string, error) {
	for _, w := range wakewords {
		if fileio.Exists(w) {
			p := filepath.Join(filepath.Dir(w), file)
			if fileio.Exists(p) {
				return p, nil
			}
		}
	}
	return r.Resolve(ctx, file)
}
