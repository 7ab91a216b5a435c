package stt

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/desktop-voice-lab/internal/fileio"
	"github.com/desktop-voice-lab/internal/logging"
)

// DefaultModelURL serves ggml whisper weights by file name.
const DefaultModelURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// ModelStore resolves whisper model names to cached weight files.
type ModelStore struct {
	BaseURL string
	Client  *http.Client

	mu sync.Mutex
}

// Path returns the local weights for cfg, downloading them into
// cfg.CacheDir when missing. A Name that is an existing file is used as-is.
func (s *ModelStore) Path(ctx context.Context, cfg ModelConfig) (string, error) {
	if fileio.Exists(cfg.Name) {
		return cfg.Name, nil
	}
	if strings.ContainsRune(cfg.Name, filepath.Separator) {
		return "", fmt.Errorf("%w: %s does not exist", ErrUnavailable, cfg.Name)
	}
	file := ModelFile(cfg.Name, cfg.ComputeType)
	local := filepath.Join(cfg.CacheDir, "whisper", file)

	s.mu.Lock()
	defer s.mu.Unlock()
	if fileio.Exists(local) {
		return local, nil
	}
	base := s.BaseURL
	if base == "" {
		base = DefaultModelURL
	}
	url := strings.TrimSuffix(base, "/") + "/" + file
	logging.Infow("downloading speech model (first run only)", "url", url, "path", local)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: fetch %s: status %d", ErrUnavailable, url, resp.StatusCode)
	}
	if _, err := fileio.CopyAtomic(local, resp.Body, 0o644); err != nil {
		return "", fmt.Errorf("store %s: %w", local, err)
	}
	return local, nil
}

// Cached reports the local weights for cfg without downloading.
func (s *ModelStore) Cached(cfg ModelConfig) (string, bool) {
	if fileio.Exists(cfg.Name) {
		return cfg.Name, true
	}
	local := filepath.Join(cfg.CacheDir, "whisper", ModelFile(cfg.Name, cfg.ComputeType))
	return local, fileio.Exists(local)
}
