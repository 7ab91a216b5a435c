package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/desktop-voice-lab/internal/config"
	"github.com/desktop-voice-lab/internal/httpx"
	"github.com/desktop-voice-lab/internal/logging"
	"github.com/desktop-voice-lab/internal/recorder"
)

type correlationKey struct{}

// WithCorrelationID tags ctx so HTTP backends forward the trigger's ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// HTTPWhisper posts clips to a whisper-compatible HTTP server that answers
// with {"text": ...} or {"segments": [{"text": ...}]}.
type HTTPWhisper struct {
	URL      string
	Client   *http.Client
	Attempts int
	Timeout  time.Duration
}

func (h *HTTPWhisper) Check(ModelConfig) config.Capability {
	c := config.Capability{Name: "speech model (http)"}
	if _, err := url.ParseRequestURI(h.URL); err != nil {
		c.Reason = "WHISPER_URL is not a valid URL"
		return c
	}
	c.Available = true
	c.Reason = h.URL
	return c
}

func (h *HTTPWhisper) endpoint(cfg ModelConfig) string {
	u, err := url.Parse(h.URL)
	if err != nil {
		return h.URL
	}
	q := u.Query()
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.Name != "" && !strings.ContainsRune(cfg.Name, os.PathSeparator) {
		q.Set("model", cfg.Name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *HTTPWhisper) Segments(ctx context.Context, clip *recorder.Clip, cfg ModelConfig) ([]string, error) {
	// The WAV encoder needs a seekable writer, so stage the speech-only clip
	// on disk.
	path, err := clip.WriteTemp("")
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cid := correlationID(ctx)
	target := h.endpoint(cfg)
	logging.Debugw("sending clip to whisper", "url", target, "bytes", len(body), "correlation_id", cid)
	resp, err := httpx.PostWithRetries(ctx, h.Client, httpx.Request{
		URL:           target,
		Body:          body,
		ContentType:   "audio/wav",
		CorrelationID: cid,
		Timeout:       h.Timeout,
		Attempts:      max(h.Attempts, 1),
		Backoff:       time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Text     *string `json:"text"`
		Segments []struct {
			Text string `json:"text"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	if len(out.Segments) > 0 {
		segs := make([]string, len(out.Segments))
		for i, s := range out.Segments {
			segs[i] = s.Text
		}
		return segs, nil
	}
	if out.Text != nil {
		return []string{*out.Text}, nil
	}
	return nil, nil
}

func (h *HTTPWhisper) Close() error { return nil }
