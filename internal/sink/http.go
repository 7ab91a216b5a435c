package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/desktop-voice-lab/internal/httpx"
	"github.com/desktop-voice-lab/internal/logging"
)

// HTTPForwarder posts each transcript as JSON to URL.
type HTTPForwarder struct {
	URL       string
	AuthToken string
	Client    *http.Client
	Attempts  int
	Timeout   time.Duration
}

func (h *HTTPForwarder) Deliver(ctx context.Context, t Transcript) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	resp, err := httpx.PostWithRetries(ctx, h.Client, httpx.Request{
		URL:           h.URL,
		Body:          body,
		ContentType:   "application/json",
		AuthToken:     h.AuthToken,
		CorrelationID: t.CorrelationID,
		Timeout:       h.Timeout,
		Attempts:      max(h.Attempts, 1),
		Backoff:       500 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("forward transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("forward transcript: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	logging.Debugw("transcript forwarded", "url", h.URL, "correlation_id", t.CorrelationID)
	return nil
}

func (h *HTTPForwarder) Close() error { return nil }
