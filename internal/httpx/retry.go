// Package httpx holds the retrying POST helper shared by the speech and
// transcript-forwarding clients.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desktop-voice-lab/internal/logging"
)

// Request describes one POST. Attempts below 1 means a single attempt.
type Request struct {
	URL           string
	Body          []byte
	ContentType   string
	AuthToken     string
	CorrelationID string
	Timeout       time.Duration
	Attempts      int
	Backoff       time.Duration
}

// PostWithRetries posts r.Body to r.URL, retrying network errors and 5xx
// responses with exponential backoff (Backoff, 2*Backoff, ...). The caller
// closes the returned body. A final 5xx response is returned as an error.
func PostWithRetries(ctx context.Context, client *http.Client, r Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	attempts := max(r.Attempts, 1)
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff * time.Duration(1<<(i-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		resp, err := post(ctx, client, r)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			err = fmt.Errorf("server error status=%d", resp.StatusCode)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logging.Debugw("post attempt failed", "url", r.URL, "attempt", i+1, "err", err, "correlation_id", r.CorrelationID)
	}
	return nil, fmt.Errorf("post %s: %w", r.URL, lastErr)
}

func post(ctx context.Context, client *http.Client, r Request) (*http.Response, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		// The body must outlive this call, so cancel once it is closed.
		resp, err := doPost(ctx, client, r)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return doPost(ctx, client, r)
}

func doPost(ctx context.Context, client *http.Client, r Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if r.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.AuthToken)
	}
	if r.CorrelationID != "" {
		req.Header.Set("X-Correlation-ID", r.CorrelationID)
	}
	return client.Do(req)
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
