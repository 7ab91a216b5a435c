package wakeword

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/desktop-voice-lab/internal/logging"
)

const remoteTimeout = 5 * time.Second

// RemoteScorer streams chunks to a scoring server over a websocket. Each
// binary frame carries little-endian int16 samples and the server answers
// with one JSON text frame: an object of label scores, {"scores": {...}},
// {"score": x} or a bare number.
type RemoteScorer struct {
	url  string
	conn *websocket.Conn
}

// DialRemote connects to the scoring server at url (ws:// or wss://).
func DialRemote(ctx context.Context, url string, header http.Header) (*RemoteScorer, error) {
	dctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	conn, resp, err := websocket.DefaultDialer.DialContext(dctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	logging.Infow("remote wake-word scorer connected", "url", url)
	return &RemoteScorer{url: url, conn: conn}, nil
}

func (r *RemoteScorer) Score(ctx context.Context, samples []int16) (ScoreMap, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(remoteTimeout)
	}
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	_ = r.conn.SetWriteDeadline(deadline)
	if err := r.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return nil, fmt.Errorf("send chunk: %w", err)
	}
	_ = r.conn.SetReadDeadline(deadline)
	_, msg, err := r.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}
	return decodeRemote(msg)
}

func decodeRemote(msg []byte) (ScoreMap, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if obj, ok := v.(map[string]any); ok {
		if inner, ok := obj["scores"]; ok {
			v = inner
		} else if single, ok := obj["score"]; ok && len(obj) == 1 {
			v = single
		}
	}
	return Normalize(v)
}

func (r *RemoteScorer) Close() error {
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return r.conn.Close()
}
