package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// wsPair returns the accepting and dialing ends of a fresh websocket.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(hs.Close)
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	select {
	case server := <-accepted:
		t.Cleanup(func() { server.Close() })
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatalf("upgrade did not complete")
	}
	return nil, nil
}

func connectFrames(t *testing.T, ws *websocket.Conn, limit int64) sdk.Connection {
	t.Helper()
	c, err := (&WebSocketTransport{Conn: ws, MaxMessage: limit}).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestFrameConnRoundTripsTextFrames(t *testing.T) {
	server, client := wsPair(t)
	c := connectFrames(t, server, 0)
	if c.SessionID() == "" {
		t.Fatalf("session id should be set")
	}

	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("client write: %v", err)
	}
	msg, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok || req.Method != "ping" {
		t.Fatalf("want ping request got %#v", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Write(ctx, req); err != nil {
		t.Fatalf("Write: %v", err)
	}
	kind, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if kind != websocket.TextMessage || !strings.Contains(string(data), `"ping"`) {
		t.Fatalf("frame: kind=%d data=%s", kind, data)
	}
}

func TestFrameConnRejectsBinaryFrames(t *testing.T) {
	server, client := wsPair(t)
	c := connectFrames(t, server, 0)
	if err := client.WriteMessage(websocket.BinaryMessage, []byte(`{}`)); err != nil {
		t.Fatalf("client write: %v", err)
	}
	if _, err := c.Read(context.Background()); !errors.Is(err, ErrNonTextFrame) {
		t.Fatalf("want ErrNonTextFrame got %v", err)
	}
}

func TestFrameConnEnforcesReadLimit(t *testing.T) {
	server, client := wsPair(t)
	c := connectFrames(t, server, 64)
	big := `{"jsonrpc":"2.0","id":1,"method":"` + strings.Repeat("x", 128) + `"}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatalf("client write: %v", err)
	}
	if _, err := c.Read(context.Background()); err == nil {
		t.Fatalf("oversized message should fail")
	}
}

func TestFrameConnCloseIsCleanEOF(t *testing.T) {
	server, client := wsPair(t)
	serverSide := connectFrames(t, server, 0)
	clientSide := connectFrames(t, client, 0)

	if err := clientSide.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := clientSide.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := serverSide.Read(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("peer close: want io.EOF got %v", err)
	}
}
