package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultMaxMessage caps a single inbound JSON-RPC message. Transcripts are
// short; anything near this size is a misbehaving peer.
const DefaultMaxMessage = 1 << 20

// ErrNonTextFrame is returned when the peer sends a binary frame. JSON-RPC
// messages travel as UTF-8 text frames, one message per frame.
var ErrNonTextFrame = errors.New("websocket: expected a text frame")

// WebSocketTransport carries MCP sessions over an established websocket.
// The same transport serves the dialing side (MCPSink) and the accepting
// side (heardserver).
type WebSocketTransport struct {
	Conn *websocket.Conn
	// MaxMessage overrides DefaultMaxMessage when positive.
	MaxMessage int64
}

func (t *WebSocketTransport) Connect(context.Context) (sdk.Connection, error) {
	limit := t.MaxMessage
	if limit <= 0 {
		limit = DefaultMaxMessage
	}
	t.Conn.SetReadLimit(limit)
	return &frameConn{ws: t.Conn, id: uuid.NewString()}, nil
}

// frameConn maps one JSON-RPC message to one text frame. Reads come from a
// single goroutine; writes are serialised by wmu.
type frameConn struct {
	ws *websocket.Conn
	id string

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *frameConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
		defer c.ws.SetReadDeadline(time.Time{})
	}
	kind, r, err := c.ws.NextReader()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, ErrNonTextFrame
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return jsonrpc.DecodeMessage(data)
}

func (c *frameConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(dl)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Close says goodbye with a normal-closure frame before dropping the socket,
// so the peer reads a clean end of session. Safe to call more than once.
func (c *frameConn) Close() error {
	c.closeOnce.Do(func() {
		bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, bye, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *frameConn) SessionID() string { return c.id }
