package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/desktop-voice-lab/internal/logging"
)

// DefaultTool is the MCP tool invoked with each transcript.
const DefaultTool = "heard"

const keepaliveEvery = 30 * time.Second

var ErrNotConnected = errors.New("mcp sink: not connected")

// MCPSink calls a tool on an MCP server for every transcript. The server is
// reached over a websocket or spawned as a stdio subprocess.
type MCPSink struct {
	client          *sdk.Client
	tool            string
	session         *sdk.ClientSession
	keepaliveCancel context.CancelFunc
	mu              sync.Mutex
}

func NewMCPSink(version, tool string) *MCPSink {
	if tool == "" {
		tool = DefaultTool
	}
	c := sdk.NewClient(&sdk.Implementation{Name: "desktopvoice", Version: version}, nil)
	return &MCPSink{client: c, tool: tool}
}

// ConnectWebSocket dials rawurl, accepting http(s) schemes as ws(s).
func (m *MCPSink) ConnectWebSocket(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial mcp server: %w", err)
	}
	if err := m.connect(ctx, &WebSocketTransport{Conn: conn}); err != nil {
		_ = conn.Close()
		return err
	}
	logging.Infow("mcp sink connected", "url", u.String(), "tool", m.tool)
	return nil
}

// ConnectCommand spawns commandLine (split on whitespace) and speaks MCP over
// its stdio. The subprocess's stderr is logged line by line.
func (m *MCPSink) ConnectCommand(ctx context.Context, commandLine string) error {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return errors.New("mcp sink: command is required")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	pr, pw := io.Pipe()
	cmd.Stderr = pw
	go func() {
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			logging.Debugw("mcp server stderr", "command", fields[0], "line", sc.Text())
		}
	}()
	if err := m.connect(ctx, &sdk.CommandTransport{Command: cmd}); err != nil {
		_ = pw.Close()
		return err
	}
	go func() {
		_ = m.wait()
		_ = pw.Close()
	}()
	logging.Infow("mcp sink started server", "command", commandLine, "tool", m.tool)
	return nil
}

func (m *MCPSink) wait() error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Wait()
}

func (m *MCPSink) connect(ctx context.Context, t sdk.Transport) error {
	sess, err := m.client.Connect(ctx, t, nil)
	if err != nil {
		return fmt.Errorf("mcp connect: %w", err)
	}
	kaCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.keepaliveCancel != nil {
		m.keepaliveCancel()
	}
	m.session = sess
	m.keepaliveCancel = cancel
	m.mu.Unlock()
	go func() {
		ticker := time.NewTicker(keepaliveEvery)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				if err := sess.Ping(kaCtx, nil); err != nil {
					logging.Warnw("mcp keepalive failed", "error", err)
				}
			}
		}
	}()
	return nil
}

func (m *MCPSink) Deliver(ctx context.Context, t Transcript) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	res, err := sess.CallTool(ctx, &sdk.CallToolParams{
		Name: m.tool,
		Arguments: map[string]any{
			"text":           t.Text,
			"label":          t.Label,
			"score":          t.Score,
			"correlation_id": t.CorrelationID,
		},
	})
	if err != nil {
		return fmt.Errorf("call %s: %w", m.tool, err)
	}
	if res.IsError {
		return fmt.Errorf("call %s: tool error: %s", m.tool, resultText(res))
	}
	logging.Debugw("transcript delivered over mcp", "tool", m.tool, "correlation_id", t.CorrelationID)
	return nil
}

func resultText(res *sdk.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, " ")
}

func (m *MCPSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keepaliveCancel != nil {
		m.keepaliveCancel()
		m.keepaliveCancel = nil
	}
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
