// Command heardserver is a minimal MCP server exposing the "heard" tool that
// desktopvoice calls with each transcript. It prints what it receives, which
// makes it useful for checking MCP_SERVER_URL or MCP_COMMAND setups.
//
// With -stdio it serves a single session on stdin/stdout (for MCP_COMMAND);
// otherwise it listens for websocket sessions on /mcp/ws.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/desktop-voice-lab/internal/logging"
	"github.com/desktop-voice-lab/internal/sink"
)

type heardArgs struct {
	Text          string  `json:"text" jsonschema:"the transcribed command"`
	Label         string  `json:"label" jsonschema:"wake word that triggered the recording"`
	Score         float64 `json:"score" jsonschema:"wake-word score at detection"`
	CorrelationID string  `json:"correlation_id" jsonschema:"identifier of the trigger cycle"`
}

// newServer builds the MCP server. Every accepted transcript is written to
// out as one line.
func newServer(out io.Writer) *mcp.Server {
	var mu sync.Mutex
	server := mcp.NewServer(&mcp.Implementation{Name: "heardserver", Version: "v0.1.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: sink.DefaultTool, Description: "Receive a transcribed voice command"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in heardArgs) (*mcp.CallToolResult, any, error) {
			if in.Text == "" {
				return nil, nil, errors.New("text is required")
			}
			mu.Lock()
			fmt.Fprintf(out, "[%s] %s (%.3f): %s\n", in.CorrelationID, in.Label, in.Score, in.Text)
			mu.Unlock()
			logging.Infow("transcript received", "correlation_id", in.CorrelationID, "label", in.Label, "chars", len(in.Text))
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "ok"}}}, nil, nil
		})
	return server
}

func main() {
	addr := flag.String("addr", ":9001", "listen address for websocket sessions")
	stdio := flag.Bool("stdio", false, "serve one session over stdin/stdout")
	flag.Parse()

	logging.Init()
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol in stdio mode.
	var out io.Writer = os.Stdout
	if *stdio {
		out = os.Stderr
	}
	server := newServer(out)
	if *stdio {
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			logging.FatalExitf(1, "stdio session failed", "error", err)
		}
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/mcp/ws", wsHandler(server))
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	logging.Infow("heardserver listening", "addr", *addr, "path", "/mcp/ws")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.FatalExitf(1, "listen failed", "error", err)
	}
}

// wsHandler upgrades each request and serves one MCP session on it until the
// client disconnects.
func wsHandler(server *mcp.Server) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("websocket upgrade failed", "error", err)
			return
		}
		ss, err := server.Connect(context.Background(), &sink.WebSocketTransport{Conn: conn}, nil)
		if err != nil {
			logging.Warnw("mcp session setup failed", "error", err)
			_ = conn.Close()
			return
		}
		if err := ss.Wait(); err != nil {
			logging.Debugw("mcp session ended", "error", err)
		}
	})
}
