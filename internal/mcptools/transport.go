package mcptools

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// wsTransport carries MCP JSON-RPC messages over one websocket, one message
// per frame. It serves both the server and the client side.
type wsTransport struct{ conn *websocket.Conn }

// NewWebSocketTransport wraps an established websocket connection.
func NewWebSocketTransport(conn *websocket.Conn) mcp.Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Connect(context.Context) (mcp.Connection, error) {
	return &wsConnection{conn: t.conn}, nil
}

type wsConnection struct {
	conn *websocket.Conn
	// gorilla allows one concurrent writer; the SDK writes from several
	// goroutines.
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = w.conn.SetReadDeadline(dl)
		defer w.conn.SetReadDeadline(time.Time{})
	}
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return jsonrpc.DecodeMessage(data)
}

func (w *wsConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(dl)
		defer w.conn.SetWriteDeadline(time.Time{})
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConnection) Close() error {
	w.closeOnce.Do(func() { w.closeErr = w.conn.Close() })
	return w.closeErr
}

func (w *wsConnection) SessionID() string { return "" }
