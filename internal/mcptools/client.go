package mcptools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gita-voice-lab/internal/logging"
)

// ErrToolFailed wraps the message of a tool that reported an error.
var ErrToolFailed = errors.New("tool failed")

// Client is an MCP client session over websocket with a keepalive ping.
type Client struct {
	session *mcp.ClientSession
	cancel  context.CancelFunc
}

// Dial connects to rawurl; http(s) schemes are rewritten to ws(s).
func Dial(ctx context.Context, rawurl, name, version string) (*Client, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c := mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, nil)
	sess, err := c.Connect(ctx, NewWebSocketTransport(conn), nil)
	if err != nil {
		conn.Close()
		return nil, err
	}

	kctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-kctx.Done():
				return
			case <-ticker.C:
				if err := sess.Ping(kctx, nil); err != nil {
					logging.Debugw("mcp: keepalive ping failed", "err", err)
				}
			}
		}
	}()
	logging.Infow("mcp: client connected", "url", u.String())
	return &Client{session: sess, cancel: cancel}, nil
}

// Call invokes a tool and returns its text content. A tool error is
// returned as an error carrying the tool's message.
func (c *Client) Call(ctx context.Context, tool string, args any) (string, error) {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("%w: %s: %s", ErrToolFailed, tool, sb.String())
	}
	return sb.String(), nil
}

func (c *Client) Close() error {
	c.cancel()
	return c.session.Close()
}
