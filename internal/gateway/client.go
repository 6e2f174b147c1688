// Package gateway contains thin typed clients for the protected voice and
// chat endpoints. Each call is a single authenticated request; nothing is
// retried automatically.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/logging"
)

// TokenHeader carries the session token on protected calls.
const TokenHeader = "token"

// CorrelationHeader carries the turn correlation id.
const CorrelationHeader = "X-Correlation-ID"

// maxErrorBody bounds how much of a failed response is retained.
const maxErrorBody = 64 << 10

// Client is the shared transport for the typed clients.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client for the API at baseURL. A zero timeout means 60s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) STT() *STTClient           { return &STTClient{c: c} }
func (c *Client) Dialogue() *DialogueClient { return &DialogueClient{c: c} }
func (c *Client) TTS() *TTSClient           { return &TTSClient{c: c} }
func (c *Client) Generate() *GenerateClient { return &GenerateClient{c: c} }

type correlationKey struct{}

// WithCorrelationID attaches a correlation id that is sent on every call
// made with the returned context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}

// postJSON sends in as JSON to path and decodes a 2xx body into out. Any
// other status becomes an *Error carrying the raw body.
func (c *Client) postJSON(ctx context.Context, op, path, token string, in, out interface{}) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	cid := correlationID(ctx)
	if cid != "" {
		req.Header.Set(CorrelationHeader, cid)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	sent := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		logging.Debugw("gateway: POST failed", "op", op, "err", err, "correlation_id", cid)
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	logging.Debugw("gateway: response received", "op", op, "status", resp.StatusCode, "latency_ms", time.Since(sent).Milliseconds(), "correlation_id", cid)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Warnw("gateway: returned non-2xx", "op", op, "status", resp.StatusCode, "correlation_id", cid)
		return &Error{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
