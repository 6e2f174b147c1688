package upstream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/logging"
)

const chatProvider = "cerebras"

// Completion limits for the two chat surfaces.
const (
	VoiceMaxTokens = 1024
	TextMaxTokens  = 10024
	Temperature    = 0.7
)

// Chat completes conversations against an OpenAI-compatible endpoint.
type Chat struct {
	client *openai.Client
	model  string
}

// NewChat returns a Chat for the endpoint at baseURL (".../v1"). A zero
// timeout means 60s.
func NewChat(baseURL, apiKey, model string, timeout time.Duration) *Chat {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Chat{client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete sends system, then history in order, then message, and returns
// the first choice's content.
func (c *Chat) Complete(ctx context.Context, system string, history convo.Transcript, message string, maxTokens int) (string, error) {
	if c == nil || c.client == nil {
		return "", &Error{Provider: chatProvider, Err: ErrNotConfigured}
	}
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    Messages(system, history, message),
		MaxTokens:   maxTokens,
		Temperature: Temperature,
	}
	sent := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logging.WarnwCtx(ctx, "chat: completion failed", "model", c.model, "err", err)
		return "", chatError(err)
	}
	logging.DebugwCtx(ctx, "chat: completion received", "model", c.model, "latency_ms", time.Since(sent).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: chatProvider, Status: http.StatusBadGateway, Body: "no choices returned", Err: ErrEmptyResponse}
	}
	return resp.Choices[0].Message.Content, nil
}

// Messages builds the chat message list.
func Messages(system string, history convo.Transcript, message string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, t := range history {
		role := openai.ChatMessageRoleAssistant
		if t.Role == convo.RoleUser {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})
}

// chatError keeps the provider's status so the server can relay it.
func chatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: chatProvider, Status: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := string(reqErr.Body)
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &Error{Provider: chatProvider, Status: reqErr.HTTPStatusCode, Body: body, Err: err}
	}
	return &Error{Provider: chatProvider, Err: err}
}
