package gateway

import (
	"context"

	"github.com/gita-voice-lab/internal/convo"
)

// GenerateRequest is a typed-text question with its prior history.
type GenerateRequest struct {
	Question string
	History  convo.Transcript
}

// GenerateResult is the answer and the history as returned by the server.
type GenerateResult struct {
	Answer  string
	History convo.Transcript
}

// GenerateClient calls /generate, the text-mode chat endpoint.
type GenerateClient struct {
	c *Client
}

func (g *GenerateClient) Generate(ctx context.Context, token string, req GenerateRequest) (*GenerateResult, error) {
	var out GenerateWireResponse
	err := g.c.postJSON(ctx, "generate", "/generate", token, GenerateWireRequest{
		Question:    req.Question,
		ChatHistory: ToExchanges(req.History),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &GenerateResult{Answer: out.Answer, History: ParseExchanges(out.ChatHistory)}, nil
}
