package gateway

import (
	"context"

	"github.com/gita-voice-lab/internal/convo"
)

// DialogueRequest asks for a reply to Message given the prior History.
type DialogueRequest struct {
	History  convo.Transcript
	Message  string
	Language convo.Language
}

// DialogueResult is the assistant's reply.
type DialogueResult struct {
	Reply string
}

// DialogueClient calls /voice/chat.
type DialogueClient struct {
	c *Client
}

func (d *DialogueClient) Converse(ctx context.Context, token string, req DialogueRequest) (*DialogueResult, error) {
	var out ChatWireResponse
	err := d.c.postJSON(ctx, "chat", "/voice/chat", token, ChatWireRequest{
		Message:     req.Message,
		ChatHistory: ToChatMessages(req.History),
		Language:    req.Language.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &DialogueResult{Reply: out.Reply}, nil
}
