package gateway

import (
	"context"

	"github.com/gita-voice-lab/internal/convo"
)

// TTSRequest is text to speak.
type TTSRequest struct {
	Text     string
	Language convo.Language
}

// TTSResult holds the synthesized audio, base64-encoded as received.
type TTSResult struct {
	Audio string
}

// TTSClient calls /voice/text-to-speech.
type TTSClient struct {
	c *Client
}

func (t *TTSClient) Synthesize(ctx context.Context, token string, req TTSRequest) (*TTSResult, error) {
	var out TTSWireResponse
	err := t.c.postJSON(ctx, "text-to-speech", "/voice/text-to-speech", token, TTSWireRequest{
		Text:     req.Text,
		Language: req.Language.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &TTSResult{Audio: out.Audio}, nil
}
