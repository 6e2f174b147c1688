package gateway

import (
	"context"
	"encoding/base64"

	"github.com/gita-voice-lab/internal/convo"
)

// STTRequest is one utterance to transcribe.
type STTRequest struct {
	Audio    []byte
	Language convo.Language
}

// STTResult is the transcription of an STTRequest.
type STTResult struct {
	Transcript string
}

// STTClient calls /voice/speech-to-text.
type STTClient struct {
	c *Client
}

// Transcribe sends the audio base64-encoded and returns the transcript as
// received; emptiness is for the caller to judge.
func (s *STTClient) Transcribe(ctx context.Context, token string, req STTRequest) (*STTResult, error) {
	var out STTWireResponse
	err := s.c.postJSON(ctx, "speech-to-text", "/voice/speech-to-text", token, STTWireRequest{
		Audio:    base64.StdEncoding.EncodeToString(req.Audio),
		Language: req.Language.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &STTResult{Transcript: out.Transcript}, nil
}
