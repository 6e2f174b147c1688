// Package upstream calls the speech and language model providers behind the
// API server: Sarvam for speech-to-text and text-to-speech, and an
// OpenAI-compatible chat endpoint (Cerebras) for dialogue.
package upstream

import (
	"errors"
	"fmt"
)

// ErrNoAudio is returned when the TTS provider answers 2xx without audio.
var ErrNoAudio = errors.New("No audio generated")

var (
	ErrNotConfigured = errors.New("upstream not configured")
	ErrEmptyResponse = errors.New("empty upstream response")
)

// Error is a failed provider call. Status and Body are the provider's
// response, relayed to the API caller unchanged. Status is zero when no
// response was received.
type Error struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }
