// Package textchat is the typed-text conversation over /generate. The
// server returns the extended history with every answer; the session keeps
// it as a transcript.
package textchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/logging"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNotLoggedIn   = errors.New("not logged in")
)

type TokenSource interface {
	Token() string
}

type Generator interface {
	Generate(ctx context.Context, token string, req gateway.GenerateRequest) (*gateway.GenerateResult, error)
}

// Session is one text conversation. Questions are answered one at a time.
type Session struct {
	gen    Generator
	tokens TokenSource

	ask     sync.Mutex
	mu      sync.Mutex
	history convo.Transcript
}

func New(gen Generator, tokens TokenSource) *Session {
	return &Session{gen: gen, tokens: tokens}
}

// Ask sends question with the accumulated history and returns the answer.
// The history is only replaced when the call succeeds.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	token := s.tokens.Token()
	if token == "" {
		return "", ErrNotLoggedIn
	}

	s.ask.Lock()
	defer s.ask.Unlock()

	cid := uuid.NewString()
	ctx = gateway.WithCorrelationID(logging.WithFields(ctx, "correlation_id", cid), cid)
	prior := s.History()
	res, err := s.gen.Generate(ctx, token, gateway.GenerateRequest{Question: question, History: prior})
	if err != nil {
		logging.WarnwCtx(ctx, "textchat: generate failed", "status", gateway.StatusOf(err), "err", err)
		return "", fmt.Errorf("generate: %w", err)
	}

	history := res.History
	if len(history) == 0 {
		history = append(prior, convo.UserTurn(question), convo.AssistantTurn(res.Answer))
	}
	s.mu.Lock()
	s.history = history
	s.mu.Unlock()
	logging.InfowCtx(ctx, "textchat: answered", "turns", len(history))
	return res.Answer, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() convo.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}
