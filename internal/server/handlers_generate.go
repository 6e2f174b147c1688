package server

import (
	"net/http"
	"strings"

	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/upstream"
)

// Greeting answers GET /generate.
const Greeting = "Radhey Radhey Dear Devotee"

type greeting struct {
	Message string `json:"message"`
}

// handleGenerate is the text chat endpoint. Any method other than POST is
// answered with the greeting and needs no token.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusOK, greeting{Message: Greeting})
		return
	}
	s.requireToken(s.generate)(w, r)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var in gateway.GenerateWireRequest
	if err := decode(w, r, defaultBodyLimit, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(in.Question) == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}
	history := gateway.ParseExchanges(in.ChatHistory)
	answer, err := s.chat.Complete(r.Context(), upstream.TextPrompt(), history, in.Question, upstream.TextMaxTokens)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	out := make([]string, 0, len(in.ChatHistory)+1)
	out = append(out, in.ChatHistory...)
	out = append(out, gateway.Exchange(in.Question, answer))
	writeJSON(w, http.StatusOK, gateway.GenerateWireResponse{Answer: answer, ChatHistory: out})
}
