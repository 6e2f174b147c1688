package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/upstream"
)

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	var in gateway.STTWireRequest
	if err := decode(w, r, speechBodyLimit, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if in.Audio == "" {
		writeError(w, http.StatusBadRequest, "audio required")
		return
	}
	wav, err := base64.StdEncoding.DecodeString(in.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio must be base64")
		return
	}
	lang := convo.ParseLanguage(in.Language)
	logging.DebugwCtx(r.Context(), "server: transcribing", "bytes", len(wav), "language", lang.String())

	transcript, err := s.speech.Transcribe(r.Context(), wav, lang)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.STTWireResponse{Transcript: transcript})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var in gateway.ChatWireRequest
	if err := decode(w, r, defaultBodyLimit, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}
	lang := convo.ParseLanguage(in.Language)
	history := gateway.FromChatMessages(in.ChatHistory)

	reply, err := s.chat.Complete(r.Context(), upstream.VoicePrompt(lang), history, in.Message, upstream.VoiceMaxTokens)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.ChatWireResponse{Reply: reply})
}

func (s *Server) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	var in gateway.TTSWireRequest
	if err := decode(w, r, defaultBodyLimit, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(in.Text) == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}
	audio, err := s.speech.Synthesize(r.Context(), in.Text, convo.ParseLanguage(in.Language))
	if errors.Is(err, upstream.ErrNoAudio) {
		writeError(w, http.StatusInternalServerError, upstream.ErrNoAudio.Error())
		return
	}
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.TTSWireResponse{Audio: audio})
}
