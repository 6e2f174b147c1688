// Package server is the HTTP API: account registration and login, and the
// token-protected speech, chat and text generation endpoints that front the
// upstream providers.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gita-voice-lab/internal/auth"
	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/logging"
)

// Body limits. Speech uploads carry base64 audio.
const (
	defaultBodyLimit = 1 << 20
	speechBodyLimit  = 10 << 20
)

// Speech transcribes and synthesizes audio.
type Speech interface {
	Transcribe(ctx context.Context, wav []byte, lang convo.Language) (string, error)
	Synthesize(ctx context.Context, text string, lang convo.Language) (string, error)
}

// Chat completes a conversation.
type Chat interface {
	Complete(ctx context.Context, system string, history convo.Transcript, message string, maxTokens int) (string, error)
}

type Server struct {
	auth   *auth.Service
	speech Speech
	chat   Chat
	mux    *http.ServeMux
}

func New(svc *auth.Service, speech Speech, chat Chat) *Server {
	s := &Server{auth: svc, speech: speech, chat: chat, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	s.mux.Handle("/auth/register", postOnly(s.handleRegister))
	s.mux.Handle("/auth/login", postOnly(s.handleLogin))
	s.mux.Handle("/voice/speech-to-text", postOnly(s.requireToken(s.handleSpeechToText)))
	s.mux.Handle("/voice/chat", postOnly(s.requireToken(s.handleChat)))
	s.mux.Handle("/voice/text-to-speech", postOnly(s.requireToken(s.handleTextToSpeech)))
	s.mux.HandleFunc("/generate", s.handleGenerate)
}

// Handler returns the API with request logging applied.
func (s *Server) Handler() http.Handler {
	return withRequestLog(s.mux)
}

func postOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		next(w, r)
	})
}

type claimsKey struct{}

// requireToken verifies the token header. A missing, malformed, expired or
// foreign token is answered with 401 before next runs.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := s.auth.Verify(r.Header.Get(gateway.TokenHeader))
		if claims == nil {
			logging.DebugwCtx(r.Context(), "server: rejected token", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "Not authorized")
			return
		}
		ctx := logging.WithFields(r.Context(), logging.UserFields(claims.ID, claims.Email)...)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		next(w, r.WithContext(ctx))
	}
}

// ClaimsFrom returns the verified claims of a protected request.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return c
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags each request with a correlation id (taken from the
// client when present) and logs its outcome.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(gateway.CorrelationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		w.Header().Set(gateway.CorrelationHeader, cid)
		ctx := logging.WithFields(r.Context(), "correlation_id", cid)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		kv := []interface{}{"method", r.Method, "path", r.URL.Path, "status", rec.status, "latency_ms", time.Since(start).Milliseconds()}
		if rec.status >= 500 {
			logging.WarnwCtx(ctx, "server: request failed", kv...)
			return
		}
		logging.DebugwCtx(ctx, "server: request", kv...)
	})
}
