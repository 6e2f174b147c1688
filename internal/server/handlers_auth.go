package server

import (
	"errors"
	"net/http"

	"github.com/gita-voice-lab/internal/auth"
	"github.com/gita-voice-lab/internal/logging"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *auth.PublicUser `json:"user"`
	Token string           `json:"token"`
}

const msgCredentialsRequired = "Email and password required"

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(w, r, defaultBodyLimit, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		return
	}
	u, err := s.auth.Register(r.Context(), in.Email, in.Password)
	switch {
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.Errorw("server: register failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	s.issue(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(w, r, defaultBodyLimit, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		return
	}
	u, err := s.auth.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil && !errors.Is(err, auth.ErrInvalidInput) {
		logging.Errorw("server: login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	logging.InfowCtx(r.Context(), "server: user logged in", logging.UserFields(u.ID, u.Email)...)
	s.issue(w, http.StatusOK, u)
}

func (s *Server) issue(w http.ResponseWriter, status int, u *auth.PublicUser) {
	token, err := s.auth.Issue(u)
	if err != nil {
		logging.Errorw("server: issue token", "err", err)
		writeError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	writeJSON(w, status, authResponse{User: u, Token: token})
}
