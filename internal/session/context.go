// Package session holds the client side of a login: the current token, the
// user decoded from it, and the durable store that carries it across
// restarts. The token is never verified here; the server is the authority.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/auth"
	"github.com/gita-voice-lab/internal/logging"
)

const (
	defaultLoginError    = "Login failed"
	defaultRegisterError = "Registration failed"
)

// Context is the process-wide session. Login, Register and Logout are the
// only mutators; everything else reads a snapshot.
type Context struct {
	baseURL string
	http    *http.Client
	store   TokenStore
	now     func() time.Time

	mu      sync.RWMutex
	token   string
	user    *auth.PublicUser
	expires time.Time
}

// New returns a Context talking to the API at baseURL and persisting the
// token in store.
func New(baseURL string, store TokenStore, httpClient *http.Client) *Context {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if store == nil {
		store = &MemoryStore{}
	}
	return &Context{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		store:   store,
		now:     time.Now,
	}
}

// Start restores a previously stored token. A token whose payload cannot
// be decoded is removed from the store.
func (c *Context) Start(ctx context.Context) error {
	tok, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if tok == "" {
		return nil
	}
	claims, err := auth.DecodeUnverified(tok)
	if err != nil {
		logging.Warnw("session: stored token is malformed; removing", "err", err)
		return c.store.Clear(ctx)
	}
	c.set(tok, claims)
	logging.Infow("session: restored", logging.UserFields(claims.ID, claims.Email)...)
	return nil
}

// LoggedIn reports whether a token is held and its (unverified) expiry has
// not passed.
func (c *Context) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || c.user == nil {
		return false
	}
	return c.expires.IsZero() || c.now().Before(c.expires)
}

// Token returns the current bearer token, or "".
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns a copy of the current user, or nil.
func (c *Context) User() *auth.PublicUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Login authenticates against /auth/login and stores the returned token.
func (c *Context) Login(ctx context.Context, identity, secret string) error {
	return c.authenticate(ctx, "/auth/login", identity, secret, defaultLoginError)
}

// Register creates an account via /auth/register and logs it in.
func (c *Context) Register(ctx context.Context, identity, secret string) error {
	return c.authenticate(ctx, "/auth/register", identity, secret, defaultRegisterError)
}

// Logout forgets the token locally and in the store.
func (c *Context) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.token, c.user, c.expires = "", nil, time.Time{}
	c.mu.Unlock()
	logging.Infow("session: logged out")
	return c.store.Clear(ctx)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *auth.PublicUser `json:"user"`
	Token string           `json:"token"`
	Error string           `json:"error"`
}

func (c *Context) authenticate(ctx context.Context, path, identity, secret, fallback string) error {
	body, err := sonic.Marshal(credentials{Email: identity, Password: secret})
	if err != nil {
		return &AuthError{Message: fallback, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &AuthError{Message: fallback, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logging.Warnw("session: auth request failed", "path", path, "err", err)
		return &AuthError{Message: fallback, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &AuthError{Status: resp.StatusCode, Message: fallback, Err: err}
	}
	var out authResponse
	decodeErr := sonic.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fallback
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		logging.Warnw("session: auth rejected", "path", path, "status", resp.StatusCode)
		return &AuthError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil || out.Token == "" {
		return &AuthError{Status: resp.StatusCode, Message: fallback, Err: fmt.Errorf("malformed auth response: %v", decodeErr)}
	}

	if err := c.store.Save(ctx, out.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	claims, _ := auth.DecodeUnverified(out.Token)

	c.mu.Lock()
	c.token = out.Token
	c.user = out.User
	c.expires = time.Time{}
	if claims != nil {
		if c.user == nil {
			c.user = &auth.PublicUser{ID: claims.ID, Email: claims.Email}
		}
		if claims.ExpiresAt != nil {
			c.expires = claims.ExpiresAt.Time
		}
	}
	user := c.user
	c.mu.Unlock()

	if user != nil {
		logging.Infow("session: logged in", append(logging.UserFields(user.ID, user.Email), "path", path)...)
	}
	return nil
}

func (c *Context) set(tok string, claims *auth.Claims) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
	c.user = &auth.PublicUser{ID: claims.ID, Email: claims.Email}
	c.expires = time.Time{}
	if claims.ExpiresAt != nil {
		c.expires = claims.ExpiresAt.Time
	}
}
