package discordaudio

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NameResolver turns Discord IDs into display names for logs and replies.
type NameResolver interface {
	UserName(userID string) string
	ChannelName(channelID string) string
}

// NoopResolver returns empty names; useful for tests or to avoid REST
// lookups.
type NoopResolver struct{}

func (NoopResolver) UserName(string) string    { return "" }
func (NoopResolver) ChannelName(string) string { return "" }

// cacheTTL controls how long a cached name is valid.
var cacheTTL = 5 * time.Minute

type cacheEntry struct {
	val    string
	expiry time.Time
}

// SessionResolver looks names up through the session state, falling back
// to REST, and caches them.
type SessionResolver struct {
	s *discordgo.Session

	mu       sync.Mutex
	users    map[string]cacheEntry
	channels map[string]cacheEntry
}

func NewSessionResolver(s *discordgo.Session) *SessionResolver {
	return &SessionResolver{
		s:        s,
		users:    make(map[string]cacheEntry),
		channels: make(map[string]cacheEntry),
	}
}

func (r *SessionResolver) cached(m map[string]cacheEntry, id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := m[id]; ok {
		if time.Now().Before(e.expiry) {
			return e.val, true
		}
		delete(m, id)
	}
	return "", false
}

func (r *SessionResolver) store(m map[string]cacheEntry, id, val string) {
	r.mu.Lock()
	m[id] = cacheEntry{val: val, expiry: time.Now().Add(cacheTTL)}
	r.mu.Unlock()
}

func (r *SessionResolver) UserName(userID string) string {
	if r.s == nil || userID == "" {
		return ""
	}
	if v, ok := r.cached(r.users, userID); ok {
		return v
	}
	if u, err := r.s.User(userID); err == nil && u != nil {
		r.store(r.users, userID, u.Username)
		return u.Username
	}
	return ""
}

func (r *SessionResolver) ChannelName(channelID string) string {
	if r.s == nil || channelID == "" {
		return ""
	}
	if v, ok := r.cached(r.channels, channelID); ok {
		return v
	}
	if r.s.State != nil {
		if c, err := r.s.State.Channel(channelID); err == nil && c != nil {
			r.store(r.channels, channelID, c.Name)
			return c.Name
		}
	}
	if c, err := r.s.Channel(channelID); err == nil && c != nil {
		r.store(r.channels, channelID, c.Name)
		return c.Name
	}
	return ""
}
