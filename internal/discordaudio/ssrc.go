// Package discordaudio adapts a Discord voice connection to the voice
// package's Microphone and Speaker. Opus encoding and decoding need libopus
// and are only built with the opus build tag; without it the devices refuse
// acquisition.
package discordaudio

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/gita-voice-lab/internal/logging"
)

// SSRCMap tracks which user each RTP SSRC belongs to, learned from speaking
// updates on the voice websocket.
type SSRCMap struct {
	mu    sync.RWMutex
	users map[uint32]string
}

func NewSSRCMap() *SSRCMap {
	return &SSRCMap{users: make(map[uint32]string)}
}

// HandleSpeakingUpdate records the SSRC -> user mapping. Its signature
// matches VoiceConnection.AddHandler.
func (m *SSRCMap) HandleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	m.mu.Lock()
	m.users[uint32(su.SSRC)] = su.UserID
	m.mu.Unlock()
	logging.Debugw("discordaudio: mapped SSRC -> user", "ssrc", su.SSRC, "user_id", su.UserID)
}

// User returns the user for ssrc, or "".
func (m *SSRCMap) User(ssrc uint32) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[ssrc]
}

// Target selects whose audio a Microphone keeps. An empty user keeps
// nothing, so audio is never captured from an unknown speaker.
type Target struct {
	mu     sync.RWMutex
	userID string
}

func (t *Target) Set(userID string) {
	t.mu.Lock()
	t.userID = userID
	t.mu.Unlock()
}

func (t *Target) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID
}

// accept reports whether a packet from ssrc belongs to the target user.
func accept(m *SSRCMap, t *Target, ssrc uint32) bool {
	want := t.Get()
	return want != "" && m.User(ssrc) == want
}
