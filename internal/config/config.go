// Package config reads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gita-voice-lab/internal/logging"
)

// DevJWTSecret is used when JWT_SECRET is unset. It must never be relied on
// outside local development.
const DevJWTSecret = "your-secret-key-change-in-production"

// ServerConfig configures cmd/server.
type ServerConfig struct {
	ListenAddr string
	JWTSecret  string

	// UserStore is one of "memory", "redis", "postgres".
	UserStore   string
	RedisURL    string
	DatabaseURL string

	SarvamAPIKey  string
	SarvamBaseURL string

	CerebrasAPIKey  string
	CerebrasBaseURL string
	CerebrasModel   string

	UpstreamTimeout time.Duration
}

// ClientConfig configures the voice clients (cmd/bot, cmd/mcp-server).
type ClientConfig struct {
	APIBaseURL     string
	GatewayTimeout time.Duration

	// TokenStore is one of "memory", "file", "redis".
	TokenStore string
	TokenFile  string
	RedisURL   string
	Profile    string

	Identity string
	Secret   string
	Language string

	StateFeedAddr string

	// SaveAudioDir enables the turn archive when set.
	SaveAudioDir       string
	SaveAudioRetention time.Duration
	SaveAudioMaxFiles  int
	SaveAudioInterval  time.Duration

	DiscordToken   string
	GuildID        string
	VoiceChannelID string

	MCPListenAddr string
}

// LoadServer reads ServerConfig from the environment.
func LoadServer() ServerConfig {
	cfg := ServerConfig{
		ListenAddr:      getString("LISTEN_ADDR", ":3000"),
		JWTSecret:       getString("JWT_SECRET", ""),
		UserStore:       strings.ToLower(getString("USER_STORE", "memory")),
		RedisURL:        getString("REDIS_URL", "redis://127.0.0.1:6379/0"),
		DatabaseURL:     getString("DATABASE_URL", ""),
		SarvamAPIKey:    getString("SARVAM_API_KEY", ""),
		SarvamBaseURL:   strings.TrimRight(getString("SARVAM_BASE_URL", "https://api.sarvam.ai"), "/"),
		CerebrasAPIKey:  getString("CEREBRAS_API_KEY", ""),
		CerebrasBaseURL: strings.TrimRight(getString("CEREBRAS_BASE_URL", "https://api.cerebras.ai/v1"), "/"),
		CerebrasModel:   getString("CEREBRAS_MODEL", "gpt-oss-120b"),
		UpstreamTimeout: getMillis("UPSTREAM_TIMEOUT_MS", 60000),
	}
	if cfg.JWTSecret == "" {
		logging.Warnw("JWT_SECRET not set; using development secret")
		cfg.JWTSecret = DevJWTSecret
	}
	return cfg
}

// LoadClient reads ClientConfig from the environment.
func LoadClient() ClientConfig {
	return ClientConfig{
		APIBaseURL:         strings.TrimRight(getString("API_BASE_URL", "http://127.0.0.1:3000"), "/"),
		GatewayTimeout:     getMillis("GATEWAY_TIMEOUT_MS", 60000),
		TokenStore:         strings.ToLower(getString("TOKEN_STORE", "file")),
		TokenFile:          getString("TOKEN_FILE", defaultTokenFile()),
		RedisURL:           getString("REDIS_URL", "redis://127.0.0.1:6379/0"),
		Profile:            getString("TOKEN_PROFILE", "default"),
		Identity:           getString("VOICE_IDENTITY", ""),
		Secret:             os.Getenv("VOICE_SECRET"),
		Language:           getString("VOICE_LANGUAGE", "hi-IN"),
		StateFeedAddr:      getString("STATE_FEED_ADDR", ""),
		SaveAudioDir:       getString("SAVE_AUDIO_DIR", ""),
		SaveAudioRetention: getDuration("SAVE_AUDIO_RETENTION", 24*time.Hour),
		SaveAudioMaxFiles:  getInt("SAVE_AUDIO_MAX_FILES", 1000),
		SaveAudioInterval:  getDuration("SAVE_AUDIO_CLEAN_INTERVAL", 10*time.Minute),
		DiscordToken:       getString("DISCORD_BOT_TOKEN", ""),
		GuildID:            getString("GUILD_ID", ""),
		VoiceChannelID:     getString("VOICE_CHANNEL_ID", ""),
		MCPListenAddr:      getString("MCP_LISTEN_ADDR", ":9001"),
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".voicechat-token"
	}
	return dir + "/gita-voice-lab/token.json"
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getMillis parses a positive integer millisecond value, warning and using
// def when the value is malformed.
func getMillis(key string, def int) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Duration(def) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logging.Warnw("invalid duration setting; using default", "key", key, "value", v, "default_ms", def)
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}

// getDuration parses a Go duration ("90s", "24h").
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logging.Warnw("invalid duration setting; using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logging.Warnw("invalid integer setting; using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}
