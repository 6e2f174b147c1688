package main

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestRedactAnyNested(t *testing.T) {
	v := map[string]any{
		"Token": "secret",
		"d":     []any{map[string]any{"session_id": "s", "guild_id": "g"}},
	}
	redactAny(v)
	if v["Token"] != "<redacted>" {
		t.Fatalf("top-level token not redacted: %v", v)
	}
	inner := v["d"].([]any)[0].(map[string]any)
	if inner["session_id"] != "<redacted>" || inner["guild_id"] != "g" {
		t.Fatalf("unexpected nested values: %v", inner)
	}
}

func TestEventMeta(t *testing.T) {
	typ, g, c, u := eventMeta(&discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", ChannelID: "c", UserID: "u"}})
	if typ != "VoiceStateUpdate" || g != "g" || c != "c" || u != "u" {
		t.Fatalf("unexpected meta: %s %s %s %s", typ, g, c, u)
	}
	typ, g, _, u = eventMeta(map[string]any{"guild_id": "g2", "user_id": "u2"})
	if typ != "<raw>" || g != "g2" || u != "u2" {
		t.Fatalf("unexpected raw meta: %s %s %s", typ, g, u)
	}
}

func TestPayloadRedactsTypedEvents(t *testing.T) {
	l := eventLogger{maxPayload: 1 << 10}
	out := l.payload(&discordgo.Ready{SessionID: "very-secret"})
	if strings.Contains(out, "very-secret") {
		t.Fatalf("session id leaked: %s", out)
	}
}

func TestPayloadTruncates(t *testing.T) {
	l := eventLogger{maxPayload: 8}
	out := l.payload(map[string]any{"content": strings.Repeat("x", 100)})
	if !strings.HasSuffix(out, "bytes>") || !strings.HasPrefix(out, `{"conten`) {
		t.Fatalf("unexpected truncation: %s", out)
	}
}
