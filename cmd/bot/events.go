package main

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/logging"
)

// sensitiveKeys lists JSON keys which should never be logged in plaintext.
var sensitiveKeys = map[string]struct{}{
	"token": {}, "session_id": {}, "access_token": {}, "refresh_token": {},
	"authorization": {}, "password": {}, "email": {}, "client_secret": {},
}

// redactAny walks a decoded JSON value and replaces values for sensitive
// keys with a placeholder, in place.
func redactAny(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		for k, val := range vv {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				vv[k] = "<redacted>"
				continue
			}
			vv[k] = redactAny(val)
		}
		return vv
	case []any:
		for i, it := range vv {
			vv[i] = redactAny(it)
		}
		return vv
	default:
		return v
	}
}

// eventMeta pulls the searchable fields from the events the bot cares about.
func eventMeta(evt any) (evtType, guildID, channelID, userID string) {
	switch e := evt.(type) {
	case *discordgo.VoiceStateUpdate:
		if e.VoiceState == nil {
			return "VoiceStateUpdate", "", "", ""
		}
		return "VoiceStateUpdate", e.GuildID, e.ChannelID, e.UserID
	case *discordgo.Ready:
		if e.User != nil {
			userID = e.User.ID
		}
		return "Ready", "", "", userID
	case *discordgo.GuildCreate:
		return "GuildCreate", e.ID, "", ""
	case *discordgo.InteractionCreate:
		if e.Interaction == nil {
			return "InteractionCreate", "", "", ""
		}
		return "InteractionCreate", e.GuildID, e.ChannelID, interactionUser(e)
	case map[string]any:
		evtType = "<raw>"
		guildID, _ = e["guild_id"].(string)
		channelID, _ = e["channel_id"].(string)
		userID, _ = e["user_id"].(string)
		return
	}
	return fmt.Sprintf("%T", evt), "", "", ""
}

// eventLogger logs every gateway event at debug level with its payload
// redacted and truncated to maxPayload bytes.
type eventLogger struct {
	maxPayload int
}

// payload round-trips typed events through JSON so the same redaction
// applies to them as to raw ones.
func (l eventLogger) payload(obj any) string {
	b, err := sonic.Marshal(obj)
	if err != nil {
		return fmt.Sprintf("<unmarshalable %T>", obj)
	}
	var generic any
	if sonic.Unmarshal(b, &generic) == nil {
		if b, err = sonic.Marshal(redactAny(generic)); err != nil {
			return fmt.Sprintf("<unmarshalable %T>", obj)
		}
	}
	if l.maxPayload > 0 && len(b) > l.maxPayload {
		return string(b[:l.maxPayload]) + fmt.Sprintf("<truncated %d bytes>", len(b))
	}
	return string(b)
}

func (l eventLogger) handle(_ *discordgo.Session, evt *discordgo.Event) {
	var obj any
	if evt.Struct != nil {
		obj = evt.Struct
	} else {
		var v any
		if err := sonic.Unmarshal(evt.RawData, &v); err != nil {
			obj = "<raw data omitted>"
		} else {
			obj = redactAny(v)
		}
	}
	evtType, guildID, channelID, userID := eventMeta(obj)
	if evtType == "<raw>" || evtType == fmt.Sprintf("%T", obj) {
		evtType = evt.Type
	}
	logging.Debugw("discord event", "type", evtType, "guild", guildID, "channel", channelID, "user", userID, "payload", l.payload(obj))
}
