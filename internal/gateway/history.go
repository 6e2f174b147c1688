package gateway

import (
	"strings"

	"github.com/gita-voice-lab/internal/convo"
)

// The two chat endpoints encode history differently. Everything inside the
// process uses convo.Transcript; these helpers translate at the wire.

const (
	humanPrefix = "Human:"
	aiPrefix    = "AI:"
)

// ToChatMessages encodes a transcript as /voice/chat history.
func ToChatMessages(t convo.Transcript) []ChatMessage {
	out := make([]ChatMessage, 0, len(t))
	for _, turn := range t {
		out = append(out, ChatMessage{Sent: turn.Role == convo.RoleUser, Message: turn.Text})
	}
	return out
}

// FromChatMessages decodes /voice/chat history.
func FromChatMessages(msgs []ChatMessage) convo.Transcript {
	out := make(convo.Transcript, 0, len(msgs))
	for _, m := range msgs {
		if m.Sent {
			out = append(out, convo.UserTurn(m.Message))
		} else {
			out = append(out, convo.AssistantTurn(m.Message))
		}
	}
	return out
}

// ToExchanges encodes a transcript as /generate history: one
// "Human: ...\nAI: ..." string per exchange. A trailing unanswered user turn
// is encoded without an AI line.
func ToExchanges(t convo.Transcript) []string {
	var out []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, turn := range t {
		switch turn.Role {
		case convo.RoleUser:
			flush()
			cur = append(cur, humanPrefix+" "+turn.Text)
		case convo.RoleAssistant:
			cur = append(cur, aiPrefix+" "+turn.Text)
			flush()
		}
	}
	flush()
	if out == nil {
		out = []string{}
	}
	return out
}

// ParseExchanges decodes /generate history. Lines starting with "Human:" are
// user turns, "AI:" assistant turns; anything else is dropped.
func ParseExchanges(items []string) convo.Transcript {
	var out convo.Transcript
	for _, item := range items {
		for _, line := range strings.Split(item, "\n") {
			switch {
			case strings.HasPrefix(line, humanPrefix):
				out = append(out, convo.UserTurn(strings.TrimSpace(strings.TrimPrefix(line, humanPrefix))))
			case strings.HasPrefix(line, aiPrefix):
				out = append(out, convo.AssistantTurn(strings.TrimSpace(strings.TrimPrefix(line, aiPrefix))))
			}
		}
	}
	return out
}

// Exchange formats one question/answer pair the way /generate stores it.
func Exchange(question, answer string) string {
	return humanPrefix + " " + question + "\n" + aiPrefix + " " + answer
}
