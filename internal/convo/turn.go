// Package convo holds the conversation model shared by the gateway clients
// and the turn orchestrator.
package convo

// Role says who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the transcript.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func UserTurn(text string) Turn      { return Turn{Role: RoleUser, Text: text} }
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// Transcript is the ordered, append-only dialogue history.
type Transcript []Turn

// Clone returns a copy that shares no backing array with t. An empty
// transcript clones to nil.
func (t Transcript) Clone() Transcript {
	if len(t) == 0 {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Last returns the final turn, if any.
func (t Transcript) Last() (Turn, bool) {
	if len(t) == 0 {
		return Turn{}, false
	}
	return t[len(t)-1], true
}
