package gateway

// Wire bodies of the protected endpoints. They are shared with
// internal/server so both sides agree on field names.

type STTWireRequest struct {
	Audio    string `json:"audio"`
	Language string `json:"language,omitempty"`
}

type STTWireResponse struct {
	Transcript string `json:"transcript"`
}

// ChatMessage is one history entry of /voice/chat; Sent marks user turns.
type ChatMessage struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

type ChatWireRequest struct {
	Message     string        `json:"message"`
	ChatHistory []ChatMessage `json:"chatHistory"`
	Language    string        `json:"language,omitempty"`
}

type ChatWireResponse struct {
	Reply string `json:"reply"`
}

type TTSWireRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type TTSWireResponse struct {
	Audio string `json:"audio"`
}

type GenerateWireRequest struct {
	Question    string   `json:"question"`
	ChatHistory []string `json:"chat_history"`
}

type GenerateWireResponse struct {
	Answer      string   `json:"answer"`
	ChatHistory []string `json:"chat_history"`
}

// ErrorBody is the {"error": ...} envelope of failed responses.
type ErrorBody struct {
	Error string `json:"error"`
}
