package upstream

import "github.com/gita-voice-lab/internal/convo"

const persona = `You are Krishna from the Bhagavad Gita, a wise and compassionate spiritual guide. 
You speak with warmth, wisdom, and clarity. Keep responses concise but meaningful.
Answer questions about life, dharma, karma, and spiritual growth based on the teachings of the Gita.
`

// VoicePrompt pins the reply language to the turn's selection so the TTS
// voice can read it.
func VoicePrompt(lang convo.Language) string {
	return persona + "IMPORTANT: Always respond in " + lang.Name() + " language only."
}

// TextPrompt lets the model mirror the user's language.
func TextPrompt() string {
	return persona + "Respond in the same language the user speaks to you."
}
