package models

// VoiceProfile is a static catalog entry; selected, never created or mutated.
type VoiceProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Personality string `json:"personality"`
	Accent      string `json:"accent"`
	Tone        string `json:"tone"`
	Description string `json:"description"`

	// Synthesis voice (Google Cloud TTS voice name + BCP-47 language).
	ProviderVoice string `json:"provider_voice"`
	LanguageCode  string `json:"language_code"`
}

// VoiceSelection is the result of a rotation draw.
type VoiceSelection struct {
	Voice             VoiceProfile `json:"voice"`
	EmotionalState    string       `json:"emotional_state"`
	ConversationStyle string       `json:"conversation_style"`
}
