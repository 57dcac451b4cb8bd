package tts

import "context"

type Request struct {
	Text         string
	VoiceName    string
	LanguageCode string
	SpeakingRate float64
	Pitch        float64
}

type Provider interface {
	// Synthesize returns MP3 audio.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	Close() error
}

const (
	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.0
	MinPitch        = -20.0
	MaxPitch        = 20.0
)

// ClampParams keeps synthesis parameters within the provider's accepted ranges.
// A zero speaking rate means the default 1.0.
func ClampParams(rate, pitch float64) (float64, float64) {
	if rate == 0 {
		rate = 1
	}
	rate = min(max(rate, MinSpeakingRate), MaxSpeakingRate)
	pitch = min(max(pitch, MinPitch), MaxPitch)
	return rate, pitch
}
