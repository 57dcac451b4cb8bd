package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/providers/stt"
	"github.com/nuevpro/ventas/internal/providers/tts"
	"github.com/nuevpro/ventas/internal/utils"
	"github.com/nuevpro/ventas/internal/voices"
)

const (
	maxSynthesisChars = 4500
	maxAudioBytes     = 10 << 20
)

type SynthesisParams struct {
	SpeakingRate float64 `json:"speaking_rate"`
	Pitch        float64 `json:"pitch"`
}

type SpeechService interface {
	// Synthesize returns MP3 audio for text spoken by the catalog voice voiceID.
	Synthesize(ctx context.Context, text, voiceID string, p SynthesisParams) ([]byte, models.VoiceProfile, error)
	Transcribe(ctx context.Context, audio []byte, language, format string) (string, float64, error)
	// FetchAudio downloads a recorded chunk referenced by URL.
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

type speechService struct {
	tts         tts.Provider
	stt         stt.Provider
	client      *http.Client
	defaultLang string
}

func NewSpeechService(t tts.Provider, s stt.Provider, defaultLang string) SpeechService {
	return &speechService{
		tts:         t,
		stt:         s,
		client:      &http.Client{Timeout: 20 * time.Second},
		defaultLang: stt.NormalizeLanguage(defaultLang, "es-ES"),
	}
}

func (s *speechService) Synthesize(ctx context.Context, text, voiceID string, p SynthesisParams) ([]byte, models.VoiceProfile, error) {
	const op = "SpeechService.Synthesize"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.VoiceProfile{}, utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}
	if utf8.RuneCountInString(text) > maxSynthesisChars {
		return nil, models.VoiceProfile{}, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("text exceeds %d characters", maxSynthesisChars), nil)
	}
	voice, ok := voices.Lookup(voiceID)
	if !ok {
		return nil, models.VoiceProfile{}, utils.E(utils.CodeInvalidArgument, op, "unknown voice_id", nil)
	}
	if s.tts == nil {
		return nil, voice, utils.E(utils.CodeUnavailable, op, "speech synthesis not configured", nil)
	}

	rate, pitch := tts.ClampParams(p.SpeakingRate, p.Pitch)
	audio, err := s.tts.Synthesize(ctx, tts.Request{
		Text:         text,
		VoiceName:    voice.ProviderVoice,
		LanguageCode: voice.LanguageCode,
		SpeakingRate: rate,
		Pitch:        pitch,
	})
	if err != nil {
		return nil, voice, remoteErr(op, "speech synthesis failed", err)
	}
	return audio, voice, nil
}

func (s *speechService) Transcribe(ctx context.Context, audio []byte, language, format string) (string, float64, error) {
	const op = "SpeechService.Transcribe"

	if len(audio) == 0 {
		return "", 0, utils.E(utils.CodeInvalidArgument, op, "audio is empty", nil)
	}
	if len(audio) > maxAudioBytes {
		return "", 0, utils.E(utils.CodeUnsupportedInput, op, "audio exceeds 10MB", nil)
	}
	if s.stt == nil {
		return "", 0, utils.E(utils.CodeUnavailable, op, "speech recognition not configured", nil)
	}

	text, conf, err := s.stt.Transcribe(ctx, audio, stt.NormalizeLanguage(language, s.defaultLang), stt.NormalizeFormat(format))
	if err != nil {
		return "", 0, remoteErr(op, "speech recognition failed", err)
	}
	return text, conf, nil
}

func (s *speechService) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	const op = "SpeechService.FetchAudio"

	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio_url must be http(s)", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid audio_url", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, remoteErr(op, "failed to fetch audio", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return nil, utils.E(utils.CodeForbidden, op, "audio source not accessible", nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, utils.E(utils.CodeUnavailable, op, fmt.Sprintf("audio source returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, remoteErr(op, "failed to read audio", err)
	}
	if len(body) > maxAudioBytes {
		return nil, utils.E(utils.CodeUnsupportedInput, op, "audio exceeds 10MB", nil)
	}
	if len(body) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty audio", nil)
	}
	return body, nil
}

// remoteErr is the RemoteCallFailure mapping; deadline errors become TIMEOUT.
func remoteErr(op, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.E(utils.CodeTimeout, op, msg, err)
	}
	return utils.E(utils.CodeUnavailable, op, msg, err)
}
