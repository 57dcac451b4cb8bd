package stt

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	// LinearSampleRateHz applies to linear16 input only; opus formats carry their own.
	LinearSampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c, LinearSampleRateHz: 16000}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) config(language, format string) (*speechpb.RecognitionConfig, error) {
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               NormalizeLanguage(language, ""),
		EnableAutomaticPunctuation: true,
	}
	switch NormalizeFormat(format) {
	case FormatLinear16:
		cfg.Encoding = speechpb.RecognitionConfig_LINEAR16
		cfg.SampleRateHertz = g.LinearSampleRateHz
	case FormatFLAC:
		cfg.Encoding = speechpb.RecognitionConfig_FLAC
	case FormatOggOpus:
		cfg.Encoding = speechpb.RecognitionConfig_OGG_OPUS
		cfg.SampleRateHertz = 48000
	case FormatWebmOpus:
		cfg.Encoding = speechpb.RecognitionConfig_WEBM_OPUS
		cfg.SampleRateHertz = 48000
	default:
		return nil, fmt.Errorf("unsupported audio format %q", format)
	}
	return cfg, nil
}

func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, language, format string) (string, float64, error) {
	cfg, err := g.config(language, format)
	if err != nil {
		return "", 0, err
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", 0, err
	}

	// Results are consecutive pieces of the utterance; join the best alternative of each.
	var text string
	var confSum float64
	var n int
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		if text != "" {
			text += " "
		}
		text += alt.Transcript
		confSum += float64(alt.Confidence)
		n++
	}
	if n == 0 {
		return "", 0, nil
	}
	return text, confSum / float64(n), nil
}
