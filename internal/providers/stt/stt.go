package stt

import (
	"context"
	"strings"
)

// Audio formats accepted from the browser recorder or uploads.
const (
	FormatLinear16 = "linear16"
	FormatFLAC     = "flac"
	FormatOggOpus  = "ogg_opus"
	FormatWebmOpus = "webm_opus"
)

type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language, format string) (text string, confidence float64, err error)
	Close() error
}

// NormalizeLanguage maps short codes to BCP-47; empty falls back to def.
func NormalizeLanguage(v, def string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "es", "es-ES":
		return "es-ES"
	case "es-419", "es-MX", "es-US":
		return v
	case "en", "en-US":
		return "en-US"
	case "":
		if def == "" {
			return "es-ES"
		}
		return def
	default:
		return v
	}
}

func NormalizeFormat(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "webm", "webm_opus", "audio/webm":
		return FormatWebmOpus
	case "ogg", "ogg_opus", "audio/ogg":
		return FormatOggOpus
	case "flac", "audio/flac":
		return FormatFLAC
	case "wav", "pcm", "linear16", "audio/wav":
		return FormatLinear16
	default:
		return ""
	}
}
