package handlers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/services"
	"github.com/nuevpro/ventas/internal/utils"
	"github.com/nuevpro/ventas/internal/voices"
)

// VoiceHandler exposes the voice catalog and the speech endpoints.
type VoiceHandler struct {
	selector *voices.Selector
	speech   services.SpeechService
}

func NewVoiceHandler(selector *voices.Selector, speech services.SpeechService) *VoiceHandler {
	if selector == nil {
		selector = voices.NewSelector()
	}
	return &VoiceHandler{selector: selector, speech: speech}
}

func (h *VoiceHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"voices":              voices.Catalog(),
		"emotional_states":    voices.EmotionalStates(),
		"conversation_styles": voices.ConversationStyles(),
	})
}

func (h *VoiceHandler) Random(c *gin.Context) {
	c.JSON(http.StatusOK, h.selector.PickRandom())
}

type SynthesizeRequest struct {
	Text         string  `json:"text" binding:"required"`
	VoiceID      string  `json:"voice_id" binding:"required"`
	SpeakingRate float64 `json:"speaking_rate"`
	Pitch        float64 `json:"pitch"`
}

func (h *VoiceHandler) Synthesize(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req SynthesizeRequest
	if !bindJSON(c, "VoiceHandler.Synthesize", &req, false) {
		return
	}
	audio, voice, err := h.speech.Synthesize(c.Request.Context(), req.Text, req.VoiceID, services.SynthesisParams{
		SpeakingRate: req.SpeakingRate,
		Pitch:        req.Pitch,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"audio_base64": base64.StdEncoding.EncodeToString(audio),
		"mime_type":    "audio/mpeg",
		"voice":        voice,
	})
}

type TranscribeRequest struct {
	AudioBase64 string `json:"audio_base64"`
	AudioURL    string `json:"audio_url"`
	Language    string `json:"language"`
	Format      string `json:"format"` // webm|ogg|wav|mp3
}

// Transcribe takes JSON (base64 or URL) or a multipart "audio" file.
func (h *VoiceHandler) Transcribe(c *gin.Context) {
	const op = "VoiceHandler.Transcribe"

	if _, ok := requireUserID(c); !ok {
		return
	}

	var req TranscribeRequest
	var audio []byte
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("audio")
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'audio'", err))
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
			return
		}
		defer f.Close()
		if audio, err = io.ReadAll(io.LimitReader(f, 10<<20+1)); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read audio", err))
			return
		}
		req.Language = c.PostForm("language")
		req.Format = c.PostForm("format")
	} else {
		if !bindJSON(c, op, &req, false) {
			return
		}
		var err error
		switch {
		case req.AudioBase64 != "":
			raw := req.AudioBase64
			if i := strings.Index(raw, ","); i >= 0 {
				raw = raw[i+1:]
			}
			if audio, err = base64.StdEncoding.DecodeString(raw); err != nil {
				writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid audio_base64", err))
				return
			}
		case req.AudioURL != "":
			if audio, err = h.speech.FetchAudio(c.Request.Context(), req.AudioURL); err != nil {
				writeError(c, err)
				return
			}
		default:
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "audio_base64 or audio_url required", nil))
			return
		}
	}

	text, conf, err := h.speech.Transcribe(c.Request.Context(), audio, req.Language, req.Format)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text, "confidence": conf})
}
