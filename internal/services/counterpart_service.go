package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/cache"
	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/providers/llm"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/storage"
	"github.com/nuevpro/ventas/internal/utils"
	"github.com/nuevpro/ventas/internal/voices"
)

const (
	historyWindow   = 20
	snippetsPerTurn = 3
	metricsTTL      = 24 * time.Hour
)

type ReplyOptions struct {
	Synthesize bool
	// Stream publishes reply chunks on the session response channel as they arrive.
	Stream     bool
	ChunkIndex int64
	Speech     SynthesisParams
}

type Reply struct {
	Turn        *models.ConversationTurn `json:"turn"`
	VoiceHint   string                   `json:"voice_hint,omitempty"`
	AudioBase64 string                   `json:"audio_base64,omitempty"`
}

type CounterpartService interface {
	// Respond answers the latest user turn as the simulated client and appends the
	// AI turn to the session.
	Respond(ctx context.Context, userID, sessionID string, opts ReplyOptions) (*Reply, error)
	// ObserveUserTurn recomputes the real-time metrics after a user turn.
	ObserveUserTurn(ctx context.Context, sessionID string, userTurns int, text string) metrics.RealTime
}

type counterpartService struct {
	sessions  SessionService
	scenarios pgrepo.ScenarioRepository
	knowledge KnowledgeService
	speech    SpeechService
	uploader  storage.Uploader
	llm       llm.Provider
	cache     cache.Cache
	bus       events.Publisher
	log       *logrus.Logger
}

type CounterpartDeps struct {
	Sessions  SessionService
	Scenarios pgrepo.ScenarioRepository
	Knowledge KnowledgeService
	Speech    SpeechService
	Uploader  storage.Uploader
	LLM       llm.Provider
	Cache     cache.Cache
	Bus       events.Publisher
	Log       *logrus.Logger
}

func NewCounterpartService(d CounterpartDeps) CounterpartService {
	if d.Cache == nil {
		d.Cache = cache.NewMemoryCache()
	}
	if d.Log == nil {
		d.Log = logrus.New()
	}
	return &counterpartService{
		sessions:  d.Sessions,
		scenarios: d.Scenarios,
		knowledge: d.Knowledge,
		speech:    d.Speech,
		uploader:  d.Uploader,
		llm:       d.LLM,
		cache:     d.Cache,
		bus:       d.Bus,
		log:       d.Log,
	}
}

func (s *counterpartService) ObserveUserTurn(ctx context.Context, sessionID string, userTurns int, text string) metrics.RealTime {
	var prev *int
	var last int
	if hit, err := s.cache.GetJSON(ctx, cache.MetricsKey(sessionID), &last); err == nil && hit {
		prev = &last
	}
	m := metrics.Estimate(text, userTurns, prev)
	if err := s.cache.SetJSON(ctx, cache.MetricsKey(sessionID), m.Overall, metricsTTL); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("metrics cache write failed")
	}
	return m
}

type replyPayload struct {
	Reply     string `json:"reply"`
	VoiceHint string `json:"voice_hint"`
}

// ParseReply reads {"reply","voice_hint"}; anything that is not that JSON is the
// reply text itself.
func ParseReply(raw string) (string, string) {
	cleaned := llm.CleanJSON(raw)
	var p replyPayload
	if strings.HasPrefix(cleaned, "{") && json.Unmarshal([]byte(cleaned), &p) == nil && strings.TrimSpace(p.Reply) != "" {
		return strings.TrimSpace(p.Reply), strings.TrimSpace(p.VoiceHint)
	}
	return strings.TrimSpace(raw), ""
}

func (s *counterpartService) Respond(ctx context.Context, userID, sessionID string, opts ReplyOptions) (*Reply, error) {
	const op = "CounterpartService.Respond"

	if s.llm == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "conversation model not configured", nil)
	}

	sess, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended() {
		return nil, utils.E(utils.CodeConflict, op, "session already ended", utils.ErrSessionEnded)
	}
	turns, err := s.sessions.Messages(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 || turns[len(turns)-1].Sender != models.SenderUser {
		return nil, utils.E(utils.CodeInvalidArgument, op, "no user message to answer", nil)
	}

	cfg := s.sessions.Config(sess)
	voice, ok := voices.Lookup(cfg.VoiceID)
	if !ok {
		voice = voices.Catalog()[0]
	}

	latest := turns[len(turns)-1]
	history := turns[:len(turns)-1]
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	req := llm.Request{
		System:  s.systemPrompt(ctx, userID, sess, cfg, voice, latest.Content),
		History: toMessages(history),
		Prompt:  latest.Content,
	}

	var text, hint string
	if opts.Stream && s.bus != nil {
		text, err = s.stream(ctx, sessionID, opts.ChunkIndex, req)
	} else {
		req.JSON = true
		var raw string
		raw, err = s.llm.Generate(ctx, req)
		text, hint = ParseReply(raw)
	}
	if err != nil {
		return nil, remoteErr(op, "conversation model failed", err)
	}
	if text == "" {
		return nil, utils.E(utils.CodeMalformedResponse, op, "empty reply", llm.ErrEmptyResponse)
	}

	reply := &Reply{VoiceHint: hint}
	var audioURL *string
	if opts.Synthesize && s.speech != nil {
		audio, _, serr := s.speech.Synthesize(ctx, text, voice.ID, opts.Speech)
		if serr != nil {
			s.log.WithError(serr).WithField("session_id", sessionID).Warn("reply synthesis failed")
		} else {
			reply.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
			if s.uploader != nil {
				url, uerr := s.uploader.Upload(ctx, storage.TurnAudioObject(sessionID, "mp3"), "audio/mpeg", bytes.NewReader(audio))
				if uerr != nil {
					s.log.WithError(uerr).WithField("session_id", sessionID).Warn("reply audio upload failed")
				} else {
					audioURL = &url
				}
			}
		}
	}

	turn, err := s.sessions.SaveMessage(ctx, userID, sessionID, MessageInput{
		Content:  text,
		Sender:   models.SenderAI,
		AudioURL: audioURL,
	})
	if err != nil {
		return nil, err
	}
	reply.Turn = turn
	return reply, nil
}

func (s *counterpartService) stream(ctx context.Context, sessionID string, chunkIndex int64, req llm.Request) (string, error) {
	chunks, errs := s.llm.StreamAnswer(ctx, req)
	respCh := events.SessionResponseChannel(sessionID)

	var full strings.Builder
	seq := int64(0)
	for chunk := range chunks {
		seq++
		full.WriteString(chunk)
		_ = s.bus.Publish(ctx, respCh, map[string]any{
			"type":        "reply_chunk",
			"chunk_index": chunkIndex,
			"seq":         seq,
			"chunk":       chunk,
		})
	}
	if err := <-errs; err != nil {
		return "", err
	}
	return strings.TrimSpace(full.String()), nil
}

func toMessages(turns []models.ConversationTurn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Sender == models.SenderAI {
			role = llm.RoleModel
		}
		out = append(out, llm.Message{Role: role, Text: t.Content})
	}
	return out
}

func (s *counterpartService) systemPrompt(ctx context.Context, userID string, sess *models.TrainingSession, cfg models.SessionConfig, voice models.VoiceProfile, latest string) string {
	var b strings.Builder
	b.WriteString("Eres un CLIENTE potencial en una simulación de entrenamiento de ventas. El usuario es el VENDEDOR. ")
	b.WriteString("Mantente siempre en tu papel, responde de forma natural y breve (1 a 3 frases), plantea objeciones realistas y nunca reveles que eres una IA.\n")

	fmt.Fprintf(&b, "\nTu personaje: %s (%s). Personalidad: %s. Tono: %s. Acento: %s.\n", voice.Name, voice.Description, voice.Personality, voice.Tone, voice.Accent)
	if cfg.EmotionalState != "" {
		fmt.Fprintf(&b, "Estado emocional: %s.\n", cfg.EmotionalState)
	}
	if cfg.ConversationStyle != "" {
		fmt.Fprintf(&b, "Estilo de conversación: %s.\n", cfg.ConversationStyle)
	}
	if cfg.ClientProfile != "" {
		fmt.Fprintf(&b, "Perfil del cliente: %s.\n", cfg.ClientProfile)
	}

	if sess.ScenarioID != nil && s.scenarios != nil {
		if sc, err := s.scenarios.GetByID(ctx, *sess.ScenarioID); err == nil {
			fmt.Fprintf(&b, "\nEscenario: %s. %s\n", sc.Title, sc.Description)
			if sc.PromptInstructions != "" {
				fmt.Fprintf(&b, "Instrucciones: %s\n", sc.PromptInstructions)
			}
		}
	}

	if s.knowledge != nil {
		snippets, err := s.knowledge.Snippets(ctx, userID, latest, snippetsPerTurn)
		if err != nil {
			s.log.WithError(err).WithField("session_id", sess.ID).Warn("knowledge retrieval failed")
		}
		if len(snippets) > 0 {
			b.WriteString("\nInformación del producto que el cliente podría conocer o preguntar:\n")
			for _, sn := range snippets {
				fmt.Fprintf(&b, "- %s: %s\n", sn.Title, sn.Text)
			}
		}
	}

	b.WriteString("\nCuando se pida JSON responde {\"reply\": \"<tu respuesta>\", \"voice_hint\": \"<emoción para la voz>\"}.")
	return b.String()
}
