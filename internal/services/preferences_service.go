package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/cache"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/providers/stt"
	mongorepo "github.com/nuevpro/ventas/internal/repositories/mongo"
	"github.com/nuevpro/ventas/internal/utils"
	"github.com/nuevpro/ventas/internal/voices"
)

const preferencesTTL = 30 * time.Minute

var supportedLanguages = map[string]bool{
	"es-ES":  true,
	"es-MX":  true,
	"es-US":  true,
	"es-419": true,
	"en-US":  true,
}

// PreferencesInput is a partial update; nil fields keep their stored value.
type PreferencesInput struct {
	VoiceID         *string  `json:"voice_id"`
	SpeakingRate    *float64 `json:"speaking_rate"`
	Pitch           *float64 `json:"pitch"`
	AutoPlayAudio   *bool    `json:"auto_play_audio"`
	Language        *string  `json:"language"`
	InteractionMode *string  `json:"interaction_mode"`
}

type PreferencesService interface {
	Get(ctx context.Context, userID string) (*models.UserPreferences, error)
	Update(ctx context.Context, userID string, in PreferencesInput) (*models.UserPreferences, error)
}

type preferencesService struct {
	repo  mongorepo.PreferencesRepository
	cache cache.Cache
	log   *logrus.Logger
	now   func() time.Time
}

func NewPreferencesService(repo mongorepo.PreferencesRepository, c cache.Cache, log *logrus.Logger) PreferencesService {
	if log == nil {
		log = logrus.New()
	}
	return &preferencesService{repo: repo, cache: c, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// ValidatePreferences checks a whole stored or merged document.
func ValidatePreferences(p *models.UserPreferences) error {
	if p.SchemaVersion != models.PreferencesSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d", p.SchemaVersion)
	}
	if p.VoiceID != "" {
		if _, ok := voices.Lookup(p.VoiceID); !ok {
			return fmt.Errorf("unknown voice_id %q", p.VoiceID)
		}
	}
	if math.IsNaN(p.SpeakingRate) || p.SpeakingRate < 0.25 || p.SpeakingRate > 4 {
		return errors.New("speaking_rate must be between 0.25 and 4")
	}
	if math.IsNaN(p.Pitch) || p.Pitch < -20 || p.Pitch > 20 {
		return errors.New("pitch must be between -20 and 20")
	}
	if !supportedLanguages[p.Language] {
		return fmt.Errorf("unsupported language %q", p.Language)
	}
	if p.InteractionMode != "voice" && p.InteractionMode != "text" {
		return errors.New("interaction_mode must be voice or text")
	}
	return nil
}

func (s *preferencesService) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	const op = "PreferencesService.Get"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}

	key := cache.PreferencesKey(userID)
	if s.cache != nil {
		var cached models.UserPreferences
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).Warn("preferences cache read failed")
		}
		if hit && ValidatePreferences(&cached) == nil {
			return &cached, nil
		}
	}

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load preferences", err)
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, p, preferencesTTL)
	}
	return p, nil
}

// load never returns a partially applied document: anything that does not
// validate is replaced by defaults.
func (s *preferencesService) load(ctx context.Context, userID string) (*models.UserPreferences, error) {
	def := models.DefaultPreferences(userID)

	p, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		return &def, nil
	case errors.Is(err, mongorepo.ErrUndecodable):
		s.log.WithError(err).WithField("user_id", userID).Warn("stored preferences ignored")
		return &def, nil
	case err != nil:
		return nil, err
	}

	if verr := ValidatePreferences(p); verr != nil {
		s.log.WithError(verr).WithFields(logrus.Fields{
			"user_id":        userID,
			"schema_version": p.SchemaVersion,
		}).Warn("stored preferences ignored")
		return &def, nil
	}
	return p, nil
}

func (s *preferencesService) Update(ctx context.Context, userID string, in PreferencesInput) (*models.UserPreferences, error) {
	const op = "PreferencesService.Update"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	cur, err := s.load(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load preferences", err)
	}

	next := *cur
	next.UserID = userID
	next.SchemaVersion = models.PreferencesSchemaVersion
	if in.VoiceID != nil {
		next.VoiceID = *in.VoiceID
	}
	if in.SpeakingRate != nil {
		next.SpeakingRate = *in.SpeakingRate
	}
	if in.Pitch != nil {
		next.Pitch = *in.Pitch
	}
	if in.AutoPlayAudio != nil {
		next.AutoPlayAudio = *in.AutoPlayAudio
	}
	if in.Language != nil {
		next.Language = stt.NormalizeLanguage(*in.Language, next.Language)
	}
	if in.InteractionMode != nil {
		next.InteractionMode = *in.InteractionMode
	}
	if err := ValidatePreferences(&next); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), err)
	}
	next.UpdatedAt = s.now()

	if err := s.repo.Upsert(ctx, &next); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to save preferences", err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cache.PreferencesKey(userID)); err != nil {
			s.log.WithError(err).Warn("preferences cache invalidation failed")
		}
	}
	return &next, nil
}
