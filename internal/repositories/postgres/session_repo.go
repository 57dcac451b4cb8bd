package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

// Completion is what EndSession writes in one statement.
type Completion struct {
	CompletedAt     time.Time
	DurationSeconds int64
	DurationMinutes int
	Score           int
	PausedSeconds   int64
	ConversationLog datatypes.JSON
}

type SessionRepository interface {
	Create(ctx context.Context, s *models.TrainingSession) error
	GetByID(ctx context.Context, id string) (*models.TrainingSession, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.TrainingSession, error)

	// AppendTurn allocates the next seq under the session row lock and inserts the
	// turn. Returns utils.ErrSessionEnded for completed sessions.
	AppendTurn(ctx context.Context, sessionID string, t *models.ConversationTurn) error
	ListTurns(ctx context.Context, sessionID string) ([]models.ConversationTurn, error)

	// Pause and Resume report whether the state changed.
	Pause(ctx context.Context, id string, at time.Time) (bool, error)
	Resume(ctx context.Context, id string, at time.Time) (bool, error)

	// Complete ends an active session; a second call returns utils.ErrSessionEnded.
	Complete(ctx context.Context, id string, c Completion) error
	// ApplyScore replaces the final score and log of an ended session. Returns
	// utils.ErrNotFound when the session is missing or still open.
	ApplyScore(ctx context.Context, id string, score int, log datatypes.JSON) error
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.TrainingSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*models.TrainingSession, error) {
	var row models.TrainingSession
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.TrainingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.TrainingSession
	err := r.db.WithContext(ctx).
		Omit("conversation_log").
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// missingOrEnded tells apart the two reasons a guarded UPDATE touched no row.
func missingOrEnded(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&models.TrainingSession{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return utils.ErrNotFound
	}
	return utils.ErrSessionEnded
}

func (r *sessionRepo) AppendTurn(ctx context.Context, sessionID string, t *models.ConversationTurn) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// taking the row lock here serializes concurrent appends to the same session
		res := tx.Model(&models.TrainingSession{}).
			Where("id = ? AND completed_at IS NULL", sessionID).
			UpdateColumn("turn_count", gorm.Expr("turn_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrEnded(tx, sessionID)
		}

		var cur struct {
			TurnCount       int64
			LastTurnSeconds float64
		}
		if err := tx.Model(&models.TrainingSession{}).
			Select("turn_count", "last_turn_seconds").
			Where("id = ?", sessionID).
			Take(&cur).Error; err != nil {
			return err
		}

		if t.RelativeSeconds < cur.LastTurnSeconds {
			t.RelativeSeconds = cur.LastTurnSeconds
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.SessionID = sessionID
		t.Seq = cur.TurnCount
		if t.CreatedAt.IsZero() {
			t.CreatedAt = tx.NowFunc()
		}
		if err := tx.Create(t).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.TrainingSession{}).
			Where("id = ?", sessionID).
			UpdateColumns(map[string]any{
				"last_turn_seconds": t.RelativeSeconds,
				"updated_at":        t.CreatedAt,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.TrainingSession{}).
			Where("id = ? AND status = ?", sessionID, models.SessionCreated).
			UpdateColumn("status", models.SessionActive).Error
	})
}

func (r *sessionRepo) ListTurns(ctx context.Context, sessionID string) ([]models.ConversationTurn, error) {
	var rows []models.ConversationTurn
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&rows).Error
	return rows, err
}

func (r *sessionRepo) Pause(ctx context.Context, id string, at time.Time) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TrainingSession{}).
			Where("id = ? AND completed_at IS NULL AND paused_at IS NULL", id).
			UpdateColumns(map[string]any{
				"paused_at":  at,
				"status":     models.SessionPaused,
				"updated_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			changed = true
			return nil
		}
		s, err := r.getTx(tx, id)
		if err != nil {
			return err
		}
		if s.Ended() {
			return utils.ErrSessionEnded
		}
		return nil // already paused
	})
	return changed, err
}

func (r *sessionRepo) Resume(ctx context.Context, id string, at time.Time) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := r.getTx(tx, id)
		if err != nil {
			return err
		}
		if s.Ended() {
			return utils.ErrSessionEnded
		}
		if s.PausedAt == nil {
			return nil
		}

		delta := int64(at.Sub(*s.PausedAt).Seconds())
		if delta < 0 {
			delta = 0
		}
		res := tx.Model(&models.TrainingSession{}).
			Where("id = ? AND paused_at IS NOT NULL AND completed_at IS NULL", id).
			UpdateColumns(map[string]any{
				"paused_at":      nil,
				"paused_seconds": gorm.Expr("paused_seconds + ?", delta),
				"status":         models.SessionActive,
				"updated_at":     at,
			})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected == 1
		return nil
	})
	return changed, err
}

func (r *sessionRepo) Complete(ctx context.Context, id string, c Completion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TrainingSession{}).
			Where("id = ? AND completed_at IS NULL", id).
			UpdateColumns(map[string]any{
				"status":           models.SessionEnded,
				"completed_at":     c.CompletedAt,
				"paused_at":        nil,
				"paused_seconds":   c.PausedSeconds,
				"duration_seconds": c.DurationSeconds,
				"duration_minutes": c.DurationMinutes,
				"score":            c.Score,
				"conversation_log": c.ConversationLog,
				"updated_at":       c.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrEnded(tx, id)
		}
		return nil
	})
}

func (r *sessionRepo) ApplyScore(ctx context.Context, id string, score int, log datatypes.JSON) error {
	res := r.db.WithContext(ctx).Model(&models.TrainingSession{}).
		Where("id = ? AND completed_at IS NOT NULL", id).
		UpdateColumns(map[string]any{
			"score":            score,
			"conversation_log": log,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) getTx(tx *gorm.DB, id string) (*models.TrainingSession, error) {
	var row models.TrainingSession
	err := tx.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
