package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

type EvaluationRepository interface {
	Upsert(ctx context.Context, e *models.SessionEvaluation) error
	GetBySession(ctx context.Context, sessionID string) (*models.SessionEvaluation, error)
}

type evaluationRepo struct {
	db *gorm.DB
}

func NewEvaluationRepo(db *gorm.DB) EvaluationRepository {
	return &evaluationRepo{db: db}
}

func (r *evaluationRepo) Upsert(ctx context.Context, e *models.SessionEvaluation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "reason", "overall_score", "scores", "strengths",
			"improvements", "specific_feedback", "model", "updated_at",
		}),
	}).Create(e).Error
}

func (r *evaluationRepo) GetBySession(ctx context.Context, sessionID string) (*models.SessionEvaluation, error) {
	var row models.SessionEvaluation
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
