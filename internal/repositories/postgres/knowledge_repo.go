package postgres

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

type KnowledgeRepository interface {
	Create(ctx context.Context, d *models.KnowledgeDocument) error
	Save(ctx context.Context, d *models.KnowledgeDocument) error
	GetByID(ctx context.Context, id string) (*models.KnowledgeDocument, error)
	ListByUser(ctx context.Context, userID, category string) ([]models.KnowledgeDocument, error)
	Delete(ctx context.Context, id string) error

	// Nearest returns ready documents ordered by cosine distance to vec.
	Nearest(ctx context.Context, userID string, vec []float32, k int) ([]models.KnowledgeDocument, error)
	Recent(ctx context.Context, userID string, k int) ([]models.KnowledgeDocument, error)
}

type knowledgeRepo struct {
	db *gorm.DB
}

func NewKnowledgeRepo(db *gorm.DB) KnowledgeRepository {
	return &knowledgeRepo{db: db}
}

func (r *knowledgeRepo) Create(ctx context.Context, d *models.KnowledgeDocument) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *knowledgeRepo) Save(ctx context.Context, d *models.KnowledgeDocument) error {
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *knowledgeRepo) GetByID(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	var row models.KnowledgeDocument
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *knowledgeRepo) ListByUser(ctx context.Context, userID, category string) ([]models.KnowledgeDocument, error) {
	q := r.db.WithContext(ctx).Omit("embedding").Where("user_id = ?", userID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var rows []models.KnowledgeDocument
	err := q.Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (r *knowledgeRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.KnowledgeDocument{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *knowledgeRepo) Nearest(ctx context.Context, userID string, vec []float32, k int) ([]models.KnowledgeDocument, error) {
	if k <= 0 {
		k = 3
	}
	var rows []models.KnowledgeDocument
	err := r.db.WithContext(ctx).
		Omit("embedding").
		Where("user_id = ? AND status = ? AND embedding IS NOT NULL", userID, models.DocumentReady).
		Order(gorm.Expr("embedding <=> ?", pgvector.NewVector(vec))).
		Limit(k).
		Find(&rows).Error
	return rows, err
}

func (r *knowledgeRepo) Recent(ctx context.Context, userID string, k int) ([]models.KnowledgeDocument, error) {
	if k <= 0 {
		k = 3
	}
	var rows []models.KnowledgeDocument
	err := r.db.WithContext(ctx).
		Omit("embedding").
		Where("user_id = ? AND status = ?", userID, models.DocumentReady).
		Order("created_at DESC").
		Limit(k).
		Find(&rows).Error
	return rows, err
}
