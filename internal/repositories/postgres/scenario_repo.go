package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

type ScenarioFilter struct {
	Category   string
	Difficulty string
	// IncludeInactive is only honoured for admins.
	IncludeInactive bool
}

type ScenarioRepository interface {
	List(ctx context.Context, f ScenarioFilter) ([]models.Scenario, error)
	GetByID(ctx context.Context, id string) (*models.Scenario, error)
	Create(ctx context.Context, s *models.Scenario) error
	Update(ctx context.Context, s *models.Scenario) error
	// Upsert is used by the seeder; it replaces every column of an existing id.
	Upsert(ctx context.Context, s *models.Scenario) error
}

type scenarioRepo struct {
	db *gorm.DB
}

func NewScenarioRepo(db *gorm.DB) ScenarioRepository {
	return &scenarioRepo{db: db}
}

func (r *scenarioRepo) List(ctx context.Context, f ScenarioFilter) ([]models.Scenario, error) {
	q := r.db.WithContext(ctx).Model(&models.Scenario{})
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Difficulty != "" {
		q = q.Where("difficulty = ?", f.Difficulty)
	}
	var rows []models.Scenario
	err := q.Order("title ASC").Find(&rows).Error
	return rows, err
}

func (r *scenarioRepo) GetByID(ctx context.Context, id string) (*models.Scenario, error) {
	var row models.Scenario
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Create and Upsert select every column so is_active=false is not replaced by
// the column default.
func (r *scenarioRepo) Create(ctx context.Context, s *models.Scenario) error {
	return r.db.WithContext(ctx).Select("*").Create(s).Error
}

func (r *scenarioRepo) Update(ctx context.Context, s *models.Scenario) error {
	res := r.db.WithContext(ctx).Model(s).Select("*").Omit("id", "created_at").Updates(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *scenarioRepo) Upsert(ctx context.Context, s *models.Scenario) error {
	return r.db.WithContext(ctx).Select("*").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "category", "difficulty", "prompt_instructions", "client_profile", "expected_outcomes", "tags", "is_active", "updated_at"}),
	}).Create(s).Error
}
