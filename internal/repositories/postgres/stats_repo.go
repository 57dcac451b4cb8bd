package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

type StatsRepository interface {
	// Apply loads the user's stats row (zero value when absent), hands it to fn
	// and saves the result, all under a row lock.
	Apply(ctx context.Context, userID string, fn func(s *models.UserStats, unlocked map[string]bool) ([]models.UserAchievement, error)) (*models.UserStats, error)
	Get(ctx context.Context, userID string) (*models.UserStats, error)

	ListAchievements(ctx context.Context) ([]models.Achievement, error)
	UpsertAchievement(ctx context.Context, a *models.Achievement) error
	ListUserAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error)
}

type statsRepo struct {
	db *gorm.DB
}

func NewStatsRepo(db *gorm.DB) StatsRepository {
	return &statsRepo{db: db}
}

func (r *statsRepo) Get(ctx context.Context, userID string) (*models.UserStats, error) {
	var row models.UserStats
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *statsRepo) Apply(ctx context.Context, userID string, fn func(s *models.UserStats, unlocked map[string]bool) ([]models.UserAchievement, error)) (*models.UserStats, error) {
	var out models.UserStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// make sure the row exists so the locking read below always finds it
		seed := models.UserStats{UserID: userID, Level: 1, UpdatedAt: tx.NowFunc()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("user_id = ?", userID).Take(&out).Error; err != nil {
			return err
		}

		var owned []models.UserAchievement
		if err := tx.Where("user_id = ?", userID).Find(&owned).Error; err != nil {
			return err
		}
		unlocked := make(map[string]bool, len(owned))
		for _, ua := range owned {
			unlocked[ua.AchievementCode] = ua.UnlockedAt != nil
		}

		changes, err := fn(&out, unlocked)
		if err != nil {
			return err
		}
		out.UpdatedAt = tx.NowFunc()
		if err := tx.Save(&out).Error; err != nil {
			return err
		}

		for i := range changes {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_code"}},
				DoUpdates: clause.AssignmentColumns([]string{"progress", "unlocked_at", "updated_at"}),
			}).Create(&changes[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *statsRepo) ListAchievements(ctx context.Context) ([]models.Achievement, error) {
	var rows []models.Achievement
	err := r.db.WithContext(ctx).Order("category ASC, threshold ASC").Find(&rows).Error
	return rows, err
}

func (r *statsRepo) UpsertAchievement(ctx context.Context, a *models.Achievement) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "category", "metric", "threshold", "xp_reward"}),
	}).Create(a).Error
}

func (r *statsRepo) ListUserAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	var rows []models.UserAchievement
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&rows).Error
	return rows, err
}
