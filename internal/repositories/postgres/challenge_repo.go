package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

type LeaderboardEntry struct {
	UserID      string     `json:"user_id"`
	BestScore   int        `json:"best_score"`
	Attempts    int        `json:"attempts"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type ChallengeRepository interface {
	Create(ctx context.Context, c *models.Challenge) error
	GetByID(ctx context.Context, id string) (*models.Challenge, error)
	ListActive(ctx context.Context, now time.Time) ([]models.Challenge, error)

	// Join is idempotent; the existing participant row is returned on repeat.
	Join(ctx context.Context, challengeID, userID string, at time.Time) (*models.ChallengeParticipant, error)
	Leaderboard(ctx context.Context, challengeID string, limit int) ([]LeaderboardEntry, error)

	// JoinedActiveForScenario lists participations of userID in challenges on
	// scenarioID that are active at now.
	JoinedActiveForScenario(ctx context.Context, userID, scenarioID string, now time.Time) ([]models.ChallengeParticipant, []models.Challenge, error)
	SaveParticipant(ctx context.Context, p *models.ChallengeParticipant) error
}

type challengeRepo struct {
	db *gorm.DB
}

func NewChallengeRepo(db *gorm.DB) ChallengeRepository {
	return &challengeRepo{db: db}
}

func (r *challengeRepo) Create(ctx context.Context, c *models.Challenge) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *challengeRepo) GetByID(ctx context.Context, id string) (*models.Challenge, error) {
	var row models.Challenge
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *challengeRepo) ListActive(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	var rows []models.Challenge
	err := r.db.WithContext(ctx).
		Where("starts_at <= ? AND ends_at > ?", now, now).
		Order("ends_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *challengeRepo) Join(ctx context.Context, challengeID, userID string, at time.Time) (*models.ChallengeParticipant, error) {
	p := models.ChallengeParticipant{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		UserID:      userID,
		JoinedAt:    at,
		UpdatedAt:   at,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "challenge_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&p).Error
	if err != nil {
		return nil, err
	}

	var row models.ChallengeParticipant
	if err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *challengeRepo) Leaderboard(ctx context.Context, challengeID string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []LeaderboardEntry
	err := r.db.WithContext(ctx).
		Model(&models.ChallengeParticipant{}).
		Select("user_id", "best_score", "attempts", "completed_at").
		Where("challenge_id = ?", challengeID).
		Order("best_score DESC").
		Order("updated_at ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *challengeRepo) JoinedActiveForScenario(ctx context.Context, userID, scenarioID string, now time.Time) ([]models.ChallengeParticipant, []models.Challenge, error) {
	var chs []models.Challenge
	err := r.db.WithContext(ctx).
		Where("scenario_id = ? AND starts_at <= ? AND ends_at > ?", scenarioID, now, now).
		Find(&chs).Error
	if err != nil || len(chs) == 0 {
		return nil, nil, err
	}

	ids := make([]string, 0, len(chs))
	for _, c := range chs {
		ids = append(ids, c.ID)
	}
	var ps []models.ChallengeParticipant
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id IN ?", userID, ids).
		Find(&ps).Error
	return ps, chs, err
}

func (r *challengeRepo) SaveParticipant(ctx context.Context, p *models.ChallengeParticipant) error {
	return r.db.WithContext(ctx).Save(p).Error
}
