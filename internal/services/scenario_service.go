package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/nuevpro/ventas/internal/cache"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/utils"
)

const scenarioTTL = 10 * time.Minute

type ScenarioInput struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	Difficulty         string          `json:"difficulty"`
	PromptInstructions string          `json:"prompt_instructions"`
	ClientProfile      string          `json:"client_profile"`
	ExpectedOutcomes   json.RawMessage `json:"expected_outcomes"`
	Tags               []string        `json:"tags"`
	IsActive           *bool           `json:"is_active"`
}

type ScenarioService interface {
	List(ctx context.Context, category, difficulty string) ([]models.Scenario, error)
	Get(ctx context.Context, id string) (*models.Scenario, error)
	Create(ctx context.Context, in ScenarioInput) (*models.Scenario, error)
	Update(ctx context.Context, id string, in ScenarioInput) (*models.Scenario, error)
}

type scenarioService struct {
	repo  pgrepo.ScenarioRepository
	cache cache.Cache
	log   *logrus.Logger
	now   func() time.Time
}

func NewScenarioService(repo pgrepo.ScenarioRepository, c cache.Cache, log *logrus.Logger) ScenarioService {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if log == nil {
		log = logrus.New()
	}
	return &scenarioService{repo: repo, cache: c, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *scenarioService) List(ctx context.Context, category, difficulty string) ([]models.Scenario, error) {
	const op = "ScenarioService.List"

	var all []models.Scenario
	hit, err := s.cache.GetJSON(ctx, cache.ScenarioListKey, &all)
	if err != nil {
		s.log.WithError(err).Warn("scenario cache read failed")
	}
	if !hit {
		all, err = s.repo.List(ctx, pgrepo.ScenarioFilter{})
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to list scenarios", err)
		}
		if err := s.cache.SetJSON(ctx, cache.ScenarioListKey, all, scenarioTTL); err != nil {
			s.log.WithError(err).Warn("scenario cache write failed")
		}
	}

	out := make([]models.Scenario, 0, len(all))
	for _, sc := range all {
		if category != "" && !strings.EqualFold(sc.Category, category) {
			continue
		}
		if difficulty != "" && !strings.EqualFold(sc.Difficulty, difficulty) {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *scenarioService) Get(ctx context.Context, id string) (*models.Scenario, error) {
	const op = "ScenarioService.Get"

	if _, err := uuid.Parse(id); err != nil {
		return nil, utils.E(utils.CodeNotFound, op, "scenario not found", utils.ErrNotFound)
	}

	var sc models.Scenario
	if hit, _ := s.cache.GetJSON(ctx, cache.ScenarioKey(id), &sc); hit {
		return &sc, nil
	}
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(op, "scenario", err)
	}
	_ = s.cache.SetJSON(ctx, cache.ScenarioKey(id), row, scenarioTTL)
	return row, nil
}

func validateScenario(op string, in ScenarioInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "title is required", nil)
	}
	if in.Difficulty != "" && !models.ScenarioDifficulties[in.Difficulty] {
		return utils.E(utils.CodeInvalidArgument, op, "difficulty must be beginner, intermediate or advanced", nil)
	}
	if len(in.ExpectedOutcomes) > 0 && !json.Valid(in.ExpectedOutcomes) {
		return utils.E(utils.CodeInvalidArgument, op, "expected_outcomes must be JSON", nil)
	}
	return nil
}

func applyScenario(sc *models.Scenario, in ScenarioInput) {
	sc.Title = strings.TrimSpace(in.Title)
	sc.Description = in.Description
	sc.Category = in.Category
	sc.Difficulty = in.Difficulty
	if sc.Difficulty == "" {
		sc.Difficulty = "beginner"
	}
	sc.PromptInstructions = in.PromptInstructions
	sc.ClientProfile = in.ClientProfile
	sc.ExpectedOutcomes = datatypes.JSON(in.ExpectedOutcomes)
	sc.Tags = cleanTags(in.Tags)
	sc.IsActive = in.IsActive == nil || *in.IsActive
}

func (s *scenarioService) Create(ctx context.Context, in ScenarioInput) (*models.Scenario, error) {
	const op = "ScenarioService.Create"

	if err := validateScenario(op, in); err != nil {
		return nil, err
	}
	now := s.now()
	sc := &models.Scenario{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	applyScenario(sc, in)

	if err := s.repo.Create(ctx, sc); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create scenario", err)
	}
	s.invalidate(ctx, sc.ID)
	return sc, nil
}

func (s *scenarioService) Update(ctx context.Context, id string, in ScenarioInput) (*models.Scenario, error) {
	const op = "ScenarioService.Update"

	if err := validateScenario(op, in); err != nil {
		return nil, err
	}
	sc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoErr(op, "scenario", err)
	}
	applyScenario(sc, in)
	sc.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, sc); err != nil {
		return nil, repoErr(op, "scenario", err)
	}
	s.invalidate(ctx, id)
	return sc, nil
}

func (s *scenarioService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Del(ctx, cache.ScenarioListKey, cache.ScenarioKey(id)); err != nil {
		s.log.WithError(err).WithField("scenario_id", id).Warn("scenario cache invalidation failed")
	}
}
