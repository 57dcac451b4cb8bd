// Package seed loads the scenario and achievement catalog from YAML.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/nuevpro/ventas/internal/models"
)

type Catalog struct {
	Scenarios    []ScenarioEntry      `yaml:"scenarios"`
	Achievements []models.Achievement `yaml:"achievements"`
}

type ScenarioEntry struct {
	models.Scenario  `yaml:",inline"`
	ExpectedOutcomes map[string]any `yaml:"expected_outcomes"`
	// Inactive hides a scenario from the catalog; entries are active by default.
	Inactive bool `yaml:"inactive"`
}

type ScenarioUpserter interface {
	Upsert(ctx context.Context, s *models.Scenario) error
}

type AchievementUpserter interface {
	UpsertAchievement(ctx context.Context, a *models.Achievement) error
}

type Result struct {
	Scenarios    int
	Achievements int
}

func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	if err := cat.normalize(); err != nil {
		return nil, err
	}
	return &cat, nil
}

var knownMetrics = map[string]bool{
	models.MetricTotalSessions: true,
	models.MetricBestScore:     true,
	models.MetricStreak:        true,
	models.MetricTotalMinutes:  true,
	models.MetricLevel:         true,
}

// normalize validates entries and fills derived fields. Scenarios without an
// id get one derived from their title so reseeding updates in place.
func (c *Catalog) normalize() error {
	seen := map[string]bool{}
	for i := range c.Scenarios {
		e := &c.Scenarios[i]
		if e.Title == "" {
			return fmt.Errorf("scenario #%d: title is required", i+1)
		}
		if e.Difficulty == "" {
			e.Difficulty = "beginner"
		}
		if !models.ScenarioDifficulties[e.Difficulty] {
			return fmt.Errorf("scenario %q: unknown difficulty %q", e.Title, e.Difficulty)
		}
		if e.ID == "" {
			e.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("scenario:"+e.Title)).String()
		} else if _, err := uuid.Parse(e.ID); err != nil {
			return fmt.Errorf("scenario %q: id must be a uuid", e.Title)
		}
		if seen[e.ID] {
			return fmt.Errorf("scenario %q: duplicate id %s", e.Title, e.ID)
		}
		seen[e.ID] = true

		outcomes := e.ExpectedOutcomes
		if outcomes == nil {
			outcomes = map[string]any{}
		}
		raw, err := json.Marshal(outcomes)
		if err != nil {
			return fmt.Errorf("scenario %q: expected_outcomes: %w", e.Title, err)
		}
		e.Scenario.ExpectedOutcomes = datatypes.JSON(raw)
		e.IsActive = !e.Inactive
	}

	codes := map[string]bool{}
	for i := range c.Achievements {
		a := &c.Achievements[i]
		switch {
		case a.Code == "":
			return fmt.Errorf("achievement #%d: code is required", i+1)
		case codes[a.Code]:
			return fmt.Errorf("achievement %q: duplicate code", a.Code)
		case !knownMetrics[a.Metric]:
			return fmt.Errorf("achievement %q: unknown metric %q", a.Code, a.Metric)
		case a.Threshold <= 0:
			return fmt.Errorf("achievement %q: threshold must be > 0", a.Code)
		}
		codes[a.Code] = true
		if a.Title == "" {
			a.Title = a.Code
		}
	}
	return nil
}

// Apply upserts the catalog; it stops at the first failing row.
func Apply(ctx context.Context, cat *Catalog, scenarios ScenarioUpserter, achievements AchievementUpserter, log *logrus.Logger) (Result, error) {
	if log == nil {
		log = logrus.New()
	}
	var res Result
	for i := range cat.Scenarios {
		sc := cat.Scenarios[i].Scenario
		if err := scenarios.Upsert(ctx, &sc); err != nil {
			return res, fmt.Errorf("scenario %q: %w", sc.Title, err)
		}
		res.Scenarios++
		log.WithFields(logrus.Fields{"scenario_id": sc.ID, "title": sc.Title}).Debug("scenario seeded")
	}
	for i := range cat.Achievements {
		a := cat.Achievements[i]
		if err := achievements.UpsertAchievement(ctx, &a); err != nil {
			return res, fmt.Errorf("achievement %q: %w", a.Code, err)
		}
		res.Achievements++
	}
	log.WithFields(logrus.Fields{"scenarios": res.Scenarios, "achievements": res.Achievements}).Info("catalog seeded")
	return res, nil
}
