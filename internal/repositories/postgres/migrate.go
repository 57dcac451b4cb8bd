package postgres

import (
	"gorm.io/gorm"

	"github.com/nuevpro/ventas/internal/models"
)

// AllModels is every table owned by the relational store.
var AllModels = []any{
	&models.TrainingSession{},
	&models.ConversationTurn{},
	&models.SessionEvaluation{},
	&models.Scenario{},
	&models.KnowledgeDocument{},
	&models.UserStats{},
	&models.Achievement{},
	&models.UserAchievement{},
	&models.Challenge{},
	&models.ChallengeParticipant{},
}

// Migrate creates or updates the schema. On Postgres it also enables pgvector.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return err
		}
	}
	return db.AutoMigrate(AllModels...)
}
