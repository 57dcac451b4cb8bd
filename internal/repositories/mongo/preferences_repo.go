package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

// ErrUndecodable means a stored preferences document exists but does not fit
// the current shape.
var ErrUndecodable = errors.New("stored preferences cannot be decoded")

type PreferencesRepository interface {
	Get(ctx context.Context, userID string) (*models.UserPreferences, error)
	Upsert(ctx context.Context, p *models.UserPreferences) error
}

type preferencesRepo struct {
	col *mongo.Collection
}

func NewPreferencesRepo(db *mongo.Database) PreferencesRepository {
	return &preferencesRepo{col: db.Collection("user_preferences")}
}

func (r *preferencesRepo) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	raw, err := r.col.FindOne(ctx, bson.M{"user_id": userID}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var out models.UserPreferences
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return &out, nil
}

func (r *preferencesRepo) Upsert(ctx context.Context, p *models.UserPreferences) error {
	doc := *p
	doc.ID = primitive.NilObjectID
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"user_id": p.UserID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}
