package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

type BufferRepository interface {
	InsertChunk(ctx context.Context, b *models.RealtimeBuffer) error
	GetChunk(ctx context.Context, sessionID string, chunkIndex int64) (*models.RealtimeBuffer, error)
	UpdateSTT(ctx context.Context, sessionID string, chunkIndex int64, transcript string, confidence float64, status models.ProcessingStatus, userTurnSeq int64) error
	UpdateReply(ctx context.Context, sessionID string, chunkIndex int64, reply string, status models.ProcessingStatus, aiTurnSeq, processingMS int64) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.RealtimeBuffer, error)
}

type bufferRepo struct {
	col *mongo.Collection
}

func NewBufferRepo(db *mongo.Database) BufferRepository {
	return &bufferRepo{col: db.Collection("realtime_buffer")}
}

func (r *bufferRepo) InsertChunk(ctx context.Context, b *models.RealtimeBuffer) error {
	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, b)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrAlreadyExists
	}
	return err
}

func (r *bufferRepo) GetChunk(ctx context.Context, sessionID string, chunkIndex int64) (*models.RealtimeBuffer, error) {
	var out models.RealtimeBuffer
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID, "chunk_index": chunkIndex}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *bufferRepo) UpdateSTT(ctx context.Context, sessionID string, chunkIndex int64, transcript string, confidence float64, status models.ProcessingStatus, userTurnSeq int64) error {
	set := bson.M{
		"transcript":     transcript,
		"stt_confidence": confidence,
		"stt_status":     status,
	}
	if userTurnSeq > 0 {
		set["user_turn_seq"] = userTurnSeq
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "chunk_index": chunkIndex},
		bson.M{"$set": set},
	)
	return err
}

func (r *bufferRepo) UpdateReply(ctx context.Context, sessionID string, chunkIndex int64, reply string, status models.ProcessingStatus, aiTurnSeq, processingMS int64) error {
	set := bson.M{
		"reply":              reply,
		"reply_status":       status,
		"processing_time_ms": processingMS,
	}
	if aiTurnSeq > 0 {
		set["ai_turn_seq"] = aiTurnSeq
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "chunk_index": chunkIndex},
		bson.M{"$set": set},
	)
	return err
}

func (r *bufferRepo) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.RealtimeBuffer, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().
			SetSort(bson.D{{Key: "chunk_index", Value: 1}}).
			SetLimit(limit).
			SetProjection(bson.M{"audio_base64": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.RealtimeBuffer
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
