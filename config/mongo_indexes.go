package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase returns the application database; dbName falls back to "ventas".
func MongoDatabase(dbName string) (*mongo.Database, error) {
	if MongoClient == nil {
		return nil, errors.New("MongoClient is nil; call InitMongo() first")
	}
	if dbName == "" {
		dbName = "ventas"
	}
	return MongoClient.Database(dbName), nil
}

func EnsureMongoIndexes(dbName string) error {
	db, err := MongoDatabase(dbName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// realtime_buffer: audio chunks of live sessions
	realtime := db.Collection("realtime_buffer")
	_, err = realtime.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// expire at ExpiresAt (must be Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		// one document per chunk per session
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_chunk").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_session_ts"),
		},
	})
	if err != nil {
		return err
	}

	prefs := db.Collection("user_preferences")
	_, err = prefs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().
			SetName("uniq_user_id").
			SetUnique(true),
	})
	return err
}
