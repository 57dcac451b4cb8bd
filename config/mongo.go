package config

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoClient holds the realtime audio buffer and user preferences.
var MongoClient *mongo.Client

func InitMongo() error {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		return errors.New("MONGO_URI environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, MongoOptions(uri))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	MongoClient = client
	return nil
}

// MongoOptions builds the client options. Live sessions write one buffer
// document per audio chunk, so the pool follows the worker count.
func MongoOptions(uri string) *options.ClientOptions {
	maxPool := uint64(getEnvInt("MONGO_MAX_POOL", max(getEnvInt("AUDIO_WORKERS", 5)*2, 10)))

	opts := options.Client().ApplyURI(uri).
		SetAppName("ventas").
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMaxPoolSize(maxPool).
		SetMinPoolSize(1).
		SetRetryWrites(true)

	// Atlas handshakes can fail on newer Go TLS defaults; pin 1.2 when asked
	if os.Getenv("MONGO_FORCE_TLS_CONFIG") == "true" {
		opts = opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: os.Getenv("MONGO_INSECURE_TLS") == "true",
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS12,
		})
	}
	return opts
}

func CloseMongo(ctx context.Context) error {
	if MongoClient == nil {
		return nil
	}
	return MongoClient.Disconnect(ctx)
}
