// Package mongo implements the stream store and transaction coordinator on
// top of the MongoDB driver.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	streamsCollection      = "streams"
	streamEventsCollection = "stream_events"
	usersCollection        = "users"
	categoriesCollection   = "categories"
)

// Connect establishes the process-wide client and verifies connectivity.
// The caller owns teardown via Disconnect on shutdown.
func Connect(ctx context.Context, url string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	slog.Info("MongoDB connected")
	return client, nil
}

// EnsureIndexes creates the indexes the lifecycle subsystem queries by.
// Safe to call on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	streams := db.Collection(streamsCollection)
	_, err := streams.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uid", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "isDeleted", Value: 1}}},
		{Keys: bson.D{{Key: "dateCreated", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream indexes: %w", err)
	}

	events := db.Collection(streamEventsCollection)
	_, err = events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "streamId", Value: 1}, {Key: "at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream_events indexes: %w", err)
	}

	return nil
}
