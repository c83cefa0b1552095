package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongoDB opens the client, verifies connectivity and ensures the
// metadata indexes the retrieval filters depend on.
func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := createIndexes(ctx, client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Both chunk collections are filtered on the same metadata fields during
	// retrieval and deletion.
	chunkIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "metadata.subject", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.semester", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.book_title", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.source_path", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.semester", Value: 1}, {Key: "metadata.subject", Value: 1}}},
	}

	for _, name := range []string{"text_chunks", "image_chunks"} {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, chunkIndexes); err != nil {
			return err
		}
	}

	return nil
}
