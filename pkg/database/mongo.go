package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI             string
	Database        string
	MaxPoolSize     uint64
	ConnectTimeout  time.Duration
	ServerSelection time.Duration
}

// DefaultMongoConfig returns local development defaults.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:             "mongodb://localhost:27017",
		Database:        "storefront",
		MaxPoolSize:     50,
		ConnectTimeout:  10 * time.Second,
		ServerSelection: 5 * time.Second,
	}
}

// NewMongoClient connects to MongoDB and pings the primary, retrying
// transient startup failures. logger may be nil.
func NewMongoClient(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelection)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}

	var client *mongo.Client
	err := withRetry(ctx, "connect to mongo", defaultRetryAttempts, logger, nil, func() error {
		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
