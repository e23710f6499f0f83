package client

import (
	"context"
	"time"

	"waitgate/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client holds the process-wide connections shared by repositories and
// health checks.
type Client struct {
	Mongo *mongo.Client
}

func NewClient() *Client {
	return &Client{}
}

// SetMongo connects and pings the primary, exiting the process on failure.
func (c *Client) SetMongo(log *logger.Logger, appName, mongoURI string, connTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(mongoURI).
		SetAppName(appName).
		SetRetryWrites(true).
		SetServerSelectionTimeout(connTimeout)

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	if err := mc.Ping(ctx, readpref.Primary()); err != nil {
		log.Fatal("Failed to ping MongoDB primary", "error", err)
	}

	log.Info("Connected to MongoDB", "app_name", appName)
	c.Mongo = mc
}

func (c *Client) GracefulShutdown(log *logger.Logger, timeout time.Duration) {
	if c.Mongo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.Mongo.Disconnect(ctx); err != nil {
		log.Error("Failed to disconnect from MongoDB", "error", err)
		return
	}
	log.Info("Disconnected from MongoDB")
}
