package mongo

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "buzzy"
	defaultPoolSize = 10

	connectTimeout         = 10 * time.Second
	serverSelectionTimeout = 5 * time.Second
	connIdleTimeout        = 30 * time.Minute
)

// Config holds the connection settings for the chat store.
type Config struct {
	URI      string
	Database string
	PoolSize uint64
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.URI == "" {
		return fmt.Errorf("MongoDB URI is required")
	}
	if config.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

// NewConfigFromEnv creates a Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		URI:      os.Getenv("MONGODB_URI"),
		Database: os.Getenv("MONGODB_DATABASE"),
	}
	if v := os.Getenv("MONGODB_POOL_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.PoolSize = n
		}
	}
	return config.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.URI == "" {
		c.URI = defaultURI
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaultPoolSize
	}
	return c
}

// Client owns the driver connection and the database handle the
// repositories work against.
type Client struct {
	*mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// NewClient connects to MongoDB and verifies the connection with a ping
// against the primary.
func NewClient(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	config = config.withDefaults()
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.PoolSize).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(connIdleTimeout).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetConnectTimeout(connectTimeout)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB",
		zap.String("database", config.Database))

	return &Client{
		Client:   client,
		Database: client.Database(config.Database),
		logger:   logger,
	}, nil
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	if err := c.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
