package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/domain/entities"
	"github.com/buzzylabs/buzzy/domain/repositories"
)

// contextTTL bounds how stale a cached context window may get even if
// invalidation is missed.
const contextTTL = 10 * time.Minute

// NewClient creates and configures a new Redis client from environment
// variables.
func NewClient() (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	// Verify connection
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// CachedChatRepository decorates a ChatRepository with a Redis cache for
// the context window reads that happen on every turn. Writes go straight
// through and invalidate the chat's cached windows.
type CachedChatRepository struct {
	inner  repositories.ChatRepository
	rdb    *redis.Client
	logger *zap.Logger
}

// NewCachedChatRepository wraps a chat repository with Redis caching.
func NewCachedChatRepository(inner repositories.ChatRepository, rdb *redis.Client, logger *zap.Logger) *CachedChatRepository {
	return &CachedChatRepository{
		inner:  inner,
		rdb:    rdb,
		logger: logger,
	}
}

func contextKey(chatID int64, limit int) string {
	return fmt.Sprintf("buzzy:chat:%d:context:%d", chatID, limit)
}

// indexKey tracks the cached window keys of one chat so Append can
// invalidate all of them.
func indexKey(chatID int64) string {
	return fmt.Sprintf("buzzy:chat:%d:context-keys", chatID)
}

// Create implements repositories.ChatRepository
func (c *CachedChatRepository) Create(ctx context.Context, chat *entities.Chat) error {
	return c.inner.Create(ctx, chat)
}

// Append implements repositories.ChatRepository
func (c *CachedChatRepository) Append(ctx context.Context, chatID int64, role entities.MessageRole, content string, timestamp time.Time) error {
	if err := c.inner.Append(ctx, chatID, role, content, timestamp); err != nil {
		return err
	}
	c.invalidate(ctx, chatID)
	return nil
}

// RecentContext implements repositories.ChatRepository
func (c *CachedChatRepository) RecentContext(ctx context.Context, chatID int64, limit int) ([]repositories.ChatMessage, error) {
	key := contextKey(chatID, limit)

	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var history []repositories.ChatMessage
		if err := json.Unmarshal([]byte(cached), &history); err == nil {
			return history, nil
		}
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key))
		c.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Redis read failed, falling through to store",
			zap.String("key", key),
			zap.Error(err))
	}

	history, err := c.inner.RecentContext(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(history); err == nil {
		pipe := c.rdb.Pipeline()
		pipe.Set(ctx, key, encoded, contextTTL)
		pipe.SAdd(ctx, indexKey(chatID), key)
		pipe.Expire(ctx, indexKey(chatID), contextTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("Failed to cache context window", zap.Error(err))
		}
	}

	return history, nil
}

// List implements repositories.ChatRepository
func (c *CachedChatRepository) List(ctx context.Context, limit int) ([]*entities.Chat, error) {
	return c.inner.List(ctx, limit)
}

func (c *CachedChatRepository) invalidate(ctx context.Context, chatID int64) {
	keys, err := c.rdb.SMembers(ctx, indexKey(chatID)).Result()
	if err != nil {
		c.logger.Warn("Failed to enumerate cache keys for invalidation",
			zap.Int64("chatID", chatID),
			zap.Error(err))
		return
	}

	keys = append(keys, indexKey(chatID))
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Failed to invalidate cached context",
			zap.Int64("chatID", chatID),
			zap.Error(err))
	}
}

var _ repositories.ChatRepository = (*CachedChatRepository)(nil)
