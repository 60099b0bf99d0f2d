package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

// RedisConfig holds the connection settings of the Redis cache
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisCache mirrors definitions as JSON values under prefix+documentTypeID
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewRedisCacheWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisCache {
	if prefix == "" {
		prefix = "docflow:workflow:"
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCache) key(documentTypeID string) string {
	return c.prefix + documentTypeID
}

func (c *RedisCache) indexKey() string {
	return c.prefix + "_index"
}

// Get returns the cached definition, or the default template when none is cached
func (c *RedisCache) Get(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error) {
	def, err := c.read(ctx, c.client, documentTypeID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return entity.NewDefaultDefinition(documentTypeID), nil
	}
	return def, nil
}

// Put writes the definition when the cached version equals expectedVersion
func (c *RedisCache) Put(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error {
	if err := def.Validate(); err != nil {
		return err
	}

	key := c.key(def.DocumentTypeID)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.read(ctx, tx, def.DocumentTypeID)
		if err != nil {
			return err
		}
		var version int64
		if current != nil {
			version = current.Version
		}
		if version != expectedVersion {
			return fmt.Errorf("%w: cached %s is at version %d", workflow.ErrConflict, def.DocumentTypeID, version)
		}

		next := def.Clone()
		next.Version = expectedVersion + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode definition: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, c.indexKey(), def.DocumentTypeID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: cached %s changed during write", workflow.ErrConflict, def.DocumentTypeID)
	}
	if err != nil {
		return err
	}

	def.Version = expectedVersion + 1
	return nil
}

// Mirror writes the definition keeping its version
func (c *RedisCache) Mirror(ctx context.Context, def *entity.WorkflowDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.key(def.DocumentTypeID), payload, 0)
		pipe.SAdd(ctx, c.indexKey(), def.DocumentTypeID)
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to mirror definition to Redis",
			zap.String("document_type_id", def.DocumentTypeID),
			zap.Error(err))
		return fmt.Errorf("failed to mirror definition: %w", err)
	}
	return nil
}

// List returns the cached document type ids
func (c *RedisCache) List(ctx context.Context) ([]string, error) {
	ids, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cached definitions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// read returns nil when the document type is not cached
func (c *RedisCache) read(ctx context.Context, cmd getter, documentTypeID string) (*entity.WorkflowDefinition, error) {
	payload, err := cmd.Get(ctx, c.key(documentTypeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to read cached definition", zap.String("document_type_id", documentTypeID), zap.Error(err))
		return nil, fmt.Errorf("failed to read cached definition: %w", err)
	}

	var def entity.WorkflowDefinition
	if err := json.Unmarshal(payload, &def); err != nil {
		return nil, fmt.Errorf("failed to decode cached definition %s: %w", documentTypeID, err)
	}
	def.Source = entity.SourceFallback
	return &def, nil
}

var _ port.FallbackCache = (*RedisCache)(nil)
