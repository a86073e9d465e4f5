package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
)

// RedisStore persists guild settings as one JSON document per guild.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore connects to Redis using the provided configuration.
func NewRedisStore(cfg config.RedisConfig, logger *zap.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, logger: logger}
}

// Close closes the client.
func (s *RedisStore) Close() {
	if s != nil && s.client != nil {
		_ = s.client.Close()
	}
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis client not configured")
	}
	return s.client.Ping(ctx).Err()
}

// Get loads the settings record for a guild, creating and persisting it from
// the default template on first access.
func (s *RedisStore) Get(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	raw, err := s.client.Get(ctx, s.key(guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		record := domain.DefaultGuildSettings()
		if err := s.persist(ctx, guildID, &record); err != nil {
			return nil, err
		}
		return &record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guild settings: %w", err)
	}
	var record domain.GuildSettings
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode guild settings: %w", err)
	}
	return &record, nil
}

// Update merges the patch into the stored record and persists the result.
func (s *RedisStore) Update(ctx context.Context, guildID string, patch domain.GuildSettingsPatch) (*domain.GuildSettings, error) {
	record, err := s.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	record.Apply(patch)
	if err := s.persist(ctx, guildID, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *RedisStore) persist(ctx context.Context, guildID string, record *domain.GuildSettings) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode guild settings: %w", err)
	}
	if err := s.client.Set(ctx, s.key(guildID), raw, 0).Err(); err != nil {
		return fmt.Errorf("persist guild settings: %w", err)
	}
	return nil
}

func (s *RedisStore) key(guildID string) string {
	return s.keyPrefix + ":guild:" + guildID + ":settings"
}
