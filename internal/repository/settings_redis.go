package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/redis/go-redis/v9"
)

type redisSettingsRepository struct {
	redis *RedisDB
}

// NewRedisSettingsRepository настройки в Redis, по ключу на вызывающего
func NewRedisSettingsRepository(redis *RedisDB) SettingsRepository {
	return &redisSettingsRepository{redis: redis}
}

func (r *redisSettingsRepository) Get(ctx context.Context, caller string) (*models.CallerSettings, error) {
	data, err := r.redis.Client.Get(ctx, r.key(caller)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	var settings models.CallerSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &settings, nil
}

func (r *redisSettingsRepository) Save(ctx context.Context, caller string, settings *models.CallerSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return r.redis.Client.Set(ctx, r.key(caller), data, 0).Err()
}

func (r *redisSettingsRepository) Delete(ctx context.Context, caller string) error {
	return r.redis.Client.Del(ctx, r.key(caller)).Err()
}

func (r *redisSettingsRepository) key(caller string) string {
	return "settings:" + caller
}
