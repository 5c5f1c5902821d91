package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"FirewallAlertPump/internal/config"
)

// RedisStore хранит множество обработанных файлов в Redis-хэше:
// поле — "путь|размер", значение — unix-время добавления.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg *config.RedisConfig, key string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	// Проверяем подключение с тайм-аутом
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}
	return &RedisStore{client: rdb, key: key}, nil
}

func (r *RedisStore) Load() (map[string]int64, error) {
	ctx := context.Background()
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	processed := make(map[string]int64, len(fields))
	for k, v := range fields {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue // битое значение не должно ломать загрузку
		}
		processed[k] = ts
	}
	return processed, nil
}

func (r *RedisStore) Save(data map[string]int64) error {
	ctx := context.Background()
	if len(data) == 0 {
		return r.client.Del(ctx, r.key).Err()
	}
	fields := make(map[string]interface{}, len(data))
	for k, v := range data {
		fields[k] = strconv.FormatInt(v, 10)
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	pipe.HSet(ctx, r.key, fields)
	_, err := pipe.Exec(ctx)
	return err
}
