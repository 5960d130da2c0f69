package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"optiondesk/internal/errors"
	"optiondesk/internal/models"
	"optiondesk/pkg/utils"
)

// RedisConfig configures the Redis catalog store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps the catalog snapshot as a single JSON value that expires at
// the next IST midnight, so a new trading day always starts with a miss.
type RedisStore struct {
	client *goredis.Client
	key    string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		client: client,
		key:    "optiondesk:" + CatalogKey,
		now:    time.Now,
	}, nil
}

// LoadCatalog reads and decodes the snapshot.
func (r *RedisStore) LoadCatalog(ctx context.Context) (*models.CatalogCache, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err == goredis.Nil {
		return nil, errors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	var cache models.CatalogCache
	if err := json.Unmarshal(raw, &cache); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &cache, nil
}

// SaveCatalog writes the snapshot with a TTL ending at IST midnight.
func (r *RedisStore) SaveCatalog(ctx context.Context, cache *models.CatalogCache) error {
	raw, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	ttl := utils.UntilEndOfDay(r.now())
	if err := r.client.Set(ctx, r.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// DeleteCatalog removes the snapshot.
func (r *RedisStore) DeleteCatalog(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// GetLastSync returns the last sync time for a data type.
func (r *RedisStore) GetLastSync(dataType string) time.Time {
	ms, err := r.client.HGet(context.Background(), r.key+":sync", dataType).Int64()
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetLastSync records the last sync time for a data type.
func (r *RedisStore) SetLastSync(dataType string, t time.Time) error {
	return r.client.HSet(context.Background(), r.key+":sync", dataType, t.UnixMilli()).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
