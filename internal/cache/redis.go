package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/gateway/internal/config"
)

const (
	// BackendHealthKey holds the last backend probe result, "ok" or "error".
	BackendHealthKey = "gateway:backend:health"
	BackendHealthTTL = 2 * time.Minute
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

func SetBackendHealth(ctx context.Context, client *redis.Client, status string) error {
	return client.Set(ctx, BackendHealthKey, status, BackendHealthTTL).Err()
}

// BackendHealth returns the cached probe result, or "" when it has expired.
func BackendHealth(ctx context.Context, client *redis.Client) (string, error) {
	status, err := client.Get(ctx, BackendHealthKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return status, err
}
