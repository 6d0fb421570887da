package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/app/config"
	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 5 * time.Second
)

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if _, err := client.Ping(dialCtx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis (ping failed): %w", err)
	}

	return client, nil
}
