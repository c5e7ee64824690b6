// Package cache provides the Redis connection shared by the search cache
// and the MFA challenge store.
package cache

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transferscope/portal-api/pkg/config"
)

// NewRedis connects to Redis and verifies the connection with a ping. The
// challenge store depends on Redis being reachable at startup, so a dead
// instance fails fast here instead of on the first login.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
