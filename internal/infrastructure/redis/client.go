package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/invitequeue/internal/domain"
)

const pingTimeout = 3 * time.Second

// NewClient parses redisURL and pings the server before returning the client.
// An unreachable server is reported as domain.ErrTransientStore.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %w", domain.ErrConfigurationFault, err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis at %s: %w", domain.ErrTransientStore, opts.Addr, err)
	}

	return client, nil
}
