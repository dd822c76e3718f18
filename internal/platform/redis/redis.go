package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// ConnectAttempts is how many pings to try before giving up.
	ConnectAttempts int
}

func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
	})

	attempts := max(opts.ConnectAttempts, 1)
	var err error
	for i := range attempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			log.Info().Dur("backoff", backoff).Msg("waiting before redis retry")
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return client, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("redis ping failed")
	}

	_ = client.Close()
	return nil, fmt.Errorf("ping redis failed: %w", err)
}
