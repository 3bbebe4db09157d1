// Package redis provides Redis client construction with connection retry.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr            string
	Password        string
	DB              int
	PoolSize        int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ConnectAttempts int
}

// Connect creates a client and waits until the server answers PING.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	attempts := max(cfg.ConnectAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			slog.Info("connected to redis", "addr", cfg.Addr, "attempts", attempt)
			return client, nil
		}
		if attempt == attempts {
			break
		}

		backoff := time.Duration(attempt) * time.Second
		slog.Warn("redis not reachable, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", lastErr,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("connect to redis after %d attempts: %w", attempts, lastErr)
}
