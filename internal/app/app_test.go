package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/juntavecinos/notifier/internal/config"
	"github.com/juntavecinos/notifier/internal/dedup"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := initLogger(config.LogConfig{Level: tt.level, Format: "json"})
			assert.True(t, logger.Enabled(context.Background(), tt.want))
			assert.False(t, logger.Enabled(context.Background(), tt.want-1))
		})
	}
}

func TestDispatchGuard(t *testing.T) {
	newApp := func(backend string) *App {
		cfg := config.Default()
		cfg.Notifications.Dedup.Backend = backend
		return &App{config: &cfg}
	}

	guard, err := newApp(config.DedupNone).dispatchGuard()
	require.NoError(t, err)
	assert.Nil(t, guard)

	guard, err = newApp(config.DedupPostgres).dispatchGuard()
	require.NoError(t, err)
	assert.IsType(t, &dedup.Postgres{}, guard)

	withRedis := newApp(config.DedupRedis)
	withRedis.redis = goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = withRedis.redis.Close() })
	guard, err = withRedis.dispatchGuard()
	require.NoError(t, err)
	assert.IsType(t, &dedup.Redis{}, guard)

	_, err = newApp(config.DedupRedis).dispatchGuard()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires redis")

	_, err = newApp("memcached").dispatchGuard()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dedup backend")
}
