// Package dedup remembers which content items were already announced on a channel,
// so that a repeated publish request does not notify residents twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juntavecinos/notifier/internal/notifications"
	"github.com/redis/go-redis/v9"
)

// Postgres stores claims in the notification_dispatches table.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a guard backed by PostgreSQL.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Claim inserts the dispatch row; it reports false when the row already exists.
func (g *Postgres) Claim(ctx context.Context, key notifications.DispatchKey) (bool, error) {
	query := `
		INSERT INTO notification_dispatches (content_kind, content_id, channel)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	tag, err := g.db.Exec(ctx, query, key.Kind, key.ContentID, key.Channel)
	if err != nil {
		return false, fmt.Errorf("insert dispatch: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes the dispatch row so the item can be announced again.
func (g *Postgres) Release(ctx context.Context, key notifications.DispatchKey) error {
	query := `
		DELETE FROM notification_dispatches
		WHERE content_kind = $1 AND content_id = $2 AND channel = $3
	`
	if _, err := g.db.Exec(ctx, query, key.Kind, key.ContentID, key.Channel); err != nil {
		return fmt.Errorf("delete dispatch: %w", err)
	}
	return nil
}

// Redis stores claims as expiring keys.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a guard backed by Redis. Claims expire after ttl; zero keeps them forever.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "junta:dispatch:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (g *Redis) key(k notifications.DispatchKey) string {
	return g.prefix + k.String()
}

// Claim sets the key if absent.
func (g *Redis) Claim(ctx context.Context, key notifications.DispatchKey) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release deletes the key.
func (g *Redis) Release(ctx context.Context, key notifications.DispatchKey) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
