// Package postgres provides PostgreSQL implementation of the content repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juntavecinos/notifier/internal/content"
	"github.com/juntavecinos/notifier/internal/domain"
)

// Repository implements content.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Get retrieves a published aviso or noticia. Unknown ids, malformed ids and
// withdrawn items are all reported as content.ErrNotFound.
func (r *Repository) Get(ctx context.Context, kind domain.ContentKind, id string) (*domain.Content, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, content.ErrNotFound
	}

	var query string
	switch kind {
	case domain.ContentKindAviso:
		query = `
			SELECT id, titulo, contenido, tipo, prioridad, created_at
			FROM avisos
			WHERE id = $1 AND activo
		`
	case domain.ContentKindNoticia:
		query = `
			SELECT id, titulo, contenido, categoria, '', created_at
			FROM noticias
			WHERE id = $1 AND publicado
		`
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", content.ErrNotFound, kind)
	}

	item := domain.Content{Kind: kind}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&item.ID,
		&item.Title,
		&item.Body,
		&item.Category,
		&item.Priority,
		&item.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, content.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return &item, nil
}
