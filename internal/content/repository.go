// Package content reads the avisos and noticias published by the junta.
package content

import (
	"context"
	"errors"

	"github.com/juntavecinos/notifier/internal/domain"
)

// ErrNotFound is returned when the requested content item does not exist.
var ErrNotFound = errors.New("content not found")

// Repository loads published content.
type Repository interface {
	Get(ctx context.Context, kind domain.ContentKind, id string) (*domain.Content, error)
}
