// Package directory gives access to the resident records the notification service reads and mutates.
package directory

import (
	"context"
	"errors"

	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/preference"
)

// Directory errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrConcurrentUpdate   = errors.New("user was modified concurrently")
	ErrUnsupportedChannel = errors.New("channel has no address column")
	ErrAddressInUse       = errors.New("address already linked to another user")
)

// Repository defines the data access interface for the user directory.
type Repository interface {
	// ListResidentsWithAddress returns active vecinos with a non-empty address for ch,
	// ordered by name.
	ListResidentsWithAddress(ctx context.Context, ch preference.Channel) ([]domain.User, error)
	GetByRUT(ctx context.Context, rut string) (*domain.User, error)
	// GetByAddress finds the user linked to a bot channel address.
	GetByAddress(ctx context.Context, ch preference.Channel, address string) (*domain.User, error)
	// Update applies mutate to the current state of the user and stores the result.
	// mutate may run more than once and must be a pure function of its argument.
	// An error returned by mutate aborts the update and is returned unchanged.
	Update(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error)
}
