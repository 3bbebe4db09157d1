package notifications

import (
	"context"
	"fmt"

	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/preference"
)

// Recipient is a resident reachable on a channel.
type Recipient struct {
	ID         string
	Name       string
	Address    string
	Preference string
}

// ResidentSource lists candidate residents that have an address for a channel.
type ResidentSource interface {
	ListResidentsWithAddress(ctx context.Context, ch preference.Channel) ([]domain.User, error)
}

// Resolver selects the recipients of a channel: active vecinos with an address for it
// whose stored preference includes it.
type Resolver struct {
	source ResidentSource
}

// NewResolver creates a new recipient resolver.
func NewResolver(source ResidentSource) *Resolver {
	return &Resolver{source: source}
}

// Recipients returns the recipients of ch in directory order.
func (r *Resolver) Recipients(ctx context.Context, ch preference.Channel) ([]Recipient, error) {
	users, err := r.source.ListResidentsWithAddress(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}

	recipients := make([]Recipient, 0, len(users))
	for i := range users {
		u := &users[i]
		if !u.IsResident() {
			continue
		}
		address := u.Address(ch)
		if address == "" {
			continue
		}
		if !preference.Wants(u.Preference, ch) {
			continue
		}
		recipients = append(recipients, Recipient{
			ID:         u.ID,
			Name:       u.Name,
			Address:    address,
			Preference: u.Preference,
		})
	}

	return recipients, nil
}
