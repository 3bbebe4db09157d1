package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/preference"
)

// ContentSource loads published content by kind and id.
type ContentSource interface {
	Get(ctx context.Context, kind domain.ContentKind, id string) (*domain.Content, error)
}

// DispatchKey identifies the dispatch of one content item over one channel.
type DispatchKey struct {
	Kind      domain.ContentKind
	ContentID string
	Channel   preference.Channel
}

func (k DispatchKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Kind, k.ContentID, k.Channel)
}

// Guard remembers which dispatches already ran.
// Claim returns false when key was claimed before.
type Guard interface {
	Claim(ctx context.Context, key DispatchKey) (bool, error)
	Release(ctx context.Context, key DispatchKey) error
}

type noopGuard struct{}

func (noopGuard) Claim(context.Context, DispatchKey) (bool, error) { return true, nil }
func (noopGuard) Release(context.Context, DispatchKey) error       { return nil }

// Service provides notifications business logic.
type Service struct {
	content    ContentSource
	dispatcher *Dispatcher
	guard      Guard
}

// NewService creates a new notifications service. A nil guard disables duplicate protection.
func NewService(content ContentSource, dispatcher *Dispatcher, guard Guard) *Service {
	if guard == nil {
		guard = noopGuard{}
	}
	return &Service{
		content:    content,
		dispatcher: dispatcher,
		guard:      guard,
	}
}

// NotifyInput describes a request to announce a content item.
type NotifyInput struct {
	Kind      domain.ContentKind
	ContentID string
	// Channels to dispatch on; all known channels when empty.
	Channels []preference.Channel
	// Force dispatches even if the content was already announced on a channel.
	Force bool
}

// NotifyChannel announces a content item over a single channel.
func (s *Service) NotifyChannel(ctx context.Context, kind domain.ContentKind, contentID string, ch preference.Channel, force bool) (*Report, error) {
	if !ch.Known() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}

	content, err := s.content.Get(ctx, kind, contentID)
	if err != nil {
		return nil, err
	}

	return s.notify(ctx, content, ch, force)
}

// NotifyContent announces a content item over several channels one after another.
// Channels that are not configured or were already notified are listed in the summary.
func (s *Service) NotifyContent(ctx context.Context, input NotifyInput) (*Summary, error) {
	for _, ch := range input.Channels {
		if !ch.Known() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
		}
	}
	channels := preference.NewSet(input.Channels...).Channels()
	if len(channels) == 0 {
		channels = preference.KnownChannels()
	}

	content, err := s.content.Get(ctx, input.Kind, input.ContentID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ContentKind:     content.Kind,
		ContentID:       content.ID,
		Success:         true,
		Skipped:         []string{},
		AlreadyNotified: []string{},
		Channels:        []*Report{},
	}

	for _, ch := range channels {
		report, err := s.notify(ctx, content, ch, input.Force)
		switch {
		case err == nil:
			summary.add(report)
		case errors.Is(err, ErrChannelNotConfigured):
			summary.Skipped = append(summary.Skipped, string(ch))
		case errors.Is(err, ErrAlreadyNotified):
			summary.AlreadyNotified = append(summary.AlreadyNotified, string(ch))
		default:
			ctxlog.FromContext(ctx).Error("dispatch failed", "channel", ch, "error", err)
			summary.add(&Report{
				Channel:     ch,
				ContentKind: content.Kind,
				ContentID:   content.ID,
				Error:       err.Error(),
				Failures:    []Failure{},
			})
		}
	}

	if len(summary.Channels) == 0 {
		if len(summary.AlreadyNotified) > 0 && len(summary.Skipped) == 0 {
			return nil, ErrAlreadyNotified
		}
		if len(summary.AlreadyNotified) == 0 {
			return nil, ErrChannelNotConfigured
		}
	}

	return summary, nil
}

func (s *Service) notify(ctx context.Context, content *domain.Content, ch preference.Channel, force bool) (*Report, error) {
	key := DispatchKey{Kind: content.Kind, ContentID: content.ID, Channel: ch}
	logger := ctxlog.FromContext(ctx)

	// Not-configured runs short-circuit inside Dispatch and must not consume the claim.
	if !s.dispatcher.Configured(ch) {
		return s.dispatcher.Dispatch(ctx, DispatchInput{Channel: ch, Content: content})
	}

	claimed, err := s.guard.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("claim dispatch %s: %w", key, err)
	}
	if !claimed && !force {
		logger.Info("content already notified", "key", key.String())
		return nil, ErrAlreadyNotified
	}
	if !claimed {
		logger.Info("forcing repeated dispatch", "key", key.String())
	}

	report, err := s.dispatcher.Dispatch(ctx, DispatchInput{Channel: ch, Content: content})
	if err != nil && claimed {
		if relErr := s.guard.Release(ctx, key); relErr != nil {
			logger.Error("failed to release dispatch claim", "key", key.String(), "error", relErr)
		}
	}
	return report, err
}
