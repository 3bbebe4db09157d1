package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/preference"
)

// RecipientResolver resolves the recipients of a channel.
type RecipientResolver interface {
	Recipients(ctx context.Context, ch preference.Channel) ([]Recipient, error)
}

// Dispatcher fans a content item out to every recipient of a channel.
//
// A dispatch moves through resolving, rendering, sending and reporting. Per-recipient
// failures are tallied in the report and never abort the run; only a missing sender
// configuration or a failure to resolve recipients ends it early.
type Dispatcher struct {
	resolver RecipientResolver
	renderer *Renderer
	links    Links
	senders  map[preference.Channel]Sender
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(resolver RecipientResolver, renderer *Renderer, links Links, senders ...Sender) *Dispatcher {
	senderMap := make(map[preference.Channel]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{
		resolver: resolver,
		renderer: renderer,
		links:    links,
		senders:  senderMap,
	}
}

// DispatchInput contains data for dispatching a content item.
type DispatchInput struct {
	Channel preference.Channel
	Content *domain.Content
}

// Configured reports whether ch has a sender with credentials.
func (d *Dispatcher) Configured(ch preference.Channel) bool {
	s, ok := d.senders[ch]
	return ok && s.Configured()
}

// Dispatch sends input.Content to every recipient of input.Channel sequentially.
//
// When the channel is not configured it returns a report with Success=false together with
// ErrChannelNotConfigured. A resolver failure is returned as an error without a report.
// Otherwise the report is returned with a nil error, whatever the per-recipient results.
func (d *Dispatcher) Dispatch(ctx context.Context, input DispatchInput) (*Report, error) {
	ch := input.Channel
	report := &Report{
		DispatchID:  uuid.NewString(),
		Channel:     ch,
		ContentKind: input.Content.Kind,
		ContentID:   input.Content.ID,
		Failures:    []Failure{},
	}

	ctx, logger := ctxlog.With(ctx,
		"dispatch_id", report.DispatchID,
		"channel", ch,
		"content_kind", input.Content.Kind,
		"content_id", input.Content.ID,
	)

	sender, ok := d.senders[ch]
	if !ok || !sender.Configured() {
		logger.Warn("channel not configured, skipping dispatch")
		recordDispatch(string(ch), outcomeNotConfigured)
		report.Error = ErrChannelNotConfigured.Error()
		return report, fmt.Errorf("%s: %w", ch, ErrChannelNotConfigured)
	}

	logger.Debug("dispatch state", "state", "resolving")
	recipients, err := d.resolver.Recipients(ctx, ch)
	if err != nil {
		recordDispatch(string(ch), outcomeError)
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	recordRecipients(string(ch), len(recipients))
	report.Total = len(recipients)

	if len(recipients) == 0 {
		logger.Info("no recipients for channel")
		recordDispatch(string(ch), outcomeNoRecipients)
		report.Success = true
		return report, nil
	}

	logger.Debug("dispatch state", "state", "rendering", "recipients", len(recipients))
	rendered, err := d.renderer.Render(ch, NewPayload(input.Content, d.links))
	if err != nil {
		recordDispatch(string(ch), outcomeError)
		return nil, fmt.Errorf("render %s: %w", ch, err)
	}

	messages := make([]Notification, len(recipients))
	for i, rcpt := range recipients {
		messages[i] = personalize(rendered, rcpt, input.Content)
	}

	logger.Debug("dispatch state", "state", "sending")
	errs := d.send(ctx, sender, messages)

	for i, rcpt := range recipients {
		if errs[i] == nil {
			report.Sent++
			recordNotificationSent(string(ch), "sent")
			continue
		}

		report.Errors++
		recordNotificationSent(string(ch), "failed")
		var retryable Retryable
		report.Failures = append(report.Failures, Failure{
			RecipientID: rcpt.ID,
			Name:        rcpt.Name,
			Address:     maskAddress(rcpt.Address),
			Error:       errs[i].Error(),
			Retryable:   errors.As(errs[i], &retryable) && retryable.IsRetryable(),
		})
		logger.Warn("failed to send notification",
			"recipient_id", rcpt.ID,
			"address", maskAddress(rcpt.Address),
			"error", errs[i],
		)
	}

	report.Success = true
	recordDispatch(string(ch), outcomeCompleted)
	logger.Info("dispatch finished",
		"total", report.Total,
		"sent", report.Sent,
		"errors", report.Errors,
	)

	return report, nil
}

// send delivers messages one by one, or through SendBatch when the sender supports it.
// The result has one entry per message.
func (d *Dispatcher) send(ctx context.Context, sender Sender, messages []Notification) []error {
	ch := string(sender.Type())

	if batch, ok := sender.(BatchSender); ok {
		start := time.Now()
		errs := batch.SendBatch(ctx, messages)
		recordNotificationDuration(ch, time.Since(start))
		if len(errs) != len(messages) {
			ctxlog.FromContext(ctx).Error("batch sender returned mismatched results",
				"want", len(messages),
				"got", len(errs),
			)
			fixed := make([]error, len(messages))
			for i := range fixed {
				if i < len(errs) {
					fixed[i] = errs[i]
				} else {
					fixed[i] = errors.New("no delivery result")
				}
			}
			errs = fixed
		}
		return errs
	}

	errs := make([]error, len(messages))
	for i, msg := range messages {
		start := time.Now()
		errs[i] = sender.Send(ctx, msg)
		recordNotificationDuration(ch, time.Since(start))
	}
	return errs
}

func personalize(rendered Notification, rcpt Recipient, c *domain.Content) Notification {
	n := rendered
	n.To = rcpt.Address
	n.Metadata = map[string]string{
		"recipient_id": rcpt.ID,
		"content_kind": string(c.Kind),
		"content_id":   c.ID,
	}
	return n
}
