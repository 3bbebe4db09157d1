package notifications

import (
	"context"

	"github.com/juntavecinos/notifier/internal/preference"
)

// Notification is a rendered message addressed to a single recipient.
type Notification struct {
	To      string
	Subject string
	// Body is the channel-formatted message: HTML for email and Telegram, plain text for WhatsApp.
	Body string
	// Text is the plain text rendition used as email alternative and WhatsApp fallback.
	Text string
	Link string
	// Template is the logical template key ("aviso", "noticia") a provider may map to
	// a pre-approved message template.
	Template       string
	TemplateParams []string
	Metadata       map[string]string
}

// Sender delivers notifications over one channel.
type Sender interface {
	Type() preference.Channel
	// Configured reports whether the provider credentials are present.
	Configured() bool
	Send(ctx context.Context, notification Notification) error
}

// BatchSender is implemented by senders that deliver a whole recipient list in one call.
// The returned slice has one entry per notification; a nil entry means delivered.
type BatchSender interface {
	Sender
	SendBatch(ctx context.Context, notifications []Notification) []error
}

// Retryable is implemented by provider errors that classify themselves.
type Retryable interface {
	IsRetryable() bool
}
