// Package email provides email notification sending via SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/juntavecinos/notifier/internal/notifications"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/preference"
	"gopkg.in/mail.v2"
)

const metadataHeaderPrefix = "X-Junta-"

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	// BatchSize is the number of messages sent over one SMTP connection before reconnecting.
	BatchSize         int
	UnsubscribeURL    string
	UnsubscribeMailto string
	Timeout           time.Duration
}

// Dialer opens an SMTP session. *mail.Dialer satisfies it.
type Dialer interface {
	Dial() (mail.SendCloser, error)
}

// Sender implements email notification sender via SMTP.
type Sender struct {
	config Config
	dialer Dialer
}

// NewSender creates a new email sender.
// A sender without host or from address reports Configured() == false.
func NewSender(config Config) *Sender {
	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.BatchSize == 0 {
		config.BatchSize = 50
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	d := mail.NewDialer(config.SMTPHost, config.SMTPPort, config.SMTPUser, config.SMTPPassword)
	d.Timeout = config.Timeout
	d.StartTLSPolicy = mail.OpportunisticStartTLS

	s := &Sender{config: config, dialer: d}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"configured", s.Configured(),
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"batch_size", config.BatchSize,
	)

	return s
}

// Type returns the channel type.
func (s *Sender) Type() preference.Channel {
	return preference.Email
}

// Configured reports whether host and from address are set.
func (s *Sender) Configured() bool {
	return s.config.Enabled && s.config.SMTPHost != "" && s.config.FromAddress != ""
}

// Send sends an email notification to a single recipient.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	return s.SendBatch(ctx, []notifications.Notification{notification})[0]
}

// SendBatch sends one message per notification, reusing the SMTP connection for up to
// BatchSize messages. A failed message never stops the rest; the connection is
// reopened before the next one.
func (s *Sender) SendBatch(ctx context.Context, batch []notifications.Notification) []error {
	errs := make([]error, len(batch))
	if len(batch) == 0 {
		return errs
	}
	if !s.Configured() {
		for i := range errs {
			errs[i] = notifications.ErrChannelNotConfigured
		}
		return errs
	}

	logger := ctxlog.FromContext(ctx)

	var (
		conn     mail.SendCloser
		sentOnce int
	)
	closeConn := func() {
		if conn != nil {
			_ = conn.Close()
			conn = nil
		}
	}
	defer closeConn()

	for i, n := range batch {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		if conn != nil && sentOnce >= s.config.BatchSize {
			closeConn()
		}
		if conn == nil {
			c, err := s.dialer.Dial()
			if err != nil {
				errs[i] = &DeliveryError{Err: fmt.Errorf("dial smtp: %w", err)}
				continue
			}
			conn = c
			sentOnce = 0
		}

		if err := mail.Send(conn, s.buildMessage(n)); err != nil {
			logger.Warn("failed to send email", "index", i, "error", err)
			errs[i] = &DeliveryError{Err: err}
			closeConn()
			continue
		}
		sentOnce++
	}

	return errs
}

// buildMessage constructs the message for one recipient.
func (s *Sender) buildMessage(n notifications.Notification) *mail.Message {
	m := mail.NewMessage()

	m.SetHeader("From", s.config.FromAddress)
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", n.Subject)

	if unsub := s.listUnsubscribe(); unsub != "" {
		m.SetHeader("List-Unsubscribe", unsub)
		if s.config.UnsubscribeURL != "" {
			m.SetHeader("List-Unsubscribe-Post", "List-Unsubscribe=One-Click")
		}
	}
	m.SetHeader("Precedence", "bulk")
	m.SetHeader("X-Track-Opens", "false")
	m.SetHeader("X-Track-Clicks", "false")

	// sorted for a stable header order
	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetHeader(MetadataHeader(k), n.Metadata[k])
	}

	switch {
	case n.Text != "" && n.Body != "":
		m.SetBody("text/plain", n.Text)
		m.AddAlternative("text/html", n.Body)
	case n.Body != "":
		m.SetBody("text/html", n.Body)
	default:
		m.SetBody("text/plain", n.Text)
	}

	return m
}

func (s *Sender) listUnsubscribe() string {
	var parts []string
	if s.config.UnsubscribeMailto != "" {
		mailto := s.config.UnsubscribeMailto
		if !strings.HasPrefix(mailto, "mailto:") {
			mailto = "mailto:" + mailto
		}
		parts = append(parts, "<"+mailto+">")
	}
	if s.config.UnsubscribeURL != "" {
		parts = append(parts, "<"+s.config.UnsubscribeURL+">")
	}
	return strings.Join(parts, ", ")
}

// MetadataHeader returns the header name carrying metadata key,
// e.g. "recipient_id" -> "X-Junta-Recipient-Id".
func MetadataHeader(key string) string {
	return textproto.CanonicalMIMEHeaderKey(metadataHeaderPrefix + strings.ReplaceAll(key, "_", "-"))
}

// DeliveryError wraps an SMTP failure and classifies it.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return "smtp delivery: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the SMTP failure is transient.
func (e *DeliveryError) IsRetryable() bool {
	return IsRetryable(e.Err)
}

// IsRetryable determines if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Network timeout errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection refused is retryable
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500 || protoErr.Code == 552
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures (retryable)
	if strings.Contains(errStr, "421") || // Service not available
		strings.Contains(errStr, "450") || // Mailbox unavailable
		strings.Contains(errStr, "451") || // Local error
		strings.Contains(errStr, "452") { // Insufficient storage
		return true
	}

	// 552 - Mailbox full is sometimes retryable
	return strings.Contains(errStr, "552")
}
