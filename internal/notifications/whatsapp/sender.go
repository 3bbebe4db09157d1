// Package whatsapp delivers notifications and bot replies through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/juntavecinos/notifier/internal/notifications"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/preference"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL   = "https://graph.facebook.com/v21.0"
	defaultLanguage = "es"
	defaultSpacing  = 800 * time.Millisecond
	defaultTimeout  = 10 * time.Second
	defaultRetry    = 5 * time.Second
	productWhatsApp = "whatsapp"
)

// Graph error codes that mean throttling.
var rateLimitCodes = map[int]bool{
	4:      true,
	80007:  true,
	130429: true,
	131048: true,
	131056: true,
}

// Config holds WhatsApp Cloud API configuration.
type Config struct {
	Enabled       bool
	PhoneNumberID string
	AccessToken   string
	APIURL        string
	Language      string
	// Templates maps a notification template key ("aviso", "noticia") to an approved template name.
	Templates map[string]string
	// Spacing is the minimum gap between two recipient sends.
	Spacing time.Duration
	Timeout time.Duration
}

// Sender implements the WhatsApp channel.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiURL     string
}

// NewSender creates a new WhatsApp sender. Missing credentials leave the sender unconfigured.
func NewSender(config Config) *Sender {
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.Language == "" {
		config.Language = defaultLanguage
	}
	if config.Spacing <= 0 {
		config.Spacing = defaultSpacing
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	s := &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Every(config.Spacing), 1),
		apiURL:     strings.TrimRight(config.APIURL, "/"),
	}

	slog.Info("whatsapp sender configured",
		"enabled", config.Enabled,
		"configured", s.Configured(),
		"spacing", config.Spacing,
		"templates", len(config.Templates),
	)

	return s
}

// Type returns the channel type.
func (s *Sender) Type() preference.Channel {
	return preference.WhatsApp
}

// Configured reports whether the phone number id and access token are present.
func (s *Sender) Configured() bool {
	return s.config.Enabled && s.config.PhoneNumberID != "" && s.config.AccessToken != ""
}

// Send delivers a notification, preferring the approved template for notification.Template.
// If the template send fails it falls back once to a free-text message with notification.Text.
// The spacing wait happens once per recipient; the fallback is not spaced.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if !s.Configured() {
		return notifications.ErrChannelNotConfigured
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("spacing wait: %w", err)
	}

	to := NormalizePhone(notification.To)
	text := notification.Text
	if text == "" {
		text = notification.Body
	}

	name := s.config.Templates[notification.Template]
	if name == "" {
		return s.sendText(ctx, to, text)
	}

	tplErr := s.sendTemplate(ctx, to, name, notification.TemplateParams)
	if tplErr == nil {
		return nil
	}

	ctxlog.FromContext(ctx).Warn("whatsapp template send failed, falling back to text",
		"template", name,
		"error", tplErr,
	)

	if err := s.sendText(ctx, to, text); err != nil {
		templateFallbacks.WithLabelValues("failed").Inc()
		return fmt.Errorf("text fallback after template error (%v): %w", tplErr, err)
	}
	templateFallbacks.WithLabelValues("sent").Inc()
	return nil
}

// SendText replies to a user with free text. Replies are answers inside the
// customer service window and skip the broadcast spacing.
func (s *Sender) SendText(ctx context.Context, to, text string) error {
	if !s.Configured() {
		return notifications.ErrChannelNotConfigured
	}
	return s.sendText(ctx, NormalizePhone(to), text)
}

func (s *Sender) sendText(ctx context.Context, to, text string) error {
	return s.post(ctx, messageRequest{
		MessagingProduct: productWhatsApp,
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &Text{Body: text, PreviewURL: true},
	})
}

func (s *Sender) sendTemplate(ctx context.Context, to, name string, params []string) error {
	tpl := &templateMessage{
		Name:     name,
		Language: templateLanguage{Code: s.config.Language},
	}
	if len(params) > 0 {
		body := templateComponent{Type: "body", Parameters: make([]templateParameter, len(params))}
		for i, p := range params {
			body.Parameters[i] = templateParameter{Type: "text", Text: p}
		}
		tpl.Components = []templateComponent{body}
	}

	return s.post(ctx, messageRequest{
		MessagingProduct: productWhatsApp,
		To:               to,
		Type:             "template",
		Template:         tpl,
	})
}

func (s *Sender) post(ctx context.Context, payload messageRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.apiURL, s.config.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp)
}

func handleResponse(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &RetryableError{Status: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var gr graphResponse
	_ = json.Unmarshal(raw, &gr)

	ge := gr.Error
	if ge == nil {
		ge = &graphError{Message: http.StatusText(resp.StatusCode)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || rateLimitCodes[ge.Code]:
		return &RateLimitError{RetryAfter: retryAfter(resp), Code: ge.Code, Message: ge.Message}
	case resp.StatusCode == http.StatusUnauthorized:
		return &PermanentError{Status: resp.StatusCode, Code: ge.Code, Message: "invalid access token"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &RetryableError{Status: resp.StatusCode, Message: ge.Message}
	default:
		return &PermanentError{Status: resp.StatusCode, Code: ge.Code, Message: ge.Message}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			return d
		}
	}
	return defaultRetry
}

// NormalizePhone keeps only the digits of a phone number, the form the Cloud API
// uses in "to" and reports in "from".
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
