// Package telegram delivers notifications and bot replies through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/juntavecinos/notifier/internal/notifications"
	"github.com/juntavecinos/notifier/internal/preference"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL    = "https://api.telegram.org/bot%s"
	defaultRateLimit = 25.0
	defaultTimeout   = 10 * time.Second
	defaultRetry     = time.Second
	parseModeHTML    = "HTML"
)

// Config holds telegram sender configuration.
type Config struct {
	Enabled   bool
	BotToken  string
	RateLimit float64 // messages per second across all chats
	Timeout   time.Duration
}

// Sender implements the Telegram channel.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiURL     string // format string taking the bot token
}

// NewSender creates a new telegram sender. A sender without bot token reports
// Configured() == false instead of failing, so the service starts without Telegram.
func NewSender(config Config) *Sender {
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	s := &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		apiURL:     defaultAPIURL,
	}

	slog.Info("telegram sender configured",
		"enabled", config.Enabled,
		"configured", s.Configured(),
		"rate_limit", config.RateLimit,
	)

	return s
}

// Type returns the channel type.
func (s *Sender) Type() preference.Channel {
	return preference.Telegram
}

// Configured reports whether the bot token is present.
func (s *Sender) Configured() bool {
	return s.config.Enabled && s.config.BotToken != ""
}

// Send delivers an HTML notification to notification.To (a chat id).
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if !s.Configured() {
		return notifications.ErrChannelNotConfigured
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	return s.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:    notification.To,
		Text:      notification.Body,
		ParseMode: parseModeHTML,
	}, nil)
}

// SendText replies to a chat with plain text.
func (s *Sender) SendText(ctx context.Context, chatID, text string) error {
	if !s.Configured() {
		return notifications.ErrChannelNotConfigured
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	return s.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	}, nil)
}

// SetWebhook points the bot at url. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every update.
func (s *Sender) SetWebhook(ctx context.Context, url, secret string) error {
	if !s.Configured() {
		return notifications.ErrChannelNotConfigured
	}
	return s.call(ctx, "setWebhook", setWebhookRequest{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "edited_message"},
	}, nil)
}

// GetWebhookInfo returns the current webhook state.
func (s *Sender) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	if !s.Configured() {
		return nil, notifications.ErrChannelNotConfigured
	}
	var info WebhookInfo
	if err := s.call(ctx, "getWebhookInfo", struct{}{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Sender) call(ctx context.Context, method string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf(s.apiURL, s.config.BotToken) + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// the error text contains the URL and therefore the token
		return &RetryableError{Message: fmt.Sprintf("%s request failed", method)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, result)
}

func (s *Sender) handleResponse(resp *http.Response, result any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	var tr telegramResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return &RetryableError{Code: resp.StatusCode, Message: "invalid response body"}
		}
		return &PermanentError{Code: resp.StatusCode, Message: "invalid response body"}
	}

	if resp.StatusCode == http.StatusOK && tr.OK {
		if result != nil && len(tr.Result) > 0 {
			if err := json.Unmarshal(tr.Result, result); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		return nil
	}

	code := tr.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}

	switch {
	case code == http.StatusTooManyRequests:
		retryAfter := defaultRetry
		if tr.Parameters != nil && tr.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(tr.Parameters.RetryAfter) * time.Second
		}
		return &RateLimitError{RetryAfter: retryAfter, Message: tr.Description}
	case code == http.StatusUnauthorized:
		return &PermanentError{Code: code, Message: "invalid bot token"}
	case code >= http.StatusInternalServerError:
		return &RetryableError{Code: code, Message: tr.Description}
	default:
		return &PermanentError{Code: code, Message: tr.Description}
	}
}
