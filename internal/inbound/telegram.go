package inbound

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/juntavecinos/notifier/internal/notifications"
	"github.com/juntavecinos/notifier/internal/notifications/telegram"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/pkg/httputil"
	"github.com/juntavecinos/notifier/internal/preference"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxWebhookBody = 1 << 20

// TelegramClient is the part of the Bot API client the webhook uses.
type TelegramClient interface {
	Configured() bool
	SendText(ctx context.Context, chatID, text string) error
	SetWebhook(ctx context.Context, url, secret string) error
	GetWebhookInfo(ctx context.Context) (*telegram.WebhookInfo, error)
}

// TelegramConfig configures the Telegram webhook.
type TelegramConfig struct {
	// Secret is compared with SecretTokenHeader; empty disables the check.
	Secret string
	// WebhookURL is the public URL registered by GET ?register=1.
	WebhookURL string
}

// TelegramHandler receives Telegram bot updates.
type TelegramHandler struct {
	linker *Linker
	client TelegramClient
	config TelegramConfig
}

// NewTelegramHandler creates a new Telegram webhook handler.
func NewTelegramHandler(linker *Linker, client TelegramClient, config TelegramConfig) *TelegramHandler {
	return &TelegramHandler{linker: linker, client: client, config: config}
}

// RegisterRoutes registers the webhook routes.
func (h *TelegramHandler) RegisterRoutes(r chi.Router) {
	r.Get("/webhooks/telegram", h.Info)
	r.Post("/webhooks/telegram", h.Receive)
}

type ack struct {
	OK bool `json:"ok"`
}

// Receive handles POST /webhooks/telegram. Every update is acknowledged with 200,
// including the ones it cannot use, so Telegram does not redeliver them.
func (h *TelegramHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.config.Secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.config.Secret)) != 1 {
			httputil.ErrorWithCode(w, http.StatusForbidden, "invalid_secret", "invalid webhook secret")
			return
		}
	}

	ctx := context.WithoutCancel(r.Context())
	logger := ctxlog.FromContext(ctx)

	var update telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&update); err != nil {
		logger.Warn("malformed telegram update", "error", err)
		httputil.JSON(w, http.StatusOK, ack{OK: true})
		return
	}

	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil {
		httputil.JSON(w, http.StatusOK, ack{OK: true})
		return
	}
	if msg.From != nil && msg.From.IsBot {
		httputil.JSON(w, http.StatusOK, ack{OK: true})
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	ctx, logger = ctxlog.With(ctx, "channel", preference.Telegram, "update_id", update.UpdateID)

	reply := msgOnlyText
	if strings.TrimSpace(msg.Text) != "" {
		cmd, res := h.linker.Handle(ctx, preference.Telegram, chatID, msg.Text)
		logger.Info("telegram command handled", "command", cmd.Kind, "outcome", res.Outcome)
		reply = res.Reply
	}

	if err := h.client.SendText(ctx, chatID, reply); err != nil {
		logger.Error("failed to send telegram reply", "error", err)
	}

	httputil.JSON(w, http.StatusOK, ack{OK: true})
}

// Info handles GET /webhooks/telegram. With ?register=1 it first points the bot at
// the configured webhook URL.
func (h *TelegramHandler) Info(w http.ResponseWriter, r *http.Request) {
	if !h.client.Configured() {
		httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "channel_not_configured", "telegram is not configured")
		return
	}

	ctx := r.Context()
	logger := ctxlog.FromContext(ctx)

	if register, _ := strconv.ParseBool(r.URL.Query().Get("register")); register {
		if h.config.WebhookURL == "" {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "webhook_url_missing", "telegram webhook url is not configured")
			return
		}
		if err := h.client.SetWebhook(ctx, h.config.WebhookURL, h.config.Secret); err != nil {
			logger.Error("failed to register telegram webhook", "error", err)
			httputil.ErrorWithCode(w, http.StatusBadGateway, "telegram_error", "failed to register webhook")
			return
		}
		logger.Info("telegram webhook registered", "url", h.config.WebhookURL)
	}

	info, err := h.client.GetWebhookInfo(ctx)
	if err != nil {
		if errors.Is(err, notifications.ErrChannelNotConfigured) {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "channel_not_configured", "telegram is not configured")
			return
		}
		logger.Error("failed to get telegram webhook info", "error", err)
		httputil.ErrorWithCode(w, http.StatusBadGateway, "telegram_error", "failed to get webhook info")
		return
	}

	httputil.Success(w, http.StatusOK, info)
}
