package inbound

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/juntavecinos/notifier/internal/notifications/whatsapp"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/pkg/httputil"
	"github.com/juntavecinos/notifier/internal/preference"
)

// SignatureHeader carries the HMAC-SHA256 of the request body keyed with the app secret.
const SignatureHeader = "X-Hub-Signature-256"

// WhatsAppClient is the part of the Cloud API client the webhook uses.
type WhatsAppClient interface {
	SendText(ctx context.Context, to, text string) error
}

// WhatsAppConfig configures the WhatsApp webhook.
type WhatsAppConfig struct {
	// VerifyToken must match hub.verify_token in the subscription handshake.
	VerifyToken string
	// AppSecret enables the SignatureHeader check when set.
	AppSecret string
}

// WhatsAppHandler receives WhatsApp Cloud API webhooks.
type WhatsAppHandler struct {
	linker *Linker
	client WhatsAppClient
	config WhatsAppConfig
}

// NewWhatsAppHandler creates a new WhatsApp webhook handler.
func NewWhatsAppHandler(linker *Linker, client WhatsAppClient, config WhatsAppConfig) *WhatsAppHandler {
	return &WhatsAppHandler{linker: linker, client: client, config: config}
}

// RegisterRoutes registers the webhook routes.
func (h *WhatsAppHandler) RegisterRoutes(r chi.Router) {
	r.Get("/webhooks/whatsapp", h.Verify)
	r.Post("/webhooks/whatsapp", h.Receive)
}

// Verify handles the GET subscription handshake.
func (h *WhatsAppHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("hub.verify_token")

	if h.config.VerifyToken == "" ||
		q.Get("hub.mode") != "subscribe" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.config.VerifyToken)) != 1 {
		httputil.Text(w, http.StatusForbidden, "forbidden")
		return
	}

	httputil.Text(w, http.StatusOK, q.Get("hub.challenge"))
}

// Receive handles POST /webhooks/whatsapp. Each text message is run as a command and
// answered on WhatsApp; other message types get a short notice. Delivery status
// events are ignored. The response is always 200 once the signature is accepted.
func (h *WhatsAppHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	logger := ctxlog.FromContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("failed to read whatsapp webhook body", "error", err)
		httputil.JSON(w, http.StatusOK, ack{OK: true})
		return
	}

	if h.config.AppSecret != "" && !validSignature(body, r.Header.Get(SignatureHeader), h.config.AppSecret) {
		httputil.ErrorWithCode(w, http.StatusForbidden, "invalid_signature", "invalid webhook signature")
		return
	}

	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		logger.Warn("malformed whatsapp webhook", "error", err)
		httputil.JSON(w, http.StatusOK, ack{OK: true})
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.handleMessage(ctx, msg)
			}
		}
	}

	httputil.JSON(w, http.StatusOK, ack{OK: true})
}

func (h *WhatsAppHandler) handleMessage(ctx context.Context, msg whatsapp.Message) {
	from := whatsapp.NormalizePhone(msg.From)
	if from == "" {
		return
	}
	ctx, logger := ctxlog.With(ctx, "channel", preference.WhatsApp, "message_id", msg.ID)

	reply := msgOnlyText
	if msg.Type == whatsapp.MessageTypeText && msg.Text != nil && strings.TrimSpace(msg.Text.Body) != "" {
		cmd, res := h.linker.Handle(ctx, preference.WhatsApp, from, msg.Text.Body)
		logger.Info("whatsapp command handled", "command", cmd.Kind, "outcome", res.Outcome)
		reply = res.Reply
	}

	if err := h.client.SendText(ctx, from, reply); err != nil {
		logger.Error("failed to send whatsapp reply", "error", err)
	}
}

// validSignature checks header ("sha256=<hex>") against the HMAC of body.
func validSignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
