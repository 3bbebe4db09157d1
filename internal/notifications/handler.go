package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/juntavecinos/notifier/internal/content"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/pkg/httputil"
	"github.com/juntavecinos/notifier/internal/preference"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: content.ErrNotFound, Status: http.StatusNotFound, Code: "content_not_found", Message: "content not found"},
	{Error: ErrAlreadyNotified, Status: http.StatusConflict, Code: "already_notified", Message: "content already notified, set force to send again"},
	{Error: ErrChannelNotConfigured, Status: http.StatusServiceUnavailable, Code: "channel_not_configured", Message: "notification channel is not configured"},
	{Error: ErrUnknownChannel, Status: http.StatusBadRequest, Code: "unknown_channel", Message: "unknown notification channel"},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers dispatch routes (require secretaria role).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/notify/{kind}", h.NotifyContent)
	r.Post("/notify/{kind}/{channel}", h.NotifyChannel)
}

// RegisterPublicRoutes registers routes that need no authentication.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/preferences/label", h.PreferenceLabel)
}

// NotifyRequest represents request body for announcing a content item.
type NotifyRequest struct {
	ContentID string   `json:"contentId" validate:"required,max=128"`
	Channels  []string `json:"channels" validate:"omitempty,max=3,dive,oneof=email telegram whatsapp"`
	Force     bool     `json:"force"`
}

// PreferenceLabelResponse is the data of GET /preferences/label.
type PreferenceLabelResponse struct {
	Value    string   `json:"value"`
	Label    string   `json:"label"`
	Channels []string `json:"channels"`
}

// NotifyContent handles POST /notify/{kind}.
func (h *Handler) NotifyContent(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseContentKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "unknown_kind", "content kind must be avisos or noticias")
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	channels := make([]preference.Channel, 0, len(req.Channels))
	for _, c := range req.Channels {
		channels = append(channels, preference.Channel(c))
	}

	summary, err := h.service.NotifyContent(dispatchContext(r), NotifyInput{
		Kind:      kind,
		ContentID: req.ContentID,
		Channels:  channels,
		Force:     req.Force,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// NotifyChannel handles POST /notify/{kind}/{channel}.
func (h *Handler) NotifyChannel(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseContentKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "unknown_kind", "content kind must be avisos or noticias")
		return
	}

	ch, ok := preference.ParseChannel(chi.URLParam(r, "channel"))
	if !ok {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "unknown_channel", "unknown notification channel")
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	report, err := h.service.NotifyChannel(dispatchContext(r), kind, req.ContentID, ch, req.Force)
	if errors.Is(err, ErrChannelNotConfigured) && report != nil {
		httputil.JSON(w, http.StatusServiceUnavailable, report)
		return
	}
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// PreferenceLabel handles GET /preferences/label?value=...
func (h *Handler) PreferenceLabel(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")
	set := preference.Parse(value)

	channels := make([]string, 0, set.Len())
	for _, c := range set.Channels() {
		channels = append(channels, string(c))
	}

	httputil.Success(w, http.StatusOK, PreferenceLabelResponse{
		Value:    set.String(),
		Label:    preference.FormatLabel(value),
		Channels: channels,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (NotifyRequest, bool) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return req, false
	}
	return req, true
}

// dispatchContext keeps request values but not cancellation: once started, a dispatch
// runs to completion even if the caller disconnects.
func dispatchContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
