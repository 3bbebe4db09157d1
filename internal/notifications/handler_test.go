package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/juntavecinos/notifier/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPISpecPath = "../../api/openapi/openapi.yaml"

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterPublicRoutes(r)
		h.RegisterRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*http.Request, *http.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return req, rec.Result()
}

func TestHandler_NotifyChannel(t *testing.T) {
	validator := testutil.NewOpenAPIValidator(t, openAPISpecPath)
	f := newServiceFixture()
	f.email.failFor["carla@example.cl"] = errProvider
	router := newTestRouter(NewHandler(f.service))

	req, resp := doRequest(t, router, http.MethodPost, "/api/v1/notify/avisos/email", `{"contentId":"a1b2c3"}`)
	validator.ValidateResponse(t, req, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 3, report.Total)
}

func TestHandler_NotifyChannel_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		setup      func(f *serviceFixture)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown kind",
			path:       "/api/v1/notify/eventos/email",
			body:       `{"contentId":"a1b2c3"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "unknown_kind",
		},
		{
			name:       "unknown channel",
			path:       "/api/v1/notify/avisos/fax",
			body:       `{"contentId":"a1b2c3"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "unknown_channel",
		},
		{
			name:       "invalid json",
			path:       "/api/v1/notify/avisos/email",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_json",
		},
		{
			name:       "missing content id",
			path:       "/api/v1/notify/avisos/email",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_error",
		},
		{
			name:       "content not found",
			path:       "/api/v1/notify/noticias/email",
			body:       `{"contentId":"a1b2c3"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "content_not_found",
		},
		{
			name: "already notified",
			path: "/api/v1/notify/avisos/telegram",
			body: `{"contentId":"a1b2c3"}`,
			setup: func(f *serviceFixture) {
				f.guard.claimed["aviso:a1b2c3:telegram"] = true
			},
			wantStatus: http.StatusConflict,
			wantCode:   "already_notified",
		},
		{
			name: "resolver failure",
			path: "/api/v1/notify/avisos/telegram",
			body: `{"contentId":"a1b2c3"}`,
			setup: func(f *serviceFixture) {
				f.resolver.err = assert.AnError
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	validator := testutil.NewOpenAPIValidator(t, openAPISpecPath)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			router := newTestRouter(NewHandler(f.service))

			req, resp := doRequest(t, router, http.MethodPost, tt.path, tt.body)
			if tt.wantStatus != http.StatusBadRequest {
				validator.ValidateResponse(t, req, resp)
			}

			require.Equal(t, tt.wantStatus, resp.StatusCode)
			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestHandler_NotifyChannel_NotConfigured(t *testing.T) {
	validator := testutil.NewOpenAPIValidator(t, openAPISpecPath)
	f := newServiceFixture()
	router := newTestRouter(NewHandler(f.service))

	req, resp := doRequest(t, router, http.MethodPost, "/api/v1/notify/avisos/whatsapp", `{"contentId":"a1b2c3"}`)
	validator.ValidateResponse(t, req, resp)

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.False(t, report.Success)
	assert.Equal(t, "channel not configured", report.Error)
}

func TestHandler_NotifyContent(t *testing.T) {
	validator := testutil.NewOpenAPIValidator(t, openAPISpecPath)
	f := newServiceFixture()
	router := newTestRouter(NewHandler(f.service))

	req, resp := doRequest(t, router, http.MethodPost, "/api/v1/notify/avisos",
		`{"contentId":"a1b2c3","channels":["telegram","whatsapp"]}`)
	validator.ValidateResponse(t, req, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.True(t, summary.Success)
	assert.Equal(t, []string{"whatsapp"}, summary.Skipped)
	require.Len(t, summary.Channels, 1)
	assert.Equal(t, 3, summary.Channels[0].Sent)
}

func TestHandler_NotifyContent_InvalidChannel(t *testing.T) {
	f := newServiceFixture()
	router := newTestRouter(NewHandler(f.service))

	_, resp := doRequest(t, router, http.MethodPost, "/api/v1/notify/avisos", `{"contentId":"a1b2c3","channels":["sms"]}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, f.email.attempts)
}

func TestHandler_PreferenceLabel(t *testing.T) {
	validator := testutil.NewOpenAPIValidator(t, openAPISpecPath)
	router := newTestRouter(NewHandler(newServiceFixture().service))

	req, resp := doRequest(t, router, http.MethodGet, "/api/v1/preferences/label?value=whatsapp%2Bemail", "")
	validator.ValidateResponse(t, req, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data PreferenceLabelResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "email+whatsapp", body.Data.Value)
	assert.Equal(t, "Correo electrónico + WhatsApp", body.Data.Label)
	assert.Equal(t, []string{"email", "whatsapp"}, body.Data.Channels)
}
