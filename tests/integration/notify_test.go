//go:build integration

package integration

import (
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/notifications"
	"github.com/juntavecinos/notifier/internal/pkg/httputil"
	"github.com/juntavecinos/notifier/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify_RequiresSecretaria(t *testing.T) {
	resetState(t)
	avisoID := seedAviso(t, "Corte de agua", "Mañana sin agua.", "media")
	body := map[string]any{"contentId": avisoID}

	tests := []struct {
		name       string
		client     *testutil.Client
		wantStatus int
		wantCode   string
	}{
		{name: "no token", client: newClient(t), wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "bad token", client: newClient(t).WithToken("not-a-jwt"), wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "vecino", client: clientAs(t, domain.RoleVecino), wantStatus: http.StatusForbidden, wantCode: "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.client.POST("/api/v1/notify/avisos/email", body)
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			var errBody httputil.ErrorBody
			testutil.DecodeJSON(t, resp, &errBody)
			assert.Equal(t, tt.wantCode, errBody.Error.Code)
		})
	}

	messages, err := mailpit.Messages()
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestNotify_EmailDelivered(t *testing.T) {
	resetState(t)
	seedResident(t, resident{Name: "María Soto", Email: "maria@example.cl"})
	seedResident(t, resident{Name: "Pedro Rojas", Email: "pedro@example.cl", Preference: "email+whatsapp"})
	seedResident(t, resident{Name: "Ana Díaz", Email: "ana@example.cl", Preference: "todos"})
	seedResident(t, resident{Name: "Luis Pino", Email: "luis@example.cl", Status: domain.UserStatusPending})
	seedResident(t, resident{Name: "Rosa Vera", Email: "rosa@example.cl", Preference: "telegram"})
	avisoID := seedAviso(t, "Corte de agua", "Mañana no habrá agua entre 9 y 14 hrs.", "urgente")

	client := clientAs(t, domain.RoleSecretaria)

	resp, err := client.POST("/api/v1/notify/avisos/email", map[string]any{"contentId": avisoID})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report notifications.Report
	testutil.DecodeJSON(t, resp, &report)
	assert.True(t, report.Success)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Sent)
	assert.Zero(t, report.Errors)

	messages, err := mailpit.WaitForMessages(3, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	var recipients []string
	for _, m := range messages {
		require.Len(t, m.To, 1)
		recipients = append(recipients, m.To[0].Address)
		assert.Equal(t, "[Aviso urgente] Corte de agua", m.Subject)
	}
	sort.Strings(recipients)
	assert.Equal(t, []string{"ana@example.cl", "maria@example.cl", "pedro@example.cl"}, recipients)

	detail, err := mailpit.Message(messages[0].ID)
	require.NoError(t, err)
	assert.Contains(t, detail.Text, "Mañana no habrá agua")
	assert.Contains(t, detail.HTML, "Corte de agua")

	headers, err := mailpit.Headers(messages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"<https://junta.example.cl/perfil>"}, headers["List-Unsubscribe"])
	assert.Equal(t, []string{"bulk"}, headers["Precedence"])
}

func TestNotify_RepeatIsRejectedUnlessForced(t *testing.T) {
	resetState(t)
	seedResident(t, resident{Name: "María Soto", Email: "maria@example.cl"})
	avisoID := seedAviso(t, "Asamblea", "Asamblea ordinaria el sábado.", "media")

	client := clientAs(t, domain.RoleSecretaria)

	resp, err := client.POST("/api/v1/notify/avisos/email", map[string]any{"contentId": avisoID})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = testutil.ReadBody(t, resp)

	resp, err = client.POST("/api/v1/notify/avisos/email", map[string]any{"contentId": avisoID})
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var errBody httputil.ErrorBody
	testutil.DecodeJSON(t, resp, &errBody)
	assert.Equal(t, "already_notified", errBody.Error.Code)

	resp, err = client.POST("/api/v1/notify/avisos/email", map[string]any{"contentId": avisoID, "force": true})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report notifications.Report
	testutil.DecodeJSON(t, resp, &report)
	assert.Equal(t, 1, report.Sent)

	_, err = mailpit.WaitForMessages(2, 10*time.Second)
	require.NoError(t, err)
}

func TestNotify_AllChannels(t *testing.T) {
	resetState(t)
	seedResident(t, resident{Name: "María Soto", Email: "maria@example.cl", Preference: "email+whatsapp", Phone: "56912345678", OptIn: true})
	seedResident(t, resident{Name: "Pedro Rojas", Preference: "whatsapp", Phone: "56987654321", OptIn: false})
	avisoID := seedAviso(t, "Operativo veterinario", "Vacunación gratuita en la sede.", "media")

	resp, err := clientAs(t, domain.RoleAdmin).POST("/api/v1/notify/avisos", map[string]any{"contentId": avisoID})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary notifications.Summary
	testutil.DecodeJSON(t, resp, &summary)
	assert.True(t, summary.Success)
	assert.Equal(t, []string{"telegram"}, summary.Skipped)
	assert.Equal(t, 2, summary.Sent)
	require.Len(t, summary.Channels, 2)
	assert.Equal(t, "email", string(summary.Channels[0].Channel))
	assert.Equal(t, "whatsapp", string(summary.Channels[1].Channel))

	sent := graph.sent()
	require.Len(t, sent, 1, "only opted-in numbers are messaged")
	assert.Equal(t, "56912345678", sent[0].To)
	assert.Equal(t, "template", sent[0].Type)
	require.NotNil(t, sent[0].Template)
	assert.Equal(t, "aviso_vecinal", sent[0].Template.Name)
}

func TestNotify_UnconfiguredChannel(t *testing.T) {
	resetState(t)
	avisoID := seedAviso(t, "Corte de luz", "Corte programado.", "alta")

	resp, err := clientAs(t, domain.RoleSecretaria).POST("/api/v1/notify/avisos/telegram", map[string]any{"contentId": avisoID})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var report notifications.Report
	testutil.DecodeJSON(t, resp, &report)
	assert.False(t, report.Success)
	assert.NotEmpty(t, report.Error)
}

func TestNotify_UnknownContent(t *testing.T) {
	resetState(t)
	client := clientAs(t, domain.RoleSecretaria)

	for _, id := range []string{"7d9f4c1e-0000-4000-8000-000000000000", "not-a-uuid"} {
		resp, err := client.POST("/api/v1/notify/noticias/email", map[string]any{"contentId": id})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, id)
		_ = testutil.ReadBody(t, resp)
	}
}

func TestPreferenceLabel(t *testing.T) {
	resp, err := newClient(t).GET("/api/v1/preferences/label?value=whatsapp%2Bemail")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Value string `json:"value"`
			Label string `json:"label"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "email+whatsapp", body.Data.Value)
	assert.Equal(t, "Correo electrónico + WhatsApp", body.Data.Label)
}

func TestSystemEndpoints(t *testing.T) {
	client := newClient(t)

	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		resp, err := client.GET(path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = testutil.ReadBody(t, resp)
	}
}
