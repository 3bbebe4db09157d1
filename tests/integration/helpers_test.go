//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/testutil"
	"github.com/stretchr/testify/require"
)

// graphRequest is a message sent to the fake WhatsApp Cloud API.
type graphRequest struct {
	To       string `json:"to"`
	Type     string `json:"type"`
	Text     *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Template *struct {
		Name string `json:"name"`
	} `json:"template,omitempty"`
}

// fakeGraph accepts every message and remembers it.
type fakeGraph struct {
	*httptest.Server
	mu       sync.Mutex
	requests []graphRequest
}

func newFakeGraph() *fakeGraph {
	g := &fakeGraph{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphRequest
		if r.URL.Path != "/"+whatsappPhoneID+"/messages" || json.NewDecoder(r.Body).Decode(&req) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.%d"}]}`, time.Now().UnixNano())
	}))
	return g
}

func (g *fakeGraph) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = nil
}

func (g *fakeGraph) sent() []graphRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]graphRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// resetState empties the tables, the inbox and the fake Graph API.
func resetState(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(),
		`TRUNCATE users, avisos, noticias, notification_dispatches`)
	require.NoError(t, err)
	require.NoError(t, mailpit.DeleteAll())
	graph.reset()
}

var rutSeq atomic.Int64

// nextRUT returns a fresh valid RUT such as "20000001-9".
func nextRUT() string {
	body := 20000000 + rutSeq.Add(1)
	digits := strconv.FormatInt(body, 10)

	sum, factor := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * factor
		if factor++; factor > 7 {
			factor = 2
		}
	}
	var dv string
	switch r := 11 - sum%11; r {
	case 11:
		dv = "0"
	case 10:
		dv = "K"
	default:
		dv = strconv.Itoa(r)
	}
	return digits + "-" + dv
}

type resident struct {
	Name       string
	Email      string
	Status     domain.UserStatus
	Preference string
	Phone      string
	OptIn      bool
}

type seededUser struct {
	ID  string
	RUT string
}

func seedResident(t *testing.T, r resident) seededUser {
	t.Helper()
	if r.Status == "" {
		r.Status = domain.UserStatusActive
	}
	if r.Preference == "" {
		r.Preference = "email"
	}

	u := seededUser{RUT: nextRUT()}
	err := testDB.QueryRow(context.Background(), `
		INSERT INTO users (rut, nombre, email, rol, estado, preferencia_notificacion, whatsapp_phone, whatsapp_opt_in)
		VALUES ($1, $2, NULLIF($3, ''), 'vecino', $4, $5, NULLIF($6, ''), $7)
		RETURNING id`,
		u.RUT, r.Name, r.Email, r.Status, r.Preference, r.Phone, r.OptIn,
	).Scan(&u.ID)
	require.NoError(t, err)
	return u
}

func seedAviso(t *testing.T, title, body, priority string) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO avisos (titulo, contenido, prioridad) VALUES ($1, $2, $3) RETURNING id`,
		title, body, priority,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

type storedUser struct {
	Preference string
	Phone      *string
	OptIn      bool
	Version    int
}

func loadUser(t *testing.T, id string) storedUser {
	t.Helper()
	var u storedUser
	err := testDB.QueryRow(context.Background(),
		`SELECT preferencia_notificacion, whatsapp_phone, whatsapp_opt_in, version FROM users WHERE id = $1`, id,
	).Scan(&u.Preference, &u.Phone, &u.OptIn, &u.Version)
	require.NoError(t, err)
	return u
}

func newClient(t *testing.T) *testutil.Client {
	return testutil.NewClient(t, testServer.URL, testValidator)
}

func clientAs(t *testing.T, role domain.Role) *testutil.Client {
	t.Helper()
	token, err := tokens.GenerateToken(uuid.NewString(), role, time.Hour)
	require.NoError(t, err)
	return newClient(t).WithToken(token)
}
