package notifications

import (
	"context"
	"errors"
	"sync"

	"github.com/juntavecinos/notifier/internal/content"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/preference"
)

// mockSender records every notification it is asked to deliver.
type mockSender struct {
	mu         sync.Mutex
	channel    preference.Channel
	configured bool
	failFor    map[string]error
	sent       []Notification
	attempts   int
}

func newMockSender(ch preference.Channel) *mockSender {
	return &mockSender{channel: ch, configured: true, failFor: map[string]error{}}
}

func (m *mockSender) Type() preference.Channel { return m.channel }
func (m *mockSender) Configured() bool         { return m.configured }

func (m *mockSender) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if err, ok := m.failFor[n.To]; ok {
		return err
	}
	m.sent = append(m.sent, n)
	return nil
}

// mockBatchSender delivers through SendBatch only.
type mockBatchSender struct {
	*mockSender
	batchCalls int
}

func (m *mockBatchSender) SendBatch(ctx context.Context, ns []Notification) []error {
	m.batchCalls++
	errs := make([]error, len(ns))
	for i, n := range ns {
		errs[i] = m.mockSender.Send(ctx, n)
	}
	return errs
}

type mockResolver struct {
	recipients []Recipient
	err        error
	calls      int
}

func (m *mockResolver) Recipients(_ context.Context, _ preference.Channel) ([]Recipient, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.recipients, nil
}

type mockResidentSource struct {
	users []domain.User
	err   error
}

func (m *mockResidentSource) ListResidentsWithAddress(_ context.Context, _ preference.Channel) ([]domain.User, error) {
	return m.users, m.err
}

type mockContentSource struct {
	items map[string]*domain.Content
}

func newMockContentSource(items ...*domain.Content) *mockContentSource {
	m := &mockContentSource{items: map[string]*domain.Content{}}
	for _, c := range items {
		m.items[string(c.Kind)+"/"+c.ID] = c
	}
	return m
}

func (m *mockContentSource) Get(_ context.Context, kind domain.ContentKind, id string) (*domain.Content, error) {
	c, ok := m.items[string(kind)+"/"+id]
	if !ok {
		return nil, content.ErrNotFound
	}
	return c, nil
}

type mockGuard struct {
	claimed  map[string]bool
	claimErr error
	released []string
}

func newMockGuard() *mockGuard {
	return &mockGuard{claimed: map[string]bool{}}
}

func (m *mockGuard) Claim(_ context.Context, key DispatchKey) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	if m.claimed[key.String()] {
		return false, nil
	}
	m.claimed[key.String()] = true
	return true, nil
}

func (m *mockGuard) Release(_ context.Context, key DispatchKey) error {
	delete(m.claimed, key.String())
	m.released = append(m.released, key.String())
	return nil
}

var errProvider = errors.New("provider rejected message")

func testContent() *domain.Content {
	return &domain.Content{
		Kind:     domain.ContentKindAviso,
		ID:       "a1b2c3",
		Title:    "Corte de agua programado",
		Body:     "Mañana entre 9:00 y 14:00 no habrá suministro en el pasaje Los Aromos.",
		Category: "servicios",
		Priority: "alta",
	}
}

func testLinks() Links {
	return Links{BaseURL: "https://junta.example.cl/", SiteName: "Junta de Vecinos Villa Esperanza", PreferencesPath: "/perfil"}
}

func mustRenderer() *Renderer {
	r, err := NewRenderer(nil)
	if err != nil {
		panic(err)
	}
	return r
}
