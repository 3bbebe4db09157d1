package inbound

import (
	"context"
	"sync"

	"github.com/juntavecinos/notifier/internal/directory"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/notifications/telegram"
	"github.com/juntavecinos/notifier/internal/preference"
)

// fakeDirectory is an in-memory user directory.
type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]domain.User
	updates int
	err     error
}

func newFakeDirectory(users ...domain.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]domain.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) get(id string) domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[id]
}

func (d *fakeDirectory) GetByRUT(_ context.Context, rut string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	for _, u := range d.users {
		if u.RUT == rut {
			return &u, nil
		}
	}
	return nil, directory.ErrUserNotFound
}

func (d *fakeDirectory) GetByAddress(_ context.Context, ch preference.Channel, address string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	for _, u := range d.users {
		if linkedAddress(&u, ch) == address {
			return &u, nil
		}
	}
	return nil, directory.ErrUserNotFound
}

func (d *fakeDirectory) Update(_ context.Context, id string, mutate func(*domain.User) error) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	if err := mutate(&u); err != nil {
		return nil, err
	}
	u.Version++
	d.users[id] = u
	d.updates++
	return &u, nil
}

type sentReply struct {
	to   string
	text string
}

type fakeTelegram struct {
	configured bool
	replies    []sentReply
	sendErr    error
	webhookURL string
	secret     string
	setCalls   int
	setErr     error
	info       *telegram.WebhookInfo
	infoErr    error
}

func (f *fakeTelegram) Configured() bool { return f.configured }

func (f *fakeTelegram) SendText(_ context.Context, chatID, text string) error {
	f.replies = append(f.replies, sentReply{to: chatID, text: text})
	return f.sendErr
}

func (f *fakeTelegram) SetWebhook(_ context.Context, url, secret string) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.webhookURL = url
	f.secret = secret
	return nil
}

func (f *fakeTelegram) GetWebhookInfo(context.Context) (*telegram.WebhookInfo, error) {
	return f.info, f.infoErr
}

type fakeWhatsApp struct {
	replies []sentReply
	sendErr error
}

func (f *fakeWhatsApp) SendText(_ context.Context, to, text string) error {
	f.replies = append(f.replies, sentReply{to: to, text: text})
	return f.sendErr
}

func strPtr(s string) *string { return &s }

func activeUser() domain.User {
	return domain.User{
		ID:         "u-1",
		RUT:        "12345678-5",
		Name:       "María",
		Email:      "maria@example.com",
		Role:       domain.RoleVecino,
		Status:     domain.UserStatusActive,
		Preference: "email",
	}
}
