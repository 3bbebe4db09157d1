package domain

import (
	"time"

	"github.com/juntavecinos/notifier/internal/preference"
)

type Role string

const (
	RoleVecino     Role = "vecino"
	RoleSecretaria Role = "secretaria"
	RoleAdmin      Role = "admin"
)

var roleRank = map[Role]int{
	RoleVecino:     1,
	RoleSecretaria: 2,
	RoleAdmin:      3,
}

// HasPermission reports whether r is at least as privileged as required.
func (r Role) HasPermission(required Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[required]
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

type UserStatus string

const (
	UserStatusPending  UserStatus = "pendiente"
	UserStatusActive   UserStatus = "activo"
	UserStatusRejected UserStatus = "rechazado"
)

// User is a registered member of the junta directory.
type User struct {
	ID             string
	RUT            string
	Name           string
	Email          string
	Role           Role
	Status         UserStatus
	Preference     string
	TelegramChatID *string
	WhatsAppPhone  *string
	WhatsAppOptIn  bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsResident reports whether u is an approved vecino, the only audience of broadcasts.
func (u *User) IsResident() bool {
	return u.Role == RoleVecino && u.IsActive()
}

// Address returns the delivery address of u for ch, or "" when u cannot be reached there.
// A WhatsApp number only counts once the resident opted in.
func (u *User) Address(ch preference.Channel) string {
	switch ch {
	case preference.Email:
		return u.Email
	case preference.Telegram:
		return deref(u.TelegramChatID)
	case preference.WhatsApp:
		if !u.WhatsAppOptIn {
			return ""
		}
		return deref(u.WhatsAppPhone)
	default:
		return ""
	}
}

// SetAddress links a bot channel address to u. WhatsApp links also record the opt-in.
func (u *User) SetAddress(ch preference.Channel, address string) {
	switch ch {
	case preference.Telegram:
		u.TelegramChatID = &address
	case preference.WhatsApp:
		u.WhatsAppPhone = &address
		u.WhatsAppOptIn = true
	}
}

// ClearAddress removes the bot channel address of u.
func (u *User) ClearAddress(ch preference.Channel) {
	switch ch {
	case preference.Telegram:
		u.TelegramChatID = nil
	case preference.WhatsApp:
		u.WhatsAppPhone = nil
		u.WhatsAppOptIn = false
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
