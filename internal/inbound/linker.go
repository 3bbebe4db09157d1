// Package inbound handles the commands residents send to the Telegram and WhatsApp bots
// to link or unlink a chat with their directory record.
package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/juntavecinos/notifier/internal/directory"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/preference"
)

// Directory is the subset of the user directory the linker needs.
type Directory interface {
	GetByRUT(ctx context.Context, rut string) (*domain.User, error)
	GetByAddress(ctx context.Context, ch preference.Channel, address string) (*domain.User, error)
	Update(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error)
}

// Outcome classifies how a command ended.
type Outcome string

// Outcomes.
const (
	OutcomeLinked   Outcome = "linked"
	OutcomeUnlinked Outcome = "unlinked"
	OutcomeRejected Outcome = "rejected"
	OutcomeHelp     Outcome = "help"
	OutcomeFailed   Outcome = "failed"
)

// Result is the reply to send back and how the command ended.
type Result struct {
	Reply   string
	Outcome Outcome
}

var (
	errNotActive    = errors.New("user not active")
	errAddressMoved = errors.New("address no longer linked to user")
)

// Linker links and unlinks bot channel addresses.
type Linker struct {
	directory Directory
}

// NewLinker creates a new linker.
func NewLinker(dir Directory) *Linker {
	return &Linker{directory: dir}
}

// Handle parses text and runs the command for the sender at address on ch.
func (l *Linker) Handle(ctx context.Context, ch preference.Channel, address, text string) (Command, Result) {
	cmd := ParseCommand(text)

	var res Result
	switch cmd.Kind {
	case CommandLink:
		res = l.Link(ctx, ch, address, cmd.Arg)
	case CommandUnlink:
		res = l.Unlink(ctx, ch, address)
	default:
		res = Result{Reply: msgHelp, Outcome: OutcomeHelp}
	}

	commandsTotal.WithLabelValues(string(ch), string(cmd.Kind), string(res.Outcome)).Inc()
	return cmd, res
}

// Link sets address as the ch address of the active user identified by rawRUT and
// adds ch to the user's preference.
func (l *Linker) Link(ctx context.Context, ch preference.Channel, address, rawRUT string) Result {
	logger := ctxlog.FromContext(ctx)

	if rawRUT == "" {
		return Result{Reply: msgLinkUsage, Outcome: OutcomeHelp}
	}
	rut, err := NormalizeRUT(rawRUT)
	if err != nil {
		return Result{Reply: msgInvalidRUT, Outcome: OutcomeRejected}
	}

	user, err := l.directory.GetByRUT(ctx, rut)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return Result{Reply: msgUserNotFound(rut), Outcome: OutcomeRejected}
		}
		logger.Error("failed to look up user by rut", "error", err)
		return Result{Reply: msgFailure, Outcome: OutcomeFailed}
	}

	if reply, ok := statusRejection(user.Status); !ok {
		return Result{Reply: reply, Outcome: OutcomeRejected}
	}

	owner, err := l.directory.GetByAddress(ctx, ch, address)
	switch {
	case err == nil && owner.ID != user.ID:
		return Result{Reply: msgAddressTaken(addressNoun(ch)), Outcome: OutcomeRejected}
	case err != nil && !errors.Is(err, directory.ErrUserNotFound):
		logger.Error("failed to look up user by address", "error", err)
		return Result{Reply: msgFailure, Outcome: OutcomeFailed}
	}

	updated, err := l.directory.Update(ctx, user.ID, func(u *domain.User) error {
		if !u.IsActive() {
			return errNotActive
		}
		pref, err := preference.Add(u.Preference, ch)
		if err != nil {
			return err
		}
		u.SetAddress(ch, address)
		u.Preference = pref
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errNotActive):
			return Result{Reply: msgInactive, Outcome: OutcomeRejected}
		case errors.Is(err, directory.ErrAddressInUse):
			return Result{Reply: msgAddressTaken(addressNoun(ch)), Outcome: OutcomeRejected}
		default:
			logger.Error("failed to link address", "user_id", user.ID, "error", err)
			return Result{Reply: msgFailure, Outcome: OutcomeFailed}
		}
	}

	logger.Info("channel linked", "user_id", updated.ID, "channel", ch, "preference", updated.Preference)
	return Result{
		Reply:   msgLinked(updated.Name, ch.Label(), preference.FormatLabel(updated.Preference)),
		Outcome: OutcomeLinked,
	}
}

// Unlink clears the ch address of the user linked to address and removes ch from the
// user's preference, falling back to email when nothing is left.
func (l *Linker) Unlink(ctx context.Context, ch preference.Channel, address string) Result {
	logger := ctxlog.FromContext(ctx)

	user, err := l.directory.GetByAddress(ctx, ch, address)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return Result{Reply: msgNotLinked, Outcome: OutcomeRejected}
		}
		logger.Error("failed to look up user by address", "error", err)
		return Result{Reply: msgFailure, Outcome: OutcomeFailed}
	}

	updated, err := l.directory.Update(ctx, user.ID, func(u *domain.User) error {
		if linkedAddress(u, ch) != address {
			return errAddressMoved
		}
		u.ClearAddress(ch)
		u.Preference = preference.Remove(u.Preference, ch, preference.Email)
		return nil
	})
	if err != nil {
		if errors.Is(err, errAddressMoved) {
			return Result{Reply: msgNotLinked, Outcome: OutcomeRejected}
		}
		logger.Error("failed to unlink address", "user_id", user.ID, "error", err)
		return Result{Reply: msgFailure, Outcome: OutcomeFailed}
	}

	logger.Info("channel unlinked", "user_id", updated.ID, "channel", ch, "preference", updated.Preference)
	return Result{
		Reply:   msgUnlinked(ch.Label(), preference.FormatLabel(updated.Preference)),
		Outcome: OutcomeUnlinked,
	}
}

// statusRejection returns the reply for a user that cannot link, ok is true for active users.
func statusRejection(status domain.UserStatus) (string, bool) {
	switch status {
	case domain.UserStatusActive:
		return "", true
	case domain.UserStatusPending:
		return msgPending, false
	case domain.UserStatusRejected:
		return msgRejected, false
	default:
		return msgInactive, false
	}
}

// linkedAddress returns the stored address regardless of the WhatsApp opt-in flag.
func linkedAddress(u *domain.User, ch preference.Channel) string {
	var p *string
	switch ch {
	case preference.Telegram:
		p = u.TelegramChatID
	case preference.WhatsApp:
		p = u.WhatsAppPhone
	}
	if p == nil {
		return ""
	}
	return *p
}

func addressNoun(ch preference.Channel) string {
	switch ch {
	case preference.Telegram:
		return "chat de Telegram"
	case preference.WhatsApp:
		return "número de WhatsApp"
	default:
		return fmt.Sprintf("medio (%s)", ch.Label())
	}
}
