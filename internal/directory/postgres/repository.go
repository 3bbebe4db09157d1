// Package postgres provides PostgreSQL implementation of the user directory.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juntavecinos/notifier/internal/directory"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/preference"
)

// MaxUpdateAttempts bounds the optimistic update loop.
const MaxUpdateAttempts = 5

const uniqueViolation = "23505"

const userColumns = `
	id, rut, nombre, email, rol, estado, preferencia_notificacion,
	telegram_chat_id, whatsapp_phone, whatsapp_opt_in, version, created_at, updated_at`

var (
	rutSeparators = regexp.MustCompile(`[.\s-]`)
	nonDigits     = regexp.MustCompile(`\D`)
)

// Repository implements directory.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// addressFilter returns the WHERE fragment that keeps users reachable on ch.
func addressFilter(ch preference.Channel) (string, error) {
	switch ch {
	case preference.Email:
		return `email IS NOT NULL AND email <> ''`, nil
	case preference.Telegram:
		return `telegram_chat_id IS NOT NULL AND telegram_chat_id <> ''`, nil
	case preference.WhatsApp:
		return `whatsapp_phone IS NOT NULL AND whatsapp_phone <> '' AND whatsapp_opt_in`, nil
	default:
		return "", fmt.Errorf("%w: %s", directory.ErrUnsupportedChannel, ch)
	}
}

// addressKey returns the SQL expression an address on ch is matched against, and the
// address normalized the same way. Phones are compared on digits only, since the profile
// page may store them with "+" and spaces.
func addressKey(ch preference.Channel, address string) (string, string, error) {
	switch ch {
	case preference.Telegram:
		return "telegram_chat_id", strings.TrimSpace(address), nil
	case preference.WhatsApp:
		return `regexp_replace(whatsapp_phone, '\D', '', 'g')`, nonDigits.ReplaceAllString(address, ""), nil
	default:
		return "", "", fmt.Errorf("%w: %s", directory.ErrUnsupportedChannel, ch)
	}
}

// ListResidentsWithAddress retrieves active vecinos reachable on ch.
func (r *Repository) ListResidentsWithAddress(ctx context.Context, ch preference.Channel) ([]domain.User, error) {
	filter, err := addressFilter(ch)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE rol = $1 AND estado = $2 AND ` + filter + `
		ORDER BY nombre, id`

	rows, err := r.db.Query(ctx, query, domain.RoleVecino, domain.UserStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate residents: %w", err)
	}

	return users, nil
}

// GetByRUT retrieves a user by RUT, ignoring dots, spaces, dashes and the case of the check digit.
func (r *Repository) GetByRUT(ctx context.Context, rut string) (*domain.User, error) {
	key := strings.ToUpper(rutSeparators.ReplaceAllString(rut, ""))
	if key == "" {
		return nil, directory.ErrUserNotFound
	}

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE upper(regexp_replace(rut, '[.\s-]', '', 'g')) = $1
		LIMIT 1`

	user, err := scanUser(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by rut: %w", err)
	}
	return user, nil
}

// GetByAddress retrieves the user linked to address on ch.
func (r *Repository) GetByAddress(ctx context.Context, ch preference.Channel, address string) (*domain.User, error) {
	column, key, err := addressKey(ch, address)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, directory.ErrUserNotFound
	}

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE ` + column + ` = $1
		LIMIT 1`

	user, err := scanUser(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by address: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Update runs an optimistic read-modify-write on the mutable notification columns.
// The write only succeeds if version is unchanged since the read; otherwise the row
// is read again and mutate re-applied, up to MaxUpdateAttempts times.
func (r *Repository) Update(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error) {
	query := `
		UPDATE users
		SET preferencia_notificacion = $3,
		    telegram_chat_id = $4,
		    whatsapp_phone = $5,
		    whatsapp_opt_in = $6,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	for attempt := 1; attempt <= MaxUpdateAttempts; attempt++ {
		user, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := mutate(user); err != nil {
			return nil, err
		}
		user.Preference = preference.Parse(user.Preference).String()

		err = r.db.QueryRow(ctx, query,
			user.ID,
			user.Version,
			user.Preference,
			user.TelegramChatID,
			user.WhatsAppPhone,
			user.WhatsAppOptIn,
		).Scan(&user.Version, &user.UpdatedAt)

		if err == nil {
			return user, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, directory.ErrAddressInUse
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	return nil, directory.ErrConcurrentUpdate
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var email *string
	err := row.Scan(
		&u.ID,
		&u.RUT,
		&u.Name,
		&email,
		&u.Role,
		&u.Status,
		&u.Preference,
		&u.TelegramChatID,
		&u.WhatsAppPhone,
		&u.WhatsAppOptIn,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email != nil {
		u.Email = *email
	}
	return &u, nil
}
