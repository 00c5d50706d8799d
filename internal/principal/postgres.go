package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"auth-service/internal/clock"
)

// dummyHash keeps the bcrypt cost of an unknown-user attempt in the same
// ballpark as a wrong-password attempt.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// PostgresResolver reads the users table. Passwords are stored as bcrypt
// hashes; roles as a comma-separated list.
type PostgresResolver struct {
	db    *sql.DB
	clock clock.Clock
}

var _ Resolver = (*PostgresResolver)(nil)

func NewPostgresResolver(db *sql.DB, clk clock.Clock) *PostgresResolver {
	return &PostgresResolver{db: db, clock: clk}
}

func (r *PostgresResolver) Authenticate(ctx context.Context, username, password string) error {
	var (
		passwordHash string
		enabled      bool
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT password_hash, enabled
		FROM users
		WHERE username = $1
	`, username).Scan(&passwordHash, &enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return ErrAuthFailed
		}
		return fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return ErrAuthFailed
	}
	if !enabled {
		return ErrAuthFailed
	}

	return nil
}

func (r *PostgresResolver) Describe(ctx context.Context, username string) (Info, error) {
	var (
		enabled bool
		roles   string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, roles
		FROM users
		WHERE username = $1
	`, username).Scan(&enabled, &roles)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Info{}, ErrUnknownPrincipal
		}
		return Info{}, fmt.Errorf("query user roles: %w", err)
	}

	return Info{Roles: splitRoles(roles), Enabled: enabled}, nil
}

// BootstrapAdmin creates or refreshes the admin account from environment
// credentials at startup.
func (r *PostgresResolver) BootstrapAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(strings.ToLower(username))
	password = strings.TrimSpace(password)

	if username == "" && password == "" {
		return nil
	}
	if username == "" || password == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := r.clock.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, enabled, roles, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, 'ADMIN', $4, $4)
		ON CONFLICT (username)
		DO UPDATE SET password_hash = EXCLUDED.password_hash, enabled = TRUE, updated_at = EXCLUDED.updated_at
	`, id.String(), username, string(hash), now)
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}

	return nil
}

func splitRoles(roles string) []string {
	parts := strings.Split(roles, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
