package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// RefreshRecord is one row of the refresh_tokens table. Revocation keeps
// the row around for audit; the janitor removes it once expired.
type RefreshRecord struct {
	ID        int64
	Token     string
	Principal string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

func (r RefreshRecord) Usable(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// RefreshStore persists refresh credentials. All operations are atomic with
// respect to concurrent callers and honor the context deadline.
type RefreshStore interface {
	Create(ctx context.Context, principal string, ttl time.Duration) (RefreshRecord, error)
	FindByToken(ctx context.Context, token string) (RefreshRecord, error)
	Delete(ctx context.Context, id int64) error

	// Rotate deletes the record identified by oldID and creates a fresh one
	// for principal in a single atomic step. A caller that lost a concurrent
	// rotation race gets ErrNotFound.
	Rotate(ctx context.Context, oldID int64, principal string, ttl time.Duration) (RefreshRecord, error)

	// MarkRevoked is a no-op for rows that are already revoked.
	MarkRevoked(ctx context.Context, id int64, now time.Time) error
	RevokeAllForPrincipal(ctx context.Context, principal string, now time.Time) error

	// DeleteExpired removes rows with expires_at strictly before now and
	// returns how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

const tokenBytes = 32

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
