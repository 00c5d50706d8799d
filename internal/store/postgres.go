package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"auth-service/internal/clock"
)

const uniqueViolationCode = "23505"

// Token collisions are a <1 in 2^128 event; the retry loop exists so the
// unique constraint stays the source of truth rather than a prayer.
const maxTokenRetries = 3

// Postgres is the production RefreshStore backed by the refresh_tokens
// table. Uniqueness of tokens is enforced by the database.
type Postgres struct {
	db    *sql.DB
	clock clock.Clock
}

var _ RefreshStore = (*Postgres)(nil)

func NewPostgres(db *sql.DB, clk clock.Clock) *Postgres {
	return &Postgres{db: db, clock: clk}
}

func (p *Postgres) Create(ctx context.Context, principal string, ttl time.Duration) (RefreshRecord, error) {
	for attempt := 0; attempt < maxTokenRetries; attempt++ {
		tok, err := newToken()
		if err != nil {
			return RefreshRecord{}, err
		}

		rec, err := p.insert(ctx, p.db, tok, principal, ttl)
		if err == nil {
			return rec, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return RefreshRecord{}, err
	}
	return RefreshRecord{}, errors.New("refresh token generation retries exhausted")
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *Postgres) insert(ctx context.Context, q execQuerier, tok, principal string, ttl time.Duration) (RefreshRecord, error) {
	now := p.clock.Now()
	rec := RefreshRecord{
		Token:     tok,
		Principal: principal,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (token, username, expires_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id
	`, rec.Token, rec.Principal, rec.ExpiresAt, rec.IssuedAt).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return RefreshRecord{}, err
		}
		return RefreshRecord{}, fmt.Errorf("insert refresh token: %w", err)
	}

	return rec, nil
}

func (p *Postgres) FindByToken(ctx context.Context, token string) (RefreshRecord, error) {
	var (
		rec       RefreshRecord
		revokedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, token, username, expires_at, created_at, revoked, revoked_at
		FROM refresh_tokens
		WHERE token = $1
	`, token).Scan(&rec.ID, &rec.Token, &rec.Principal, &rec.ExpiresAt, &rec.IssuedAt, &rec.Revoked, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshRecord{}, ErrNotFound
		}
		return RefreshRecord{}, fmt.Errorf("query refresh token: %w", err)
	}

	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.IssuedAt = rec.IssuedAt.UTC()
	if revokedAt.Valid {
		at := revokedAt.Time.UTC()
		rec.RevokedAt = &at
	}

	return rec, nil
}

func (p *Postgres) Delete(ctx context.Context, id int64) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (p *Postgres) Rotate(ctx context.Context, oldID int64, principal string, ttl time.Duration) (RefreshRecord, error) {
	for attempt := 0; attempt < maxTokenRetries; attempt++ {
		rec, err := p.rotateOnce(ctx, oldID, principal, ttl)
		if err == nil {
			return rec, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return RefreshRecord{}, err
	}
	return RefreshRecord{}, errors.New("refresh token generation retries exhausted")
}

// rotateOnce is the compare-and-delete rotation: of two concurrent callers
// holding the same token, exactly one sees its DELETE hit a row.
func (p *Postgres) rotateOnce(ctx context.Context, oldID int64, principal string, ttl time.Duration) (RefreshRecord, error) {
	tok, err := newToken()
	if err != nil {
		return RefreshRecord{}, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("begin rotation tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, oldID)
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("delete rotated refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("rotation rows affected: %w", err)
	}
	if affected == 0 {
		return RefreshRecord{}, ErrNotFound
	}

	rec, err := p.insert(ctx, tx, tok, principal, ttl)
	if err != nil {
		return RefreshRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return RefreshRecord{}, fmt.Errorf("commit rotation tx: %w", err)
	}

	return rec, nil
}

func (p *Postgres) MarkRevoked(ctx context.Context, id int64, now time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND revoked = FALSE
	`, id, now.UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (p *Postgres) RevokeAllForPrincipal(ctx context.Context, principal string, now time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE username = $1 AND revoked = FALSE
	`, principal, now.UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh tokens for principal: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}
	return deleted, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
