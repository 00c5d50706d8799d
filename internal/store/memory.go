package store

import (
	"context"
	"sync"
	"time"

	"auth-service/internal/clock"
)

// Memory is an in-process RefreshStore used by tests and local runs. It
// mirrors the Postgres contract, including token uniqueness and atomic
// rotation.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	nextID  int64
	byID    map[int64]*RefreshRecord
	byToken map[string]int64
}

var _ RefreshStore = (*Memory)(nil)

func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clock:   clk,
		byID:    make(map[int64]*RefreshRecord),
		byToken: make(map[string]int64),
	}
}

func (m *Memory) Create(ctx context.Context, principal string, ttl time.Duration) (RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(principal, ttl)
}

func (m *Memory) createLocked(principal string, ttl time.Duration) (RefreshRecord, error) {
	var tok string
	for {
		generated, err := newToken()
		if err != nil {
			return RefreshRecord{}, err
		}
		if _, taken := m.byToken[generated]; !taken {
			tok = generated
			break
		}
	}

	now := m.clock.Now()
	m.nextID++
	rec := &RefreshRecord{
		ID:        m.nextID,
		Token:     tok,
		Principal: principal,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	m.byID[rec.ID] = rec
	m.byToken[rec.Token] = rec.ID

	return *rec, nil
}

func (m *Memory) FindByToken(ctx context.Context, token string) (RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byToken[token]
	if !ok {
		return RefreshRecord{}, ErrNotFound
	}
	return *m.byID[id], nil
}

func (m *Memory) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(id)
	return nil
}

func (m *Memory) deleteLocked(id int64) bool {
	rec, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byToken, rec.Token)
	delete(m.byID, id)
	return true
}

func (m *Memory) Rotate(ctx context.Context, oldID int64, principal string, ttl time.Duration) (RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.deleteLocked(oldID) {
		return RefreshRecord{}, ErrNotFound
	}
	return m.createLocked(principal, ttl)
}

func (m *Memory) MarkRevoked(ctx context.Context, id int64, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok || rec.Revoked {
		return nil
	}
	at := now.UTC()
	rec.Revoked = true
	rec.RevokedAt = &at
	return nil
}

func (m *Memory) RevokeAllForPrincipal(ctx context.Context, principal string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	at := now.UTC()
	for _, rec := range m.byID {
		if rec.Principal == principal && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &at
		}
	}
	return nil
}

func (m *Memory) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, rec := range m.byID {
		if rec.ExpiresAt.Before(now) {
			m.deleteLocked(id)
			deleted++
		}
	}
	return deleted, nil
}
