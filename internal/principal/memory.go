package principal

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Memory is an in-process Resolver for tests and local runs.
type Memory struct {
	mu    sync.RWMutex
	users map[string]memoryUser
}

type memoryUser struct {
	passwordHash []byte
	enabled      bool
	roles        []string
}

var _ Resolver = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{users: make(map[string]memoryUser)}
}

func (m *Memory) Add(username, password string, enabled bool, roles ...string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = memoryUser{passwordHash: hash, enabled: enabled, roles: roles}
	return nil
}

func (m *Memory) Authenticate(ctx context.Context, username, password string) error {
	m.mu.RLock()
	user, ok := m.users[username]
	m.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)); err != nil {
		return ErrAuthFailed
	}
	if !user.enabled {
		return ErrAuthFailed
	}
	return nil
}

func (m *Memory) Describe(ctx context.Context, username string) (Info, error) {
	m.mu.RLock()
	user, ok := m.users[username]
	m.mu.RUnlock()

	if !ok {
		return Info{}, ErrUnknownPrincipal
	}
	return Info{Roles: append([]string(nil), user.roles...), Enabled: user.enabled}, nil
}
