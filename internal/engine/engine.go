package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-service/internal/clock"
	"auth-service/internal/observability"
	"auth-service/internal/principal"
	"auth-service/internal/ratelimit"
	"auth-service/internal/store"
	"auth-service/internal/token"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6

	DefaultRefreshTTL = 30 * 24 * time.Hour
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Engine drives the credential lifecycle: login, refresh rotation, logout
// and logout-all. It composes the signer, the refresh store, the rate
// limiter and the identity resolver.
type Engine struct {
	store      store.RefreshStore
	resolver   principal.Resolver
	signer     *token.Signer
	limiter    *ratelimit.Limiter
	clock      clock.Clock
	logger     *observability.Logger
	refreshTTL time.Duration
}

type Deps struct {
	Store      store.RefreshStore
	Resolver   principal.Resolver
	Signer     *token.Signer
	Limiter    *ratelimit.Limiter
	Clock      clock.Clock
	Logger     *observability.Logger
	RefreshTTL time.Duration
}

func New(deps Deps) *Engine {
	if deps.RefreshTTL <= 0 {
		deps.RefreshTTL = DefaultRefreshTTL
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger()
	}

	return &Engine{
		store:      deps.Store,
		resolver:   deps.Resolver,
		signer:     deps.Signer,
		limiter:    deps.Limiter,
		clock:      deps.Clock,
		logger:     deps.Logger,
		refreshTTL: deps.RefreshTTL,
	}
}

func (e *Engine) Login(ctx context.Context, username, password string) (TokenPair, error) {
	username = strings.TrimSpace(username)

	if err := validateCredentials(username, password); err != nil {
		return TokenPair{}, err
	}

	if err := e.limiter.Check(username); err != nil {
		e.logger.Warn("login_locked", map[string]any{"username": username})
		return TokenPair{}, err
	}

	if err := e.resolver.Authenticate(ctx, username, password); err != nil {
		if errors.Is(err, principal.ErrAuthFailed) {
			e.limiter.RecordFailure(username)
			e.logger.Warn("login_failed", map[string]any{"username": username})
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, e.storage("authenticate", err)
	}

	e.limiter.Reset(username)

	access, err := e.signer.Sign(username)
	if err != nil {
		return TokenPair{}, e.storage("sign access token", err)
	}

	rec, err := e.store.Create(ctx, username, e.refreshTTL)
	if err != nil {
		return TokenPair{}, e.storage("create refresh token", err)
	}

	e.logger.Info("login_succeeded", map[string]any{"username": username})
	return TokenPair{AccessToken: access, RefreshToken: rec.Token}, nil
}

// Refresh rotates the presented refresh credential: the old record is
// deleted and a fresh one created in one atomic step. A revoked token is
// inert; it does not trigger chain-wide revocation.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, &ValidationError{Message: "refresh token must not be empty"}
	}

	rec, err := e.store.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrInvalidRefresh
		}
		return TokenPair{}, e.storage("find refresh token", err)
	}

	if rec.Revoked {
		e.logger.Warn("refresh_revoked_token", map[string]any{"username": rec.Principal})
		return TokenPair{}, ErrInvalidRefresh
	}

	if !e.clock.Now().Before(rec.ExpiresAt) {
		if err := e.store.Delete(ctx, rec.ID); err != nil {
			return TokenPair{}, e.storage("delete expired refresh token", err)
		}
		e.logger.Info("refresh_token_expired", map[string]any{"username": rec.Principal})
		return TokenPair{}, ErrRefreshExpired
	}

	rotated, err := e.store.Rotate(ctx, rec.ID, rec.Principal, e.refreshTTL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A concurrent refresh won the rotation race.
			return TokenPair{}, ErrInvalidRefresh
		}
		return TokenPair{}, e.storage("rotate refresh token", err)
	}

	access, err := e.signer.Sign(rec.Principal)
	if err != nil {
		return TokenPair{}, e.storage("sign access token", err)
	}

	e.logger.Info("refresh_succeeded", map[string]any{"username": rec.Principal})
	return TokenPair{AccessToken: access, RefreshToken: rotated.Token}, nil
}

// Logout revokes the presented refresh token. Unknown tokens still report
// success so the endpoint leaks no existence information; repeating the
// call never changes state.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return &ValidationError{Message: "refresh token must not be empty"}
	}

	rec, err := e.store.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.storage("find refresh token", err)
	}

	if err := e.store.MarkRevoked(ctx, rec.ID, e.clock.Now()); err != nil {
		return e.storage("revoke refresh token", err)
	}

	e.logger.Info("logout_succeeded", map[string]any{"username": rec.Principal})
	return nil
}

// LogoutAll revokes every active refresh token of the principal. The
// caller's identity is enforced at the HTTP boundary.
func (e *Engine) LogoutAll(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return &ValidationError{Message: "username must not be empty"}
	}

	if err := e.store.RevokeAllForPrincipal(ctx, username, e.clock.Now()); err != nil {
		return e.storage("revoke all refresh tokens", err)
	}

	e.logger.Info("logout_all_succeeded", map[string]any{"username": username})
	return nil
}

func (e *Engine) storage(op string, err error) error {
	e.logger.Error("auth_storage_error", map[string]any{"op": op, "error": err.Error()})
	return fmt.Errorf("%s: %w", op, ErrStorage)
}

func validateCredentials(username, password string) error {
	if username == "" {
		return &ValidationError{Message: "username must not be empty"}
	}
	if password == "" {
		return &ValidationError{Message: "password must not be empty"}
	}
	if len(username) < minUsernameLength {
		return &ValidationError{Message: fmt.Sprintf("username must be at least %d characters", minUsernameLength)}
	}
	if len(password) < minPasswordLength {
		return &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}
	return nil
}
