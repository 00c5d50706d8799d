package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"auth-service/internal/clock"
	"auth-service/internal/engine"
	"auth-service/internal/observability"
	"auth-service/internal/ratelimit"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	engine *engine.Engine
	logger *observability.Logger
	clock  clock.Clock
}

func NewHandler(eng *engine.Engine, logger *observability.Logger, clk clock.Clock) *Handler {
	return &Handler{engine: eng, logger: logger, clock: clk}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userInfoResponse struct {
	Username string   `json:"username"`
	Enabled  bool     `json:"enabled"`
	Roles    []string `json:"roles"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}

	pair, err := h.engine.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}

	pair, err := h.engine.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.Logout(r.Context(), body.RefreshToken); err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codeResponse{Code: "LOGOUT_SUCCESS"})
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, h.clock.Now(), http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.engine.LogoutAll(r.Context(), identity.Username); err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codeResponse{Code: "LOGOUT_ALL_SUCCESS"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, h.clock.Now(), http.StatusUnauthorized, "authentication required")
		return
	}

	roles := identity.Roles
	if roles == nil {
		roles = []string{}
	}

	writeJSON(w, http.StatusOK, userInfoResponse{
		Username: identity.Username,
		Enabled:  identity.Enabled,
		Roles:    roles,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, codeResponse{Code: "OK"})
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, h.clock.Now(), http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	now := h.clock.Now()

	var vErr *engine.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, now, http.StatusBadRequest, vErr.Message)
		return
	}

	var lockErr *ratelimit.TooManyAttemptsError
	if errors.As(err, &lockErr) {
		writeRateLimited(w, now, lockErr.RetryAfterSeconds(), "too many attempts, try again later")
		return
	}

	switch {
	case errors.Is(err, engine.ErrInvalidCredentials):
		writeError(w, now, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, engine.ErrInvalidRefresh):
		writeError(w, now, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, engine.ErrRefreshExpired):
		writeError(w, now, http.StatusUnauthorized, "refresh token expired")
	case errors.Is(err, engine.ErrStorage):
		sentry.CaptureException(err)
		writeError(w, now, http.StatusInternalServerError, "service temporarily unavailable")
	default:
		sentry.CaptureException(err)
		h.logger.Error("unhandled_auth_error", map[string]any{"error": err.Error()})
		writeError(w, now, http.StatusInternalServerError, "internal server error")
	}
}
