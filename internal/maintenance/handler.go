package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"

	"auth-service/internal/janitor"
	"auth-service/internal/observability"
)

// CleanupHandler exposes the expiry sweep over HTTP so an external cron
// can drive it on platforms where no long-lived process exists.
type CleanupHandler struct {
	janitor    *janitor.Janitor
	logger     *observability.Logger
	cronSecret string
}

func NewCleanupHandler(j *janitor.Janitor, logger *observability.Logger, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		janitor:    j,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// Without a configured secret the endpoint does not exist.
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	deleted, err := h.janitor.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("cleanup_endpoint_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"deleted": deleted,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
