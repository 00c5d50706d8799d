package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// errorResponse is the standard error envelope. The error field carries
// the HTTP reason phrase; message the human-readable detail.
type errorResponse struct {
	Timestamp         string `json:"timestamp"`
	Status            int    `json:"status"`
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

type codeResponse struct {
	Code string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, now time.Time, status int, message string) {
	writeJSON(w, status, errorResponse{
		Timestamp: now.UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
	})
}

func writeRateLimited(w http.ResponseWriter, now time.Time, retryAfterSeconds int64, message string) {
	w.Header().Set("Retry-After", formatSeconds(retryAfterSeconds))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Timestamp:         now.UTC().Format(time.RFC3339),
		Status:            http.StatusTooManyRequests,
		Error:             http.StatusText(http.StatusTooManyRequests),
		Message:           message,
		RetryAfterSeconds: retryAfterSeconds,
	})
}

func formatSeconds(value int64) string {
	return strconv.FormatInt(value, 10)
}
