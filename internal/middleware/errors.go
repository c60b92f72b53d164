package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorBody is the error envelope shared by middleware and handlers.
type ErrorBody struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Message    string   `json:"message"`
	Code       int      `json:"code"`
	Timestamp  string   `json:"timestamp"`
	Details    []string `json:"details,omitempty"`
	RetryAfter *int     `json:"retry_after,omitempty"`
}

// WriteError writes a JSON error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, detail ErrorDetail) {
	detail.Code = status
	if detail.Timestamp == "" {
		detail.Timestamp = time.Now().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Success: false, Error: detail})
}
