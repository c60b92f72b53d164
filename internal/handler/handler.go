package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alex-user-go/rates/internal/middleware"
	"github.com/alex-user-go/rates/internal/obs"
	"github.com/alex-user-go/rates/internal/quote"
	"github.com/alex-user-go/rates/internal/vendor"
)

// APIVersion is reported in the service descriptor and response metadata.
const APIVersion = "1.0.0"

// Handler handles HTTP requests.
type Handler struct {
	service *quote.Service
	metrics *obs.Metrics
	logger  *slog.Logger
	name    string
	now     func() time.Time
}

// New creates a new Handler. name is the service name shown by the descriptor.
func New(service *quote.Service, metrics *obs.Metrics, logger *slog.Logger, name string) *Handler {
	return &Handler{
		service: service,
		metrics: metrics,
		logger:  logger,
		name:    name,
		now:     time.Now,
	}
}

// RatesResponse is the success envelope of POST /api/rates.
type RatesResponse struct {
	Success bool          `json:"success"`
	Data    []quote.Quote `json:"data"`
	Meta    Meta          `json:"meta"`
}

// Meta describes how a response was produced.
type Meta struct {
	RequestID   string `json:"request_id"`
	ProcessedAt string `json:"processed_at"`
	Source      string `json:"source"`
	APIVersion  string `json:"api_version"`
	Cache       string `json:"cache"`
	DurationMs  int64  `json:"duration_ms"`
}

// TestResponse is the diagnostic echo of /api/test.
type TestResponse struct {
	Success      bool                   `json:"success"`
	Message      string                 `json:"message"`
	ReceivedData any                    `json:"received_data"`
	Validation   quote.ValidationReport `json:"validation"`
	Payload      *vendor.Request        `json:"transformed_payload,omitempty"`
	Timestamp    string                 `json:"timestamp"`
	Method       string                 `json:"method"`
	Path         string                 `json:"path"`
}

// Descriptor is the service description served on / and /api.
type Descriptor struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Source    string            `json:"source"`
	Endpoints map[string]string `json:"endpoints"`
}

// Rates handles POST /api/rates.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	h.metrics.IncRequests()
	requestID := h.requestID(r)

	raw, err := DecodeObject(w, r)
	if err != nil {
		h.logger.Debug("invalid request body", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	result, err := h.service.Quote(r.Context(), raw)
	if err != nil {
		h.writeQuoteError(w, requestID, err)
		return
	}

	cacheStatus := "miss"
	if result.CacheHit {
		cacheStatus = "hit"
	}

	writeJSON(w, h.logger, http.StatusOK, RatesResponse{
		Success: true,
		Data:    result.Quotes,
		Meta: Meta{
			RequestID:   requestID,
			ProcessedAt: h.now().Format(time.RFC3339),
			Source:      result.Source,
			APIVersion:  APIVersion,
			Cache:       cacheStatus,
			DurationMs:  h.now().Sub(start).Milliseconds(),
		},
	})
}

func (h *Handler) writeQuoteError(w http.ResponseWriter, requestID string, err error) {
	var (
		verr    *quote.ValidationError
		failure *vendor.TransportFailure
	)
	switch {
	case errors.As(err, &verr):
		h.logger.Debug("quote request rejected", "request_id", requestID, "details", verr.Details)
		writeError(w, http.StatusBadRequest, "Validation failed", verr.Details...)
	case errors.Is(err, vendor.ErrThrottled):
		h.logger.Warn("vendor call throttled", "request_id", requestID)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "Vendor busy, retry shortly")
	case errors.As(err, &failure):
		h.logger.Error("vendor unavailable", "request_id", requestID, "status", failure.StatusCode, "error", failure.Err)
		writeError(w, http.StatusBadGateway, "Vendor unavailable")
	default:
		h.logger.Error("quote failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Test handles /api/test. It never calls the vendor and always answers 200.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	var received any
	raw, err := DecodeObject(w, r)
	if err == nil {
		received = raw
	}

	diag := h.service.Inspect(raw)
	if err != nil {
		diag.Validation.Errors = append([]string{err.Error()}, diag.Validation.Errors...)
	}

	writeJSON(w, h.logger, http.StatusOK, TestResponse{
		Success:      true,
		Message:      "Test endpoint working",
		ReceivedData: received,
		Validation:   diag.Validation,
		Payload:      diag.Payload,
		Timestamp:    h.now().Format(time.RFC3339),
		Method:       r.Method,
		Path:         r.URL.Path,
	})
}

// Info handles GET / and GET /api.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, Descriptor{
		Name:    h.name,
		Version: APIVersion,
		Source:  h.service.Source(),
		Endpoints: map[string]string{
			"POST /api/rates": "Get accommodation rates",
			"POST /api/test":  "Validate a request and show the vendor payload",
			"GET /api":        "Service descriptor",
			"GET /healthz":    "Liveness check",
			"GET /metrics":    "Prometheus metrics",
		},
	})
}

// NotFound answers unknown paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

// MethodNotAllowed answers known paths requested with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (h *Handler) requestID(r *http.Request) string {
	if id := middleware.RequestID(r.Context()); id != "" {
		return id
	}
	return uuid.New().String()
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Can't change status after WriteHeader, just log
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string, details ...string) {
	middleware.WriteError(w, status, middleware.ErrorDetail{Message: message, Details: details})
}
