package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/krshsl/influenceos/backend/models"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusForKind maps an error kind to the HTTP status returned to clients
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindAuth:
		return http.StatusUnauthorized
	case models.KindNetwork, models.KindGeneration, models.KindPublish:
		return http.StatusBadGateway
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError logs err and answers with the status and message its kind maps to
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	status := statusForKind(kind)

	attrs := []any{
		"error", err,
		"kind", kind,
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", attrs...)
	} else {
		slog.Warn("Request rejected", attrs...)
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(kind),
		Message: models.MessageOf(err),
	}})
}

func writeRateLimited(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
		Code:    "rate_limited",
		Message: "too many requests, slow down",
	}})
}
