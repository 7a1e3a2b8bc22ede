// ABOUTME: JSON responses and error mapping for the HTTP API
// ABOUTME: Maps service sentinels to 400, 404, 409, 504 and 500
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// statusFor classifies err into an HTTP status and a short message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, sync.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, models.ErrContactNotFound):
		return http.StatusNotFound, "Contact not found"
	case errors.Is(err, models.ErrWriteConflict):
		return http.StatusConflict, "Email already in use"
	case errors.Is(err, models.ErrStaleContact):
		return http.StatusConflict, "Contact changed concurrently"
	case errors.Is(err, sync.ErrCycleInProgress):
		return http.StatusConflict, "Sync already in progress"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Sync timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("tenant", TenantFromContext(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, msg, err.Error())
}
