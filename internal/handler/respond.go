package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/auth"
	"github.com/dukerupert/intake/internal/lock"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// writeError maps err onto a status code. Internal failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		ve *apperr.ValidationError
		pe *apperr.PolicyError
		se *apperr.VoucherStateError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Message, Field: ve.Field})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "not eligible", Reasons: pe.Reasons})
	case errors.As(err, &se):
		writeJSON(w, http.StatusConflict, errorResponse{Error: se.Error()})
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, lock.ErrTimeout):
		logger.Warn("customer lock busy", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "This customer is being updated by another request. Please try again."})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Invalid("", "invalid JSON")
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// parseFlexibleTime accepts RFC 3339, a datetime-local value or a bare date.
// Values without an offset are read in loc.
func parseFlexibleTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func actor(r *http.Request) int64 {
	return auth.EmployeeID(r.Context())
}
