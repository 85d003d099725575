package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/auth"
	"github.com/dukerupert/intake/internal/employee"
)

type AuthHandler struct {
	employees *employee.Service
	secret    []byte
	ttl       time.Duration
	logger    *slog.Logger
}

func NewAuthHandler(es *employee.Service, secret []byte, ttl time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{employees: es, secret: secret, ttl: ttl, logger: logger}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Employee  any       `json:"employee"`
}

// Token exchanges credentials for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	e, err := h.employees.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if e == nil {
		h.logger.Warn("failed login", "username", req.Username)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid username or password"})
		return
	}
	token, exp, err := auth.IssueToken(h.secret, e, h.ttl, time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp, Employee: e})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	e, err := h.employees.Get(r.Context(), actor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type passwordRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
	Confirm string `json:"confirm_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Confirm != "" && req.Confirm != req.New {
		writeError(w, h.logger, apperr.Invalid("confirm_password", "New passwords do not match"))
		return
	}
	if err := h.employees.ChangePassword(r.Context(), actor(r), req.Current, req.New); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
