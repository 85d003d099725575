package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/intake/internal/employee"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/store"
)

type EmployeeHandler struct {
	employees *employee.Service
	audit     *store.AuditStore
	logger    *slog.Logger
}

func NewEmployeeHandler(es *employee.Service, as *store.AuditStore, logger *slog.Logger) *EmployeeHandler {
	return &EmployeeHandler{employees: es, audit: as, logger: logger}
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.employees.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Employee{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req employee.NewEmployee
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	e, err := h.employees.Create(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *EmployeeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.employees.Deactivate)
}

func (h *EmployeeHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.employees.Reactivate)
}

func (h *EmployeeHandler) apply(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (*model.Employee, error)) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	e, err := fn(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *EmployeeHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	e, err := h.employees.ResetPassword(r.Context(), actor(r), id, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Actions returns the audit trail written by employee {id}.
func (h *EmployeeHandler) Actions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	actions, err := h.audit.ListByEmployee(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if actions == nil {
		actions = []model.EmployeeAction{}
	}
	writeJSON(w, http.StatusOK, actions)
}
