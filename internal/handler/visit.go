package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/store"
	"github.com/dukerupert/intake/internal/visits"
)

type VisitHandler struct {
	visits *visits.Service
	store  *store.VisitStore
	logger *slog.Logger
}

func NewVisitHandler(vs *visits.Service, st *store.VisitStore, logger *slog.Logger) *VisitHandler {
	return &VisitHandler{visits: vs, store: st, logger: logger}
}

type visitRequest struct {
	CustomerID int64            `json:"customer_id"`
	VisitType  model.VisitType  `json:"visit_type"`
	VisitDate  string           `json:"visit_date"`
	Amount     *decimal.Decimal `json:"amount"`
	Notes      string           `json:"notes"`
}

func (h *VisitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	in := visits.RecordInput{
		CustomerID: req.CustomerID,
		Type:       req.VisitType,
		Amount:     req.Amount,
		Notes:      strings.TrimSpace(req.Notes),
	}
	if req.VisitDate != "" {
		p, err := h.visits.Policy(r.Context())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		t, err := parseFlexibleTime(req.VisitDate, p.Location)
		if err != nil {
			writeError(w, h.logger, apperr.Invalid("visit_date", "invalid visit date"))
			return
		}
		in.VisitDate = &t
	}

	v, err := h.visits.Record(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

type invalidateRequest struct {
	CustomerID int64  `json:"customer_id"`
	Reason     string `json:"reason"`
}

func (h *VisitHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req invalidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.visits.Invalidate(r.Context(), actor(r), id, req.CustomerID, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type visitHistory struct {
	Visits []model.Visit           `json:"visits"`
	Counts map[model.VisitType]int `json:"counts"`
}

// ListByCustomer returns every visit of {id}, valid and invalid, newest first.
func (h *VisitHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	list, err := h.store.ListByCustomer(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	counts, err := h.store.CountsByType(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Visit{}
	}
	writeJSON(w, http.StatusOK, visitHistory{Visits: list, Counts: counts})
}
