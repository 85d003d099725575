package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/visits"
)

type EligibilityHandler struct {
	visits *visits.Service
	logger *slog.Logger
}

func NewEligibilityHandler(vs *visits.Service, logger *slog.Logger) *EligibilityHandler {
	return &EligibilityHandler{visits: vs, logger: logger}
}

// Check answers GET /api/eligibility?customer_id=&visit_type=. The verdict is
// always returned with 200; a malformed id or type shows up in its errors.
func (h *EligibilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, _ := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	t := model.VisitType(q.Get("visit_type"))
	if t == "" {
		t = model.VisitFood
	}
	writeJSON(w, http.StatusOK, h.visits.Check(r.Context(), id, t))
}

// Household lists the customers counted together with {id}.
func (h *EligibilityHandler) Household(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ids, err := h.visits.Household(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer_id": id, "household_ids": ids})
}
