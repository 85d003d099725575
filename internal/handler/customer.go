package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/customer"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
)

type CustomerHandler struct {
	customers *customer.Service
	policy    func(*http.Request) (policy.Policy, error)
	logger    *slog.Logger
}

func NewCustomerHandler(cs *customer.Service, policyFn func(*http.Request) (policy.Policy, error), logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{customers: cs, policy: policyFn, logger: logger}
}

type customerRequest struct {
	model.CustomerInput
	SignupDate string                  `json:"signup_date"`
	Household  []model.HouseholdMember `json:"household"`
}

type customerResponse struct {
	*model.Customer
	Household  []model.HouseholdMember `json:"household"`
	VisitCount int                     `json:"visit_count"`
}

func (h *CustomerHandler) input(r *http.Request) (model.CustomerInput, []model.HouseholdMember, error) {
	var req customerRequest
	if err := decodeJSON(r, &req); err != nil {
		return model.CustomerInput{}, nil, err
	}
	in := req.CustomerInput
	if req.SignupDate != "" {
		p, err := h.policy(r)
		if err != nil {
			return model.CustomerInput{}, nil, err
		}
		t, err := parseFlexibleTime(req.SignupDate, p.Location)
		if err != nil {
			return model.CustomerInput{}, nil, apperr.Invalid("signup_date", "invalid signup date")
		}
		in.SignupDate = &t
	}
	return in, req.Household, nil
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, members, err := h.input(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.customers.Signup(r.Context(), actor(r), in, members)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, r, http.StatusCreated, c.ID)
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, r, http.StatusOK, id)
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	in, members, err := h.input(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.customers.Update(r.Context(), actor(r), id, in, members); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, r, http.StatusOK, id)
}

func (h *CustomerHandler) respond(w http.ResponseWriter, r *http.Request, status int, id int64) {
	c, members, err := h.customers.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.HouseholdMember{}
	}
	count, err := h.customers.VisitCount(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, status, customerResponse{Customer: c, Household: members, VisitCount: count})
}

// List returns every customer, or the search matches for ?q= (at most ten,
// empty for queries under two characters).
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		list []model.Customer
		err  error
	)
	if q, ok := r.URL.Query()["q"]; ok {
		list, err = h.customers.Search(r.Context(), q[0])
	} else {
		list, err = h.customers.List(r.Context())
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Customer{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CustomerHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	changes, err := h.customers.History(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if changes == nil {
		changes = []model.FieldChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}
