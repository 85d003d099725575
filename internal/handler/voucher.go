package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/voucher"
)

type VoucherHandler struct {
	vouchers *voucher.Service
	policy   func(*http.Request) (policy.Policy, error)
	logger   *slog.Logger
}

func NewVoucherHandler(vs *voucher.Service, policyFn func(*http.Request) (policy.Policy, error), logger *slog.Logger) *VoucherHandler {
	return &VoucherHandler{vouchers: vs, policy: policyFn, logger: logger}
}

type issueRequest struct {
	CustomerID int64           `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	ExpiryDate string          `json:"expiry_date"`
	IssuedAt   string          `json:"issued_at"`
	Notes      string          `json:"notes"`
}

func (h *VoucherHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	in := voucher.IssueInput{CustomerID: req.CustomerID, Amount: req.Amount, Notes: req.Notes}

	if req.ExpiryDate != "" || req.IssuedAt != "" {
		p, err := h.policy(r)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if req.ExpiryDate != "" {
			t, err := parseFlexibleTime(req.ExpiryDate, p.Location)
			if err != nil {
				writeError(w, h.logger, apperr.Invalid("expiry_date", "invalid expiry date"))
				return
			}
			in.ExpiryDate = &t
		}
		if req.IssuedAt != "" {
			t, err := parseFlexibleTime(req.IssuedAt, p.Location)
			if err != nil {
				writeError(w, h.logger, apperr.Invalid("issued_at", "invalid issue date"))
				return
			}
			in.IssuedAt = &t
		}
	}

	v, err := h.vouchers.Issue(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

type voucherStatus struct {
	*model.Voucher
	Redeemable bool   `json:"redeemable"`
	Message    string `json:"message,omitempty"`
}

// Get looks up {code}. A voucher that exists but cannot be redeemed is still
// returned with 200, along with the reason.
func (h *VoucherHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.vouchers.Check(r.Context(), r.PathValue("code"))
	if v == nil {
		writeError(w, h.logger, err)
		return
	}
	resp := voucherStatus{Voucher: v, Redeemable: err == nil}
	if err != nil {
		resp.Message = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type redeemRequest struct {
	RedeemedBy string `json:"redeemed_by"`
}

func (h *VoucherHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.vouchers.Redeem(r.Context(), actor(r), r.PathValue("code"), req.RedeemedBy)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *VoucherHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	v, err := h.vouchers.Revoke(r.Context(), actor(r), r.PathValue("code"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// List returns the active vouchers.
func (h *VoucherHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.vouchers.Active(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Voucher{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *VoucherHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	list, err := h.vouchers.ForCustomer(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Voucher{}
	}
	writeJSON(w, http.StatusOK, list)
}
