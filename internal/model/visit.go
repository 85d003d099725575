package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type VisitType string

const (
	VisitFood    VisitType = "food"
	VisitMoney   VisitType = "money"
	VisitVoucher VisitType = "voucher"
)

// VisitTypes lists every known visit type.
var VisitTypes = []VisitType{VisitFood, VisitMoney, VisitVoucher}

func (t VisitType) Valid() bool {
	switch t {
	case VisitFood, VisitMoney, VisitVoucher:
		return true
	}
	return false
}

type Visit struct {
	ID            int64            `json:"id"`
	CustomerID    int64            `json:"customer_id"`
	VisitDate     time.Time        `json:"visit_date"`
	Type          VisitType        `json:"visit_type"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Notes         string           `json:"notes"`
	VoucherID     *int64           `json:"voucher_id,omitempty"`
	IsInvalid     bool             `json:"is_invalid"`
	InvalidReason *string          `json:"invalid_reason,omitempty"`
	InvalidatedBy *int64           `json:"invalidated_by,omitempty"`
	InvalidatedAt *time.Time       `json:"invalidated_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

type VisitInput struct {
	CustomerID int64
	VisitDate  time.Time
	Type       VisitType
	Amount     *decimal.Decimal
	Notes      string
	VoucherID  *int64
}
