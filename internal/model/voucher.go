package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type VoucherStatus string

const (
	VoucherActive   VoucherStatus = "active"
	VoucherRedeemed VoucherStatus = "redeemed"
	VoucherExpired  VoucherStatus = "expired"
)

type Voucher struct {
	ID           int64           `json:"id"`
	Code         string          `json:"voucher_code"`
	CustomerID   int64           `json:"customer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       VoucherStatus   `json:"status"`
	IssuedDate   time.Time       `json:"issued_date"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	RedeemedDate *time.Time      `json:"redeemed_date,omitempty"`
	RedeemedBy   *string         `json:"redeemed_by,omitempty"`
	Notes        string          `json:"notes"`
	CreatedAt    time.Time       `json:"created_at"`
}
