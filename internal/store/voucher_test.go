package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/intake/internal/model"
)

func setupVoucherTestDB(t *testing.T) *VoucherStore {
	t.Helper()
	return NewVoucherStore(openTestDB(t))
}

func createTestVoucher(t *testing.T, vs *VoucherStore, customerID int64, code string) *model.Voucher {
	t.Helper()
	v, err := vs.Create(context.Background(), model.Voucher{
		Code:       code,
		CustomerID: customerID,
		Amount:     decimal.RequireFromString("40.00"),
		IssuedDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	return v
}

func TestVoucherCreate(t *testing.T) {
	vs := setupVoucherTestDB(t)
	c := createTestCustomer(t, vs.db, "Maria", "1")

	v := createTestVoucher(t, vs, c.ID, "VCH-ABCD1234")
	if v.Status != model.VoucherActive {
		t.Errorf("status = %q, want %q", v.Status, model.VoucherActive)
	}
	if !v.Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("amount = %s, want 40", v.Amount)
	}
	if v.RedeemedDate != nil {
		t.Error("new voucher should not have a redeemed date")
	}
}

func TestVoucherDuplicateCode(t *testing.T) {
	vs := setupVoucherTestDB(t)
	c := createTestCustomer(t, vs.db, "Maria", "1")
	createTestVoucher(t, vs, c.ID, "VCH-ABCD1234")

	_, err := vs.Create(context.Background(), model.Voucher{Code: "VCH-ABCD1234", CustomerID: c.ID, IssuedDate: time.Now()})
	if err == nil {
		t.Fatal("expected error for duplicate code, got nil")
	}

	exists, err := vs.CodeExists(context.Background(), "VCH-ABCD1234")
	if err != nil {
		t.Fatalf("code exists: %v", err)
	}
	if !exists {
		t.Error("expected code to exist")
	}
}

func TestVoucherMarkRedeemedOnce(t *testing.T) {
	ctx := context.Background()
	vs := setupVoucherTestDB(t)
	c := createTestCustomer(t, vs.db, "Maria", "1")
	v := createTestVoucher(t, vs, c.ID, "VCH-REDEEM01")

	at := time.Date(2025, time.April, 2, 16, 0, 0, 0, time.UTC)
	ok, err := vs.MarkRedeemed(ctx, v.ID, "Corner Market", at)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !ok {
		t.Fatal("expected redeem to succeed")
	}
	if ok, _ := vs.MarkRedeemed(ctx, v.ID, "Another Store", at); ok {
		t.Error("second redeem should not succeed")
	}
	if ok, _ := vs.MarkExpired(ctx, v.ID); ok {
		t.Error("redeemed voucher should not expire")
	}

	got, err := vs.GetByCode(ctx, "VCH-REDEEM01")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got.Status != model.VoucherRedeemed {
		t.Errorf("status = %q, want %q", got.Status, model.VoucherRedeemed)
	}
	if got.RedeemedBy == nil || *got.RedeemedBy != "Corner Market" {
		t.Errorf("redeemed_by = %v, want %q", got.RedeemedBy, "Corner Market")
	}
	if got.RedeemedDate == nil || !got.RedeemedDate.Equal(at) {
		t.Errorf("redeemed_date = %v, want %v", got.RedeemedDate, at)
	}
}

func TestVoucherMarkExpired(t *testing.T) {
	ctx := context.Background()
	vs := setupVoucherTestDB(t)
	c := createTestCustomer(t, vs.db, "Maria", "1")
	v := createTestVoucher(t, vs, c.ID, "VCH-EXPIRE01")

	if ok, err := vs.MarkExpired(ctx, v.ID); err != nil || !ok {
		t.Fatalf("expire = %v, %v; want true, nil", ok, err)
	}
	if ok, _ := vs.MarkRedeemed(ctx, v.ID, "Store", time.Now()); ok {
		t.Error("expired voucher should not be redeemable")
	}

	active, err := vs.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active vouchers, got %d", len(active))
	}
}

func TestVoucherGetByCodeNotFound(t *testing.T) {
	vs := setupVoucherTestDB(t)

	v, err := vs.GetByCode(context.Background(), "VCH-MISSING")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil, got %+v", v)
	}
}
