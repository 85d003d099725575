package voucher_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/database"
	"github.com/dukerupert/intake/internal/eligibility"
	"github.com/dukerupert/intake/internal/household"
	"github.com/dukerupert/intake/internal/lock"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/store"
	"github.com/dukerupert/intake/internal/visits"
	"github.com/dukerupert/intake/internal/voucher"
)

var now = time.Date(2025, time.March, 20, 18, 0, 0, 0, time.UTC)

type fixture struct {
	db    *sql.DB
	svc   *voucher.Service
	clerk int64
}

func newFixture(t *testing.T, settings map[string]string) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for k, v := range settings {
		require.NoError(t, store.NewSettingsStore(db).Set(ctx, k, v))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := eligibility.NewEngine(
		store.NewCustomerStore(db),
		household.NewResolver(store.NewHouseholdStore(db)),
		store.NewVisitStore(db),
		logger,
	)
	auditLog := audit.NewLogger(logger)
	t.Cleanup(auditLog.Wait)

	visitSvc := visits.NewService(db, engine, lock.NewLocal(5*time.Second), auditLog, logger)
	visitSvc.SetClock(func() time.Time { return now })
	svc := voucher.NewService(db, visitSvc, auditLog, logger)
	svc.SetClock(func() time.Time { return now })

	clerk, err := store.NewEmployeeStore(db).Create(ctx, "clerk", "Clerk", "", "pw", false, bcrypt.MinCost)
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, clerk: clerk.ID}
}

func (f *fixture) customer(t *testing.T, name string) int64 {
	t.Helper()
	c, err := store.NewCustomerStore(f.db).Create(context.Background(), model.CustomerInput{Name: name}, nil)
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) issue(t *testing.T, customerID int64) *model.Voucher {
	t.Helper()
	v, err := f.svc.Issue(context.Background(), f.clerk, voucher.IssueInput{
		CustomerID: customerID,
		Amount:     decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)
	return v
}

func sequence(codes ...string) voucher.CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func(prefix string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return prefix + c, nil
	}
}

func TestIssueRecordsVoucherVisit(t *testing.T) {
	f := newFixture(t, map[string]string{policy.KeyVoucherPrefix: "FB-"})
	ctx := context.Background()
	id := f.customer(t, "Ana")

	v := f.issue(t, id)
	assert.Regexp(t, `^FB-[A-Z0-9]{8}$`, v.Code)
	assert.Equal(t, model.VoucherActive, v.Status)
	assert.True(t, v.Amount.Equal(decimal.RequireFromString("40")))

	list, err := store.NewVisitStore(f.db).ListByCustomer(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.VisitVoucher, list[0].Type)
	require.NotNil(t, list[0].VoucherID)
	assert.Equal(t, v.ID, *list[0].VoucherID)

	entries, err := store.NewAuditStore(f.db).ListByEmployee(ctx, f.clerk)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.ActionType)
	}
	assert.ElementsMatch(t, []string{string(audit.ActionVoucherCreate), string(audit.ActionVisitCreate)}, actions)
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t, nil)
	id := f.customer(t, "Ana")

	_, err := f.svc.Issue(context.Background(), f.clerk, voucher.IssueInput{CustomerID: id})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
}

func TestIssueRespectsVoucherLimit(t *testing.T) {
	f := newFixture(t, map[string]string{policy.KeyVoucherLimitMonth: "1"})
	id := f.customer(t, "Ana")
	f.issue(t, id)

	_, err := f.svc.Issue(context.Background(), f.clerk, voucher.IssueInput{CustomerID: id, Amount: decimal.NewFromInt(10)})
	var pe *apperr.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"Monthly voucher limit reached (1/1)"}, pe.Reasons)

	vouchers, err := store.NewVoucherStore(f.db).ListByCustomer(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, vouchers, 1)
}

func TestIssueRerollsOnCollision(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.SetCodeGenerator(sequence("AAAA0000", "AAAA0000", "BBBB1111"))

	first := f.issue(t, f.customer(t, "Ana"))
	second := f.issue(t, f.customer(t, "Ben"))

	assert.Equal(t, "VCH-AAAA0000", first.Code)
	assert.Equal(t, "VCH-BBBB1111", second.Code)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.SetCodeGenerator(sequence("AAAA0000"))
	f.issue(t, f.customer(t, "Ana"))

	ben := f.customer(t, "Ben")
	_, err := f.svc.Issue(context.Background(), f.clerk, voucher.IssueInput{CustomerID: ben, Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, apperr.ErrPersistence)

	// Rolled back: no voucher visit left behind.
	list, err := store.NewVisitStore(f.db).ListByCustomer(context.Background(), ben)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCheckAndLookup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.issue(t, f.customer(t, "Ana"))

	got, err := f.svc.Check(ctx, v.Code)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = f.svc.Lookup(ctx, "VCH-NOPE0000")
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.Redeem(ctx, f.clerk, v.Code, "Front desk")
	require.NoError(t, err)

	got, err = f.svc.Check(ctx, v.Code)
	require.NotNil(t, got)
	var se *apperr.VoucherStateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "This voucher has already been redeemed on Mar 20, 2025.", se.Error())
}

func TestRedeemOnlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.issue(t, f.customer(t, "Ana"))

	const attempts = 5
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, f.clerk, v.Code, "Front desk")
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)

	got, err := f.svc.Lookup(ctx, v.Code)
	require.NoError(t, err)
	assert.Equal(t, model.VoucherRedeemed, got.Status)
	require.NotNil(t, got.RedeemedBy)
	assert.Equal(t, "Front desk", *got.RedeemedBy)

	entries, err := store.NewAuditStore(f.db).ListByTarget(ctx, audit.TargetVoucher, v.ID)
	require.NoError(t, err)
	var redeems int
	for _, e := range entries {
		if e.ActionType == string(audit.ActionVoucherRedeem) {
			redeems++
		}
	}
	assert.Equal(t, 1, redeems)
}

func TestRedeemRequiresName(t *testing.T) {
	f := newFixture(t, nil)
	v := f.issue(t, f.customer(t, "Ana"))

	_, err := f.svc.Redeem(context.Background(), f.clerk, v.Code, " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.issue(t, f.customer(t, "Ana"))

	got, err := f.svc.Revoke(ctx, f.clerk, v.Code)
	require.NoError(t, err)
	assert.Equal(t, model.VoucherExpired, got.Status)

	_, err = f.svc.Redeem(ctx, f.clerk, v.Code, "Front desk")
	var se *apperr.VoucherStateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "This voucher has expired or is no longer valid.", se.Error())

	_, err = f.svc.Revoke(ctx, f.clerk, v.Code)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
