package eligibility_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/database"
	"github.com/dukerupert/intake/internal/eligibility"
	"github.com/dukerupert/intake/internal/household"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/store"
)

type engineFixture struct {
	db        *sql.DB
	engine    *eligibility.Engine
	customers *store.CustomerStore
	visits    *store.VisitStore
	clerk     int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	customers := store.NewCustomerStore(db)
	visits := store.NewVisitStore(db)
	resolver := household.NewResolver(store.NewHouseholdStore(db))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	clerk, err := store.NewEmployeeStore(db).Create(context.Background(), "clerk", "Clerk", "", "pw", false, bcrypt.MinCost)
	require.NoError(t, err)

	return &engineFixture{
		db:        db,
		engine:    eligibility.NewEngine(customers, resolver, visits, logger),
		customers: customers,
		visits:    visits,
		clerk:     clerk.ID,
	}
}

func (f *engineFixture) customer(t *testing.T, name string, members ...string) int64 {
	t.Helper()
	var hm []model.HouseholdMember
	for _, m := range members {
		hm = append(hm, model.HouseholdMember{Name: m})
	}
	c, err := f.customers.Create(context.Background(), model.CustomerInput{Name: name, Phone: name}, hm)
	require.NoError(t, err)
	return c.ID
}

func (f *engineFixture) visit(t *testing.T, customerID int64, typ model.VisitType, at time.Time) int64 {
	t.Helper()
	v, err := f.visits.Insert(context.Background(), model.VisitInput{CustomerID: customerID, Type: typ, VisitDate: at})
	require.NoError(t, err)
	return v.ID
}

func policyWith(t *testing.T, values map[string]string) policy.Policy {
	t.Helper()
	values["timezone"] = "UTC"
	p, err := policy.FromMap(values)
	require.NoError(t, err)
	return p
}

func TestCheckMonthlyLimitIgnoresInvalidVisits(t *testing.T) {
	f := newEngineFixture(t)
	c := f.customer(t, "Maria")
	p := policyWith(t, map[string]string{"visits_per_month_limit": "2", "min_days_between_visits": "-1"})

	f.visit(t, c, model.VisitFood, ref.AddDate(0, 0, -10))
	f.visit(t, c, model.VisitFood, ref.AddDate(0, 0, -9))
	bad := f.visit(t, c, model.VisitFood, ref.AddDate(0, 0, -8))
	_, err := f.visits.Invalidate(context.Background(), bad, c, "entered twice", f.clerk, ref)
	require.NoError(t, err)

	v := f.engine.Check(context.Background(), p, c, model.VisitFood, ref)
	assert.False(t, v.Eligible)
	require.Len(t, v.Errors, 1)
	assert.Equal(t, "Monthly food visit limit reached (2/2)", v.Errors[0])
	require.NotNil(t, v.Checks[0].Count)
	assert.Equal(t, 2, *v.Checks[0].Count)

	var pe *apperr.PolicyError
	require.ErrorAs(t, v.Err(), &pe)
	assert.Equal(t, v.Errors, pe.Reasons)
}

func TestCheckInvalidatingFlipsVerdict(t *testing.T) {
	f := newEngineFixture(t)
	c := f.customer(t, "Maria")
	p := policyWith(t, map[string]string{"visits_per_month_limit": "2", "min_days_between_visits": "-1"})

	f.visit(t, c, model.VisitFood, ref.AddDate(0, 0, -10))
	second := f.visit(t, c, model.VisitFood, ref.AddDate(0, 0, -9))

	require.False(t, f.engine.Check(context.Background(), p, c, model.VisitFood, ref).Eligible)

	_, err := f.visits.Invalidate(context.Background(), second, c, "wrong customer", f.clerk, ref)
	require.NoError(t, err)

	v := f.engine.Check(context.Background(), p, c, model.VisitFood, ref)
	assert.True(t, v.Eligible)
	assert.Empty(t, v.Errors)
	assert.NoError(t, v.Err())
}

func TestCheckHouseholdMoneyTotal(t *testing.T) {
	f := newEngineFixture(t)
	a := f.customer(t, "A", "Jane Doe")
	b := f.customer(t, "B", "Jane Doe")
	p := policyWith(t, map[string]string{"money_distribution_limit": "3"})

	for _, id := range []int64{a, b} {
		f.visit(t, id, model.VisitMoney, ref.AddDate(-1, 0, 0))
		f.visit(t, id, model.VisitMoney, ref.AddDate(0, -2, 0))
	}

	v := f.engine.Check(context.Background(), p, a, model.VisitMoney, ref)
	assert.False(t, v.Eligible)
	assert.Equal(t, []string{"Money assistance limit reached (4/3)"}, v.Errors)
	assert.Equal(t, []int64{a, b}, v.HouseholdIDs)
}

func TestCheckFoodIsSelfScoped(t *testing.T) {
	f := newEngineFixture(t)
	a := f.customer(t, "A", "Jane Doe")
	b := f.customer(t, "B", "Jane Doe")
	p := policyWith(t, map[string]string{"visits_per_month_limit": "1", "min_days_between_visits": "-1"})

	f.visit(t, b, model.VisitFood, ref.AddDate(0, 0, -1))

	v := f.engine.Check(context.Background(), p, a, model.VisitFood, ref)
	assert.True(t, v.Eligible)
	assert.Equal(t, []int64{a}, v.HouseholdIDs)
}

func TestCheckIntervalBoundaryIsInclusive(t *testing.T) {
	f := newEngineFixture(t)
	c := f.customer(t, "Maria")
	p := policyWith(t, map[string]string{"min_days_between_visits": "14"})

	f.visit(t, c, model.VisitFood, ref.AddDate(0, 0, -14))

	v := f.engine.Check(context.Background(), p, c, model.VisitFood, ref)
	assert.True(t, v.Eligible, "errors: %v", v.Errors)
	interval := v.Checks[len(v.Checks)-1]
	require.NotNil(t, interval.DaysSince)
	assert.Equal(t, 14, *interval.DaysSince)
}

func TestCheckIntervalTooSoon(t *testing.T) {
	f := newEngineFixture(t)
	c := f.customer(t, "Maria")
	p := policyWith(t, map[string]string{"min_days_between_visits": "14"})

	f.visit(t, c, model.VisitFood, ref.AddDate(0, 0, -13))

	v := f.engine.Check(context.Background(), p, c, model.VisitFood, ref)
	assert.False(t, v.Eligible)
	assert.Equal(t, []string{"Minimum 14 days required between visits (last visit was 13 days ago)"}, v.Errors)
}

func TestCheckRunsEveryRule(t *testing.T) {
	f := newEngineFixture(t)
	c := f.customer(t, "Maria")
	p := policyWith(t, map[string]string{
		"voucher_limit_month":      "1",
		"voucher_limit_year":       "1",
		"voucher_min_days_between": "30",
	})

	f.visit(t, c, model.VisitVoucher, ref.AddDate(0, 0, -2))

	v := f.engine.Check(context.Background(), p, c, model.VisitVoucher, ref)
	assert.False(t, v.Eligible)
	assert.Equal(t, []string{
		"Monthly voucher limit reached (1/1)",
		"Yearly voucher limit reached (1/1)",
		"Minimum 30 days required between voucher visits (last visit was 2 days ago)",
	}, v.Errors)
	assert.Len(t, v.Checks, 3)
}

func TestCheckDisabledWithNoVisits(t *testing.T) {
	f := newEngineFixture(t)
	c := f.customer(t, "Maria")
	p := policyWith(t, map[string]string{"visits_per_month_limit": "0"})

	v := f.engine.Check(context.Background(), p, c, model.VisitFood, ref)
	assert.False(t, v.Eligible)
	assert.Equal(t, []string{"Monthly food visit limit reached (0/disabled)"}, v.Errors)
}

func TestCheckUnlimitedReportsInfinity(t *testing.T) {
	f := newEngineFixture(t)
	c := f.customer(t, "Maria")

	v := f.engine.Check(context.Background(), policyWith(t, map[string]string{}), c, model.VisitVoucher, ref)
	assert.True(t, v.Eligible)
	assert.Equal(t, "∞", v.Checks[0].Limit)
	assert.Nil(t, v.Checks[0].Count)
}

func TestCheckRejectsBadInput(t *testing.T) {
	f := newEngineFixture(t)
	p := policy.Default()

	v := f.engine.Check(context.Background(), p, 0, model.VisitFood, ref)
	assert.False(t, v.Eligible)
	assert.Equal(t, []string{"Invalid customer ID"}, v.Errors)
	assert.ErrorIs(t, v.Err(), apperr.ErrValidation)

	v = f.engine.Check(context.Background(), p, 999, model.VisitFood, ref)
	assert.False(t, v.Eligible)
	assert.Equal(t, []string{"Customer not found"}, v.Errors)
	assert.ErrorIs(t, v.Err(), apperr.ErrNotFound)

	c := f.customer(t, "Maria")
	v = f.engine.Check(context.Background(), p, c, model.VisitType("laundry"), ref)
	assert.False(t, v.Eligible)
	assert.ErrorIs(t, v.Err(), apperr.ErrValidation)
}

type staticCustomers struct{}

func (staticCustomers) GetByID(_ context.Context, id int64) (*model.Customer, error) {
	return &model.Customer{ID: id}, nil
}

type selfResolver struct{}

func (selfResolver) Resolve(_ context.Context, id int64, _ policy.HouseholdMode) ([]int64, error) {
	return []int64{id}, nil
}

func TestCheckFailsClosedOnReadError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := eligibility.NewEngine(staticCustomers{}, selfResolver{}, &fakeLedger{err: errors.New("disk I/O error")}, logger)

	v := engine.Check(context.Background(), policy.Default(), 7, model.VisitFood, ref)
	assert.False(t, v.Eligible)
	assert.Equal(t, []string{"Error checking eligibility"}, v.Errors)
	require.Error(t, v.Err())
	assert.False(t, apperr.IsClientError(v.Err()))
}

func TestCheckDefaultsRefToNow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := &fakeLedger{}
	engine := eligibility.NewEngine(staticCustomers{}, selfResolver{}, ledger, logger)
	engine.SetClock(func() time.Time { return ref })

	p := policyWith(t, map[string]string{})
	v := engine.Check(context.Background(), p, 7, model.VisitFood, time.Time{})
	assert.True(t, v.Eligible)
	// The yearly rule runs last.
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), ledger.gotFrom.UTC())
}
