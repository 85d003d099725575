// Package visits records food and money visits. Recording evaluates
// eligibility and inserts the visit under one set of customer locks and one
// transaction, so concurrent submissions cannot both pass the same limit.
package visits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/eligibility"
	"github.com/dukerupert/intake/internal/household"
	"github.com/dukerupert/intake/internal/lock"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/store"
)

// maxScopeAttempts bounds how often Commit retries when the household changes
// between locking and the in-transaction check.
const maxScopeAttempts = 3

type Service struct {
	db       *sql.DB
	engine   *eligibility.Engine
	resolver *household.Resolver
	locker   lock.Locker
	audit    *audit.Logger
	settings policy.SettingsReader
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(db *sql.DB, engine *eligibility.Engine, locker lock.Locker, auditLog *audit.Logger, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		engine:   engine,
		resolver: household.NewResolver(store.NewHouseholdStore(db)),
		locker:   locker,
		audit:    auditLog,
		settings: store.NewSettingsStore(db),
		logger:   logger.With("component", "visits"),
		now:      time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.engine.SetClock(now)
}

// Policy loads the current policy from the settings table.
func (s *Service) Policy(ctx context.Context) (policy.Policy, error) {
	p, err := policy.Load(ctx, s.settings)
	if err != nil {
		// A bad stored value is a server-side problem, not a client one.
		return policy.Policy{}, fmt.Errorf("load policy: %v", err)
	}
	return p, nil
}

// Check answers whether customerID may receive a visit of type t right now.
// It takes no locks and writes nothing; a positive answer is not a
// reservation.
func (s *Service) Check(ctx context.Context, customerID int64, t model.VisitType) eligibility.Verdict {
	p, err := s.Policy(ctx)
	if err != nil {
		s.logger.Error("eligibility check failed", "customer_id", customerID, "visit_type", t, "error", err)
		return eligibility.Unavailable(err)
	}
	return s.engine.Check(ctx, p, customerID, t, s.now())
}

// Household returns the customers whose visits count together with
// customerID's under the current household mode.
func (s *Service) Household(ctx context.Context, customerID int64) ([]int64, error) {
	p, err := s.Policy(ctx)
	if err != nil {
		return nil, err
	}
	c, err := store.NewCustomerStore(s.db).GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("customer %d: %w", customerID, apperr.ErrNotFound)
	}
	return s.resolver.Resolve(ctx, customerID, p.HouseholdMode)
}

// WriteFunc performs the writes of an evaluate-and-commit call inside tx.
// Audit entries go through pending so they commit with the writes.
type WriteFunc func(ctx context.Context, tx *sql.Tx, p policy.Policy, pending *audit.Pending) error

// Commit locks the customers counted by t's rules, re-runs every eligibility
// check inside a transaction and, only if the customer is eligible, runs
// write and commits. Audit entries are published after commit.
func (s *Service) Commit(ctx context.Context, customerID int64, t model.VisitType, ref time.Time, write WriteFunc) (eligibility.Verdict, error) {
	p, err := s.Policy(ctx)
	if err != nil {
		return eligibility.Unavailable(err), err
	}
	rules, ok := p.RuleSet(t)
	if !ok {
		return eligibility.Verdict{}, apperr.Invalid("visit_type", fmt.Sprintf("unknown visit type %q", t))
	}

	scope := []int64{customerID}
	if rules.Scope == policy.ScopeHousehold && customerID > 0 {
		scope, err = s.resolver.Resolve(ctx, customerID, p.HouseholdMode)
		if err != nil {
			return eligibility.Unavailable(err), fmt.Errorf("resolve household: %w", err)
		}
	}

	for attempt := 0; attempt < maxScopeAttempts; attempt++ {
		v, retry, err := s.commitOnce(ctx, p, scope, customerID, t, ref, write)
		if !retry {
			return v, err
		}
		s.logger.Info("household changed during commit, retrying", "customer_id", customerID, "attempt", attempt+1)
		scope = union(scope, v.HouseholdIDs)
	}
	return eligibility.Verdict{}, fmt.Errorf("household of customer %d kept changing: %w", customerID, apperr.ErrConflict)
}

func (s *Service) commitOnce(ctx context.Context, p policy.Policy, scope []int64, customerID int64, t model.VisitType, ref time.Time, write WriteFunc) (eligibility.Verdict, bool, error) {
	unlock, err := s.locker.Lock(ctx, scope)
	if err != nil {
		return eligibility.Verdict{}, false, fmt.Errorf("lock customers: %w", err)
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eligibility.Verdict{}, false, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	engine := s.engine.With(
		store.NewCustomerStore(tx),
		household.NewResolver(store.NewHouseholdStore(tx)),
		store.NewVisitStore(tx),
	)
	v := engine.Check(ctx, p, customerID, t, ref)
	if v.Eligible && !covers(scope, v.HouseholdIDs) {
		return v, true, nil
	}
	if !v.Eligible {
		return v, false, v.Err()
	}

	pending := s.audit.Begin(tx)
	if err := write(ctx, tx, p, pending); err != nil {
		if apperr.IsClientError(err) || errors.Is(err, apperr.ErrPersistence) {
			return v, false, err
		}
		return v, false, apperr.Persistence("write", err)
	}
	if err := tx.Commit(); err != nil {
		return v, false, apperr.Persistence("commit", err)
	}
	pending.Publish()
	return v, false, nil
}

func covers(locked, ids []int64) bool {
	for _, id := range ids {
		if !slices.Contains(locked, id) {
			return false
		}
	}
	return true
}

func union(a, b []int64) []int64 {
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// RecordInput describes a food or money visit. VisitDate defaults to now.
type RecordInput struct {
	CustomerID int64
	Type       model.VisitType
	VisitDate  *time.Time
	Amount     *decimal.Decimal
	Notes      string
}

func (in RecordInput) validate() error {
	switch in.Type {
	case "":
		return apperr.Invalid("visit_type", "Visit type is required")
	case model.VisitFood:
	case model.VisitMoney:
		if in.Amount == nil {
			return apperr.Invalid("amount", "Amount is required for money visits")
		}
		if !in.Amount.IsPositive() {
			return apperr.Invalid("amount", "Amount must be greater than 0")
		}
	case model.VisitVoucher:
		return apperr.Invalid("visit_type", "Voucher visits are recorded by issuing a voucher")
	default:
		return apperr.Invalid("visit_type", fmt.Sprintf("unknown visit type %q", in.Type))
	}
	if in.CustomerID <= 0 {
		return apperr.Invalid("customer_id", "Invalid customer ID")
	}
	return nil
}

// Record checks eligibility and inserts the visit atomically. A failed rule
// returns *apperr.PolicyError listing every failing rule.
func (s *Service) Record(ctx context.Context, actorID int64, in RecordInput) (*model.Visit, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ref := s.now()
	if in.VisitDate != nil {
		ref = *in.VisitDate
	}
	amount := in.Amount
	if in.Type != model.VisitMoney {
		amount = nil
	}

	var visit *model.Visit
	_, err := s.Commit(ctx, in.CustomerID, in.Type, ref, func(ctx context.Context, tx *sql.Tx, _ policy.Policy, pending *audit.Pending) error {
		var err error
		visit, err = store.NewVisitStore(tx).Insert(ctx, model.VisitInput{
			CustomerID: in.CustomerID,
			VisitDate:  ref,
			Type:       in.Type,
			Amount:     amount,
			Notes:      in.Notes,
		})
		if err != nil {
			return err
		}
		details := fmt.Sprintf("Recorded %s visit for customer #%d", in.Type, in.CustomerID)
		if amount != nil {
			details += " ($" + amount.StringFixed(2) + ")"
		}
		return pending.Record(ctx, audit.Entry{
			ActorID:    audit.Actor(actorID),
			Action:     audit.ActionVisitCreate,
			TargetType: audit.TargetVisit,
			TargetID:   audit.Target(visit.ID),
			Details:    details,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("visit recorded", "visit_id", visit.ID, "customer_id", in.CustomerID, "visit_type", in.Type)
	return visit, nil
}

// Invalidate marks a visit invalid so it no longer counts toward any limit.
// It is one-way; invalidating an invalid visit is a conflict.
func (s *Service) Invalidate(ctx context.Context, actorID, visitID, customerID int64, reason string) (*model.Visit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "A reason is required to invalidate a visit")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	visits := store.NewVisitStore(tx)
	v, err := visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, apperr.Persistence("invalidate visit", err)
	}
	if v == nil || v.CustomerID != customerID {
		return nil, fmt.Errorf("visit %d: %w", visitID, apperr.ErrNotFound)
	}
	if v.IsInvalid {
		return nil, fmt.Errorf("visit %d is already invalid: %w", visitID, apperr.ErrConflict)
	}

	at := s.now()
	ok, err := visits.Invalidate(ctx, visitID, customerID, reason, actorID, at)
	if err != nil {
		return nil, apperr.Persistence("invalidate visit", err)
	}
	if !ok {
		return nil, fmt.Errorf("visit %d is already invalid: %w", visitID, apperr.ErrConflict)
	}

	pending := s.audit.Begin(tx)
	if err := pending.Record(ctx, audit.Entry{
		ActorID:    audit.Actor(actorID),
		Action:     audit.ActionVisitInvalidate,
		TargetType: audit.TargetVisit,
		TargetID:   audit.Target(visitID),
		Details:    fmt.Sprintf("Invalidated %s visit for customer #%d: %s", v.Type, customerID, reason),
		CreatedAt:  at,
	}); err != nil {
		return nil, apperr.Persistence("invalidate visit", err)
	}

	updated, err := visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, apperr.Persistence("invalidate visit", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence("commit", err)
	}
	pending.Publish()
	s.logger.Info("visit invalidated", "visit_id", visitID, "customer_id", customerID)
	return updated, nil
}
