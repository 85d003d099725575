// Package eligibility decides whether a customer may receive a visit of a
// given type, given an explicit policy and the visit ledger.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
)

const (
	msgInvalidCustomer  = "Invalid customer ID"
	msgInvalidVisitType = "Invalid visit type"
	msgNotFound         = "Customer not found"
	msgInternal         = "Error checking eligibility"
)

type CustomerLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
}

type HouseholdResolver interface {
	Resolve(ctx context.Context, customerID int64, mode policy.HouseholdMode) ([]int64, error)
}

// CheckResult describes one rule evaluated for a verdict.
type CheckResult struct {
	Rule      string `json:"rule"`
	Allowed   bool   `json:"allowed"`
	Count     *int   `json:"count,omitempty"`
	Limit     string `json:"limit,omitempty"`
	DaysSince *int   `json:"days_since,omitempty"`
	MinDays   *int   `json:"min_days,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Verdict is the aggregated answer for one customer and visit type.
type Verdict struct {
	Eligible     bool          `json:"eligible"`
	Errors       []string      `json:"errors"`
	Checks       []CheckResult `json:"checks,omitempty"`
	HouseholdIDs []int64       `json:"household_ids,omitempty"`

	err error
}

// Err classifies a negative verdict: validation for bad input, not found for
// an unknown customer, a plain error for internal failures and
// *apperr.PolicyError when rules failed. It is nil when eligible.
func (v Verdict) Err() error {
	if v.Eligible {
		return nil
	}
	if v.err != nil {
		return v.err
	}
	return &apperr.PolicyError{Reasons: v.Errors}
}

// Unavailable is the fail-closed verdict used when eligibility could not be
// evaluated at all, e.g. because the settings could not be read.
func Unavailable(err error) Verdict {
	return reject(msgInternal, fmt.Errorf("check eligibility: %w", err))
}

func reject(msg string, err error) Verdict {
	return Verdict{Errors: []string{msg}, err: err}
}

type Engine struct {
	customers CustomerLookup
	resolver  HouseholdResolver
	ledger    Ledger
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(customers CustomerLookup, resolver HouseholdResolver, ledger Ledger, logger *slog.Logger) *Engine {
	return &Engine{
		customers: customers,
		resolver:  resolver,
		ledger:    ledger,
		logger:    logger.With("component", "eligibility"),
		now:       time.Now,
	}
}

// With returns a copy of the engine reading through other sources, such as
// stores bound to an open transaction.
func (e *Engine) With(customers CustomerLookup, resolver HouseholdResolver, ledger Ledger) *Engine {
	c := *e
	c.customers, c.resolver, c.ledger = customers, resolver, ledger
	return &c
}

// SetClock replaces the time source used when Check is given a zero ref.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Check runs every rule configured for visitType and collects one message
// per failing rule. It never short-circuits on a failed rule. Any read error
// makes the verdict not eligible.
func (e *Engine) Check(ctx context.Context, p policy.Policy, customerID int64, visitType model.VisitType, ref time.Time) Verdict {
	if customerID <= 0 {
		return reject(msgInvalidCustomer, apperr.Invalid("customer_id", msgInvalidCustomer))
	}
	rules, ok := p.RuleSet(visitType)
	if !ok {
		return reject(msgInvalidVisitType, apperr.Invalid("visit_type", fmt.Sprintf("unknown visit type %q", visitType)))
	}
	if ref.IsZero() {
		ref = e.now()
	}

	customer, err := e.customers.GetByID(ctx, customerID)
	if err != nil {
		return e.fail(customerID, visitType, err)
	}
	if customer == nil {
		return reject(msgNotFound, fmt.Errorf("customer %d: %w", customerID, apperr.ErrNotFound))
	}

	ids := []int64{customerID}
	if rules.Scope == policy.ScopeHousehold {
		ids, err = e.resolver.Resolve(ctx, customerID, p.HouseholdMode)
		if err != nil {
			return e.fail(customerID, visitType, err)
		}
	}

	v := Verdict{Eligible: true, Errors: []string{}, HouseholdIDs: ids}

	for _, rule := range rules.Limits {
		res, err := EvaluateLimit(ctx, e.ledger, ids, visitType, rule.Period, rule.Limit, ref, p.Location)
		if err != nil {
			return e.fail(customerID, visitType, err)
		}
		check := CheckResult{Rule: rule.Key, Allowed: res.Allowed, Count: res.Count, Limit: rule.Limit.String()}
		if !res.Allowed {
			count := 0
			if res.Count != nil {
				count = *res.Count
			}
			check.Message = fmt.Sprintf(rule.Message, count, rule.Limit.String())
			v.Eligible = false
			v.Errors = append(v.Errors, check.Message)
		}
		v.Checks = append(v.Checks, check)
	}

	res, err := CheckInterval(ctx, e.ledger, ids, visitType, rules.MinDays, ref)
	if err != nil {
		return e.fail(customerID, visitType, err)
	}
	check := CheckResult{Rule: rules.MinDaysKey, Allowed: res.Allowed, DaysSince: res.DaysSince}
	if rules.MinDays.Kind() == policy.KindCapped {
		n := rules.MinDays.N()
		check.MinDays = &n
	}
	if !res.Allowed {
		check.Message = fmt.Sprintf(rules.IntervalMessage, rules.MinDays.N(), *res.DaysSince)
		v.Eligible = false
		v.Errors = append(v.Errors, check.Message)
	}
	v.Checks = append(v.Checks, check)

	if !v.Eligible {
		e.logger.Debug("not eligible", "customer_id", customerID, "visit_type", visitType, "reasons", v.Errors)
	}
	return v
}

func (e *Engine) fail(customerID int64, visitType model.VisitType, err error) Verdict {
	e.logger.Error("eligibility check failed", "customer_id", customerID, "visit_type", visitType, "error", err)
	return Unavailable(err)
}
