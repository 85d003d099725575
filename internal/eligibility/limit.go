package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
)

// Ledger is the read side of the visit ledger. Both methods ignore
// invalidated visits.
type Ledger interface {
	Count(ctx context.Context, customerIDs []int64, t model.VisitType, from, to time.Time, bounded bool) (int, error)
	LastBefore(ctx context.Context, customerIDs []int64, t model.VisitType, ref time.Time) (*time.Time, error)
}

// LimitResult is the outcome of one period limit. Count is nil when the
// limit is unlimited and the ledger was not consulted.
type LimitResult struct {
	Period  policy.Period
	Limit   policy.Limit
	Count   *int
	Allowed bool
}

// EvaluateLimit counts qualifying visits in the period containing ref and
// compares them with limit. A disabled limit never allows, even at count 0.
func EvaluateLimit(ctx context.Context, ledger Ledger, customerIDs []int64, t model.VisitType, period policy.Period, limit policy.Limit, ref time.Time, loc *time.Location) (LimitResult, error) {
	res := LimitResult{Period: period, Limit: limit}

	switch limit.Kind() {
	case policy.KindUnlimited:
		res.Allowed = true
		return res, nil
	case policy.KindDisabled, policy.KindCapped:
		from, to, bounded := period.Window(ref, loc)
		n, err := ledger.Count(ctx, customerIDs, t, from, to, bounded)
		if err != nil {
			return LimitResult{}, fmt.Errorf("count %s visits per %s: %w", t, period, err)
		}
		res.Count = &n
		res.Allowed = limit.Kind() == policy.KindCapped && n < limit.N()
		return res, nil
	default:
		return LimitResult{}, fmt.Errorf("unknown limit kind %d", limit.Kind())
	}
}

// IntervalResult is the outcome of a minimum-interval check. DaysSince is nil
// when no earlier qualifying visit was looked up or found.
type IntervalResult struct {
	MinDays   policy.Limit
	DaysSince *int
	Allowed   bool
}

// CheckInterval requires at least minDays whole days between the latest
// qualifying visit strictly before ref and ref. Unlimited and disabled both
// skip the check.
func CheckInterval(ctx context.Context, ledger Ledger, customerIDs []int64, t model.VisitType, minDays policy.Limit, ref time.Time) (IntervalResult, error) {
	res := IntervalResult{MinDays: minDays}

	switch minDays.Kind() {
	case policy.KindUnlimited, policy.KindDisabled:
		res.Allowed = true
		return res, nil
	case policy.KindCapped:
		last, err := ledger.LastBefore(ctx, customerIDs, t, ref)
		if err != nil {
			return IntervalResult{}, fmt.Errorf("last %s visit: %w", t, err)
		}
		if last == nil {
			res.Allowed = true
			return res, nil
		}
		days := DaysBetween(*last, ref)
		res.DaysSince = &days
		res.Allowed = days >= minDays.N()
		return res, nil
	default:
		return IntervalResult{}, fmt.Errorf("unknown limit kind %d", minDays.Kind())
	}
}

// DaysBetween is the number of whole 24-hour periods from a to b.
func DaysBetween(a, b time.Time) int {
	secs := b.Unix() - a.Unix()
	days := secs / 86400
	if secs < 0 && secs%86400 != 0 {
		days--
	}
	return int(days)
}
