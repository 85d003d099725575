// Package policy turns the stored settings into an explicit Policy value
// that is passed to the eligibility engine on every call.
package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/model"
)

// Setting keys.
const (
	KeyVisitsPerMonth    = "visits_per_month_limit"
	KeyVisitsPerYear     = "visits_per_year_limit"
	KeyMinDaysBetween    = "min_days_between_visits"
	KeyMoneyLimit        = "money_distribution_limit"
	KeyMoneyLimitMonth   = "money_distribution_limit_month"
	KeyMoneyLimitYear    = "money_distribution_limit_year"
	KeyMoneyMinDays      = "money_min_days_between"
	KeyVoucherLimitMonth = "voucher_limit_month"
	KeyVoucherLimitYear  = "voucher_limit_year"
	KeyVoucherMinDays    = "voucher_min_days_between"
	KeyVoucherPrefix     = "voucher_prefix"
	KeyHouseholdMode     = "household_mode"
	KeyTimezone          = "timezone"
)

// Defaults used when a key is not stored.
const (
	DefaultVisitsPerMonth    = 2
	DefaultVisitsPerYear     = 12
	DefaultMinDaysBetween    = 14
	DefaultMoneyLimit        = 3
	DefaultMoneyLimitMonth   = -1
	DefaultMoneyLimitYear    = -1
	DefaultMoneyMinDays      = -1
	DefaultVoucherLimitMonth = -1
	DefaultVoucherLimitYear  = -1
	DefaultVoucherMinDays    = -1
	DefaultVoucherPrefix     = "VCH-"
	DefaultHouseholdMode     = OneHop
	DefaultTimezone          = "America/Boise"
)

// Rule is one limit check. Message takes the count and the rendered limit.
type Rule struct {
	Key     string
	Period  Period
	Limit   Limit
	Message string
}

// RuleSet is everything checked for one visit type.
type RuleSet struct {
	Scope  Scope
	Limits []Rule

	MinDaysKey string
	MinDays    Limit
	// IntervalMessage takes the minimum and the elapsed days.
	IntervalMessage string
}

type Policy struct {
	Rules         map[model.VisitType]RuleSet
	VoucherPrefix string
	HouseholdMode HouseholdMode
	Location      *time.Location
}

// RuleSet returns the rules for t. ok is false for an unknown type.
func (p Policy) RuleSet(t model.VisitType) (RuleSet, bool) {
	rs, ok := p.Rules[t]
	return rs, ok
}

func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Default returns the policy used when no settings are stored.
func Default() Policy {
	return Policy{
		Rules: map[model.VisitType]RuleSet{
			model.VisitFood: {
				Scope: ScopeSelf,
				Limits: []Rule{
					{KeyVisitsPerMonth, PeriodMonth, ParseLimit(DefaultVisitsPerMonth), "Monthly food visit limit reached (%d/%s)"},
					{KeyVisitsPerYear, PeriodYear, ParseLimit(DefaultVisitsPerYear), "Yearly food visit limit reached (%d/%s)"},
				},
				MinDaysKey:      KeyMinDaysBetween,
				MinDays:         ParseLimit(DefaultMinDaysBetween),
				IntervalMessage: "Minimum %d days required between visits (last visit was %d days ago)",
			},
			model.VisitMoney: {
				Scope: ScopeHousehold,
				Limits: []Rule{
					{KeyMoneyLimit, PeriodTotal, ParseLimit(DefaultMoneyLimit), "Money assistance limit reached (%d/%s)"},
					{KeyMoneyLimitMonth, PeriodMonth, ParseLimit(DefaultMoneyLimitMonth), "Monthly money assistance limit reached (%d/%s)"},
					{KeyMoneyLimitYear, PeriodYear, ParseLimit(DefaultMoneyLimitYear), "Yearly money assistance limit reached (%d/%s)"},
				},
				MinDaysKey:      KeyMoneyMinDays,
				MinDays:         ParseLimit(DefaultMoneyMinDays),
				IntervalMessage: "Minimum %d days required between money visits (last visit was %d days ago)",
			},
			model.VisitVoucher: {
				Scope: ScopeSelf,
				Limits: []Rule{
					{KeyVoucherLimitMonth, PeriodMonth, ParseLimit(DefaultVoucherLimitMonth), "Monthly voucher limit reached (%d/%s)"},
					{KeyVoucherLimitYear, PeriodYear, ParseLimit(DefaultVoucherLimitYear), "Yearly voucher limit reached (%d/%s)"},
				},
				MinDaysKey:      KeyVoucherMinDays,
				MinDays:         ParseLimit(DefaultVoucherMinDays),
				IntervalMessage: "Minimum %d days required between voucher visits (last visit was %d days ago)",
			},
		},
		VoucherPrefix: DefaultVoucherPrefix,
		HouseholdMode: DefaultHouseholdMode,
		Location:      defaultLocation(),
	}
}

// SettingsReader is the read side of the settings store.
type SettingsReader interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

// Load overlays the stored settings on Default. A malformed value is a
// validation error; callers evaluating eligibility treat it as not eligible.
func Load(ctx context.Context, settings SettingsReader) (Policy, error) {
	values, err := settings.GetAll(ctx)
	if err != nil {
		return Policy{}, fmt.Errorf("load settings: %w", err)
	}
	return FromMap(values)
}

// FromMap builds a policy from raw key/value settings.
func FromMap(values map[string]string) (Policy, error) {
	p := Default()

	for t, rs := range p.Rules {
		limits := make([]Rule, len(rs.Limits))
		for i, r := range rs.Limits {
			if raw, ok := values[r.Key]; ok {
				l, err := parseSetting(r.Key, raw)
				if err != nil {
					return Policy{}, err
				}
				r.Limit = l
			}
			limits[i] = r
		}
		rs.Limits = limits
		if raw, ok := values[rs.MinDaysKey]; ok {
			l, err := parseSetting(rs.MinDaysKey, raw)
			if err != nil {
				return Policy{}, err
			}
			rs.MinDays = l
		}
		p.Rules[t] = rs
	}

	if v := strings.TrimSpace(values[KeyVoucherPrefix]); v != "" {
		p.VoucherPrefix = v
	}

	if v := strings.TrimSpace(values[KeyHouseholdMode]); v != "" {
		switch HouseholdMode(v) {
		case OneHop, Transitive:
			p.HouseholdMode = HouseholdMode(v)
		default:
			return Policy{}, apperr.Invalid(KeyHouseholdMode, fmt.Sprintf("unknown household mode %q", v))
		}
	}

	if v := strings.TrimSpace(values[KeyTimezone]); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return Policy{}, apperr.Invalid(KeyTimezone, fmt.Sprintf("unknown timezone %q", v))
		}
		p.Location = loc
	}

	return p, nil
}

func parseSetting(key, raw string) (Limit, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Limit{}, apperr.Invalid(key, fmt.Sprintf("%q is not an integer", raw))
	}
	return ParseLimit(n), nil
}

// DefaultSettings returns the stored form of Default, for seeding a new
// settings table.
func DefaultSettings() map[string]string {
	p := Default()
	out := map[string]string{
		KeyVoucherPrefix: p.VoucherPrefix,
		KeyHouseholdMode: string(p.HouseholdMode),
		KeyTimezone:      DefaultTimezone,
	}
	for _, rs := range p.Rules {
		for _, r := range rs.Limits {
			out[r.Key] = strconv.Itoa(r.Limit.Raw())
		}
		out[rs.MinDaysKey] = strconv.Itoa(rs.MinDays.Raw())
	}
	return out
}
