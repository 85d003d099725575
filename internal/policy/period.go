package policy

import "time"

// Period is the counting window of a limit rule.
type Period string

const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodTotal Period = "total"
)

// Window returns the half-open calendar interval [from, to) containing ref,
// computed in loc. For PeriodTotal bounded is false and from/to are zero.
func (p Period) Window(ref time.Time, loc *time.Location) (from, to time.Time, bounded bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := ref.In(loc)
	switch p {
	case PeriodMonth:
		from = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0), true
	case PeriodYear:
		from = time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(1, 0, 0), true
	}
	return time.Time{}, time.Time{}, false
}

// Scope selects which recipients a rule counts visits for.
type Scope int

const (
	ScopeSelf Scope = iota
	ScopeHousehold
)

func (s Scope) String() string {
	if s == ScopeHousehold {
		return "household"
	}
	return "self"
}

// HouseholdMode controls how far household resolution follows shared member
// names.
type HouseholdMode string

const (
	// OneHop links only customers that share a member name with the subject.
	OneHop HouseholdMode = "one_hop"
	// Transitive follows shared names until the group stops growing.
	Transitive HouseholdMode = "transitive"
)
