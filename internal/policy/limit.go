package policy

import "strconv"

// LimitKind tags the three meanings a stored limit integer can have.
type LimitKind int

const (
	// KindUnlimited is stored as any negative integer.
	KindUnlimited LimitKind = iota
	// KindDisabled is stored as 0 and never allows usage, even at count 0.
	KindDisabled
	// KindCapped is a positive hard cap.
	KindCapped
)

func (k LimitKind) String() string {
	switch k {
	case KindUnlimited:
		return "unlimited"
	case KindDisabled:
		return "disabled"
	case KindCapped:
		return "capped"
	}
	return "unknown"
}

// Limit is a parsed limit setting. The zero value is Unlimited.
type Limit struct {
	kind LimitKind
	n    int
}

func Unlimited() Limit { return Limit{kind: KindUnlimited} }

func Disabled() Limit { return Limit{kind: KindDisabled} }

// Capped returns a cap of n. Non-positive n follows ParseLimit.
func Capped(n int) Limit {
	if n <= 0 {
		return ParseLimit(n)
	}
	return Limit{kind: KindCapped, n: n}
}

// ParseLimit converts the stored integer form: negative is unlimited, zero is
// disabled, positive is a cap.
func ParseLimit(v int) Limit {
	switch {
	case v < 0:
		return Unlimited()
	case v == 0:
		return Disabled()
	default:
		return Limit{kind: KindCapped, n: v}
	}
}

func (l Limit) Kind() LimitKind { return l.kind }

// N is the cap. It is 0 unless Kind is KindCapped.
func (l Limit) N() int { return l.n }

// Raw returns the stored integer form.
func (l Limit) Raw() int {
	switch l.kind {
	case KindDisabled:
		return 0
	case KindCapped:
		return l.n
	}
	return -1
}

// String renders the limit for messages: "∞", "disabled" or the cap.
func (l Limit) String() string {
	switch l.kind {
	case KindDisabled:
		return "disabled"
	case KindCapped:
		return strconv.Itoa(l.n)
	}
	return "∞"
}
