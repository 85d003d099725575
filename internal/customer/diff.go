package customer

import (
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/intake/internal/model"
)

// change is one customer_audit row.
type change struct {
	field string
	old   *string
	new   *string
}

func str(s string) *string { return &s }

func fieldChanges(old *model.Customer, in model.CustomerInput) []change {
	fields := []struct {
		name     string
		old, new string
	}{
		{"name", old.Name, in.Name},
		{"address", old.Address, in.Address},
		{"city", old.City, in.City},
		{"state", old.State, in.State},
		{"zip", old.Zip, in.Zip},
		{"phone", old.Phone, in.Phone},
		{"description_of_need", old.DescriptionOfNeed, in.DescriptionOfNeed},
		{"applied_before", old.AppliedBefore, in.AppliedBefore},
	}
	var out []change
	for _, f := range fields {
		if f.old != f.new {
			out = append(out, change{f.name, str(f.old), str(f.new)})
		}
	}
	if in.SignupDate != nil {
		before := old.SignupDate.UTC().Format(time.DateTime)
		after := in.SignupDate.UTC().Truncate(time.Second).Format(time.DateTime)
		if before != after {
			out = append(out, change{"signup_date", str(before), str(after)})
		}
	}
	return out
}

func memberKey(m model.HouseholdMember) string {
	return strings.ToLower(strings.TrimSpace(m.Name)) + "|" + m.Birthdate
}

func memberInfo(m model.HouseholdMember) string {
	return m.Name + " (" + m.Relationship + ", " + displayDate(m.Birthdate) + ")"
}

func displayDate(d string) string {
	t, err := time.Parse(time.DateOnly, d)
	if err != nil {
		return d
	}
	return t.Format("Jan 02, 2006")
}

const (
	markAdded   = "[ADDED]"
	markRemoved = "[REMOVED]"
)

// memberChanges diffs two member lists keyed by lower-cased name and
// birthdate. Output order is removed, added, then relationship edits, each
// sorted by key.
func memberChanges(old, next []model.HouseholdMember) []change {
	before := map[string]model.HouseholdMember{}
	for _, m := range old {
		before[memberKey(m)] = m
	}
	after := map[string]model.HouseholdMember{}
	for _, m := range next {
		after[memberKey(m)] = m
	}

	var removed, added, edited []string
	for k := range before {
		if _, ok := after[k]; !ok {
			removed = append(removed, k)
		} else if before[k].Relationship != after[k].Relationship {
			edited = append(edited, k)
		}
	}
	for k := range after {
		if _, ok := before[k]; !ok {
			added = append(added, k)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)
	sort.Strings(edited)

	var out []change
	for _, k := range removed {
		out = append(out, change{"household_member", str(memberInfo(before[k])), str(markRemoved)})
	}
	for _, k := range added {
		out = append(out, change{"household_member", str(markAdded), str(memberInfo(after[k]))})
	}
	for _, k := range edited {
		o, n := before[k], after[k]
		out = append(out, change{"household_member",
			str(o.Name + " - Relationship: " + o.Relationship),
			str(n.Name + " - Relationship: " + n.Relationship),
		})
	}
	return out
}
