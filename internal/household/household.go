// Package household resolves the set of customers that share household
// members with a given customer.
package household

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukerupert/intake/internal/policy"
)

// MemberIndex is the read side of the household member table.
type MemberIndex interface {
	MemberNames(ctx context.Context, customerID int64) ([]string, error)
	CustomersWithMemberNames(ctx context.Context, names []string) ([]int64, error)
}

type Resolver struct {
	index MemberIndex
}

func NewResolver(index MemberIndex) *Resolver {
	return &Resolver{index: index}
}

// Resolve returns the sorted, deduplicated customer ids in the household of
// customerID, always including customerID itself.
//
// OneHop includes only customers that list one of customerID's own member
// names. If A and B share "Jane" and B and C share "John", resolving A yields
// {A, B}. Transitive keeps expanding until no new customer is found and would
// yield {A, B, C}.
func (r *Resolver) Resolve(ctx context.Context, customerID int64, mode policy.HouseholdMode) ([]int64, error) {
	switch mode {
	case policy.Transitive:
		return r.closure(ctx, customerID)
	default:
		return r.oneHop(ctx, customerID)
	}
}

func (r *Resolver) oneHop(ctx context.Context, customerID int64) ([]int64, error) {
	names, err := r.index.MemberNames(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("resolve household: %w", err)
	}
	if len(names) == 0 {
		return []int64{customerID}, nil
	}
	linked, err := r.index.CustomersWithMemberNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("resolve household: %w", err)
	}
	return normalize(append(linked, customerID)), nil
}

func (r *Resolver) closure(ctx context.Context, customerID int64) ([]int64, error) {
	seen := map[int64]bool{customerID: true}
	seenNames := map[string]bool{}
	queue := []int64{customerID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		names, err := r.index.MemberNames(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve household: %w", err)
		}
		var fresh []string
		for _, n := range names {
			if !seenNames[n] {
				seenNames[n] = true
				fresh = append(fresh, n)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		linked, err := r.index.CustomersWithMemberNames(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("resolve household: %w", err)
		}
		for _, other := range linked {
			if !seen[other] {
				seen[other] = true
				queue = append(queue, other)
			}
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return normalize(ids), nil
}

func normalize(ids []int64) []int64 {
	slices.Sort(ids)
	return slices.Compact(ids)
}
