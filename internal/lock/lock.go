// Package lock serialises writes that affect the same customers. A caller
// locks every customer id whose visits a rule counts, so two requests whose
// households overlap cannot both pass the same limit.
package lock

import (
	"context"
	"errors"
	"slices"
)

// ErrTimeout is returned when a lock could not be acquired before the
// context or the configured wait expired.
var ErrTimeout = errors.New("lock: timed out waiting for customer lock")

type Locker interface {
	// Lock acquires every id, in ascending order, and returns a function that
	// releases all of them.
	Lock(ctx context.Context, ids []int64) (unlock func(), err error)
}

func sortedUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
