package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type slot struct {
	sem  chan struct{}
	refs int
}

// Local locks ids within one process. Lock gives up after wait even when the
// caller's context has no deadline; a zero wait waits on the context only.
type Local struct {
	mu    sync.Mutex
	slots map[int64]*slot
	wait  time.Duration
}

func NewLocal(wait time.Duration) *Local {
	return &Local{slots: make(map[int64]*slot), wait: wait}
}

func (l *Local) acquire(id int64) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *Local) release(id int64, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *Local) Lock(ctx context.Context, ids []int64) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	ids = sortedUnique(ids)
	held := make([]int64, 0, len(ids))
	slots := make([]*slot, 0, len(ids))

	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-slots[i].sem
			l.release(held[i], slots[i])
		}
	}

	for _, id := range ids {
		s := l.acquire(id)
		select {
		case s.sem <- struct{}{}:
			held = append(held, id)
			slots = append(slots, s)
		case <-ctx.Done():
			l.release(id, s)
			unlock()
			return nil, fmt.Errorf("%w: customer %d: %w", ErrTimeout, id, ctx.Err())
		}
	}
	return unlock, nil
}

// held reports how many ids currently have a slot, for tests.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
