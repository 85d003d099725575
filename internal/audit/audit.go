// Package audit records employee-attributable actions. Entries are written in
// the caller's transaction and, after commit, emitted to sinks without ever
// failing the action that produced them.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/store"
)

type Action string

const (
	ActionVisitCreate           Action = "visit_create"
	ActionVisitInvalidate       Action = "visit_invalidate"
	ActionVoucherCreate         Action = "voucher_create"
	ActionVoucherRedeem         Action = "voucher_redeem"
	ActionVoucherRevoke         Action = "voucher_revoke"
	ActionCustomerCreate        Action = "customer_create"
	ActionCustomerEdit          Action = "customer_edit"
	ActionEmployeeCreate        Action = "employee_create"
	ActionEmployeeDeactivate    Action = "employee_deactivate"
	ActionEmployeeReactivate    Action = "employee_reactivate"
	ActionEmployeePasswordReset Action = "employee_password_reset"
	ActionSettingsUpdate        Action = "settings_update"
)

// Target types.
const (
	TargetVisit    = "visit"
	TargetVoucher  = "voucher"
	TargetCustomer = "customer"
	TargetEmployee = "employee"
	TargetSettings = "settings"
)

type Entry struct {
	ID         uuid.UUID `json:"id"`
	ActorID    *int64    `json:"actor_id"`
	Action     Action    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   *int64    `json:"target_id,omitempty"`
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sink receives committed entries.
type Sink interface {
	Emit(ctx context.Context, e Entry) error
}

const emitTimeout = 5 * time.Second

type Logger struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewLogger(logger *slog.Logger, sinks ...Sink) *Logger {
	return &Logger{
		sinks:  sinks,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// Actor is a convenience for building Entry.ActorID.
func Actor(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

// Target is a convenience for building Entry.TargetID.
func Target(id int64) *int64 {
	return &id
}

// Record appends e to the employee audit trail through q, normally the
// caller's open transaction. An entry without an actor is not written; the
// drop is logged as a warning and recorded is false. The returned entry has
// its ID and timestamp filled in, ready for Publish after commit.
func (l *Logger) Record(ctx context.Context, q store.DBTX, e Entry) (Entry, bool, error) {
	if e.ActorID == nil || *e.ActorID <= 0 {
		l.logger.Warn("audit entry dropped: no actor",
			"action", e.Action, "target_type", e.TargetType, "target_id", e.TargetID)
		return e, false, nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)

	_, err := store.NewAuditStore(q).Append(ctx, model.EmployeeAction{
		EventID:    e.ID.String(),
		EmployeeID: *e.ActorID,
		ActionType: string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Details:    e.Details,
		CreatedAt:  e.CreatedAt,
	})
	if err != nil {
		return e, false, fmt.Errorf("record %s: %w", e.Action, err)
	}
	return e, true, nil
}

// Publish hands entries to every sink in the background. Sink failures are
// logged and never reach the caller.
func (l *Logger) Publish(entries ...Entry) {
	if len(entries) == 0 || len(l.sinks) == 0 {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		for _, e := range entries {
			for _, s := range l.sinks {
				if err := s.Emit(ctx, e); err != nil {
					l.logger.Error("emit audit entry", "event_id", e.ID, "action", e.Action, "error", err)
				}
			}
		}
	}()
}

// Wait blocks until every pending Publish has finished.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// Pending collects entries recorded inside a transaction so they can be
// published once it commits.
type Pending struct {
	log     *Logger
	q       store.DBTX
	entries []Entry
}

// Begin starts collecting entries written through q.
func (l *Logger) Begin(q store.DBTX) *Pending {
	return &Pending{log: l, q: q}
}

func (p *Pending) Record(ctx context.Context, e Entry) error {
	e, ok, err := p.log.Record(ctx, p.q, e)
	if err != nil {
		return err
	}
	if ok {
		p.entries = append(p.entries, e)
	}
	return nil
}

// Publish emits the collected entries. Call it only after commit.
func (p *Pending) Publish() {
	p.log.Publish(p.entries...)
}

func (p *Pending) Entries() []Entry {
	return p.entries
}
