// Package customer handles signup and edits of aid recipients. Every edit
// writes a field-level history row and an employee action in the same
// transaction as the change.
package customer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/store"
)

type Service struct {
	db     *sql.DB
	audit  *audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, auditLog *audit.Logger, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		audit:  auditLog,
		logger: logger.With("component", "customer"),
		now:    time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func normalize(in model.CustomerInput) model.CustomerInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = FormatPhone(strings.TrimSpace(in.Phone))
	if in.AppliedBefore == "" {
		in.AppliedBefore = "no"
	}
	return in
}

// normalizeMembers trims names, drops blank rows and defaults a missing
// birthdate to today.
func (s *Service) normalizeMembers(members []model.HouseholdMember) []model.HouseholdMember {
	var out []model.HouseholdMember
	for _, m := range members {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		if m.Birthdate == "" {
			m.Birthdate = s.now().Format(time.DateOnly)
		}
		out = append(out, m)
	}
	return out
}

// Signup creates a customer with their household. A customer with the same
// phone number (or, without a phone, the same name) is a conflict.
func (s *Service) Signup(ctx context.Context, actorID int64, in model.CustomerInput, members []model.HouseholdMember) (*model.Customer, error) {
	in = normalize(in)
	if in.Name == "" {
		return nil, apperr.Invalid("name", "Name is required")
	}
	members = s.normalizeMembers(members)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	customers := store.NewCustomerStore(tx)
	dup, err := customers.FindDuplicate(ctx, in.Phone, in.Name)
	if err != nil {
		return nil, apperr.Persistence("signup", err)
	}
	if dup != nil {
		return nil, fmt.Errorf("customer #%d %s already exists: %w", dup.ID, dup.Name, apperr.ErrConflict)
	}

	c, err := customers.Create(ctx, in, members)
	if err != nil {
		return nil, apperr.Persistence("signup", err)
	}

	pending := s.audit.Begin(tx)
	if err := pending.Record(ctx, audit.Entry{
		ActorID:    audit.Actor(actorID),
		Action:     audit.ActionCustomerCreate,
		TargetType: audit.TargetCustomer,
		TargetID:   audit.Target(c.ID),
		Details:    fmt.Sprintf("Signed up %s with %d household members", c.Name, len(members)),
	}); err != nil {
		return nil, apperr.Persistence("signup", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence("commit", err)
	}
	pending.Publish()
	s.logger.Info("customer signed up", "customer_id", c.ID)
	return c, nil
}

// Update replaces the customer's fields and household. Each changed field
// and each added, removed or re-labelled member gets its own history row.
func (s *Service) Update(ctx context.Context, actorID, id int64, in model.CustomerInput, members []model.HouseholdMember) (*model.Customer, error) {
	in = normalize(in)
	if in.Name == "" {
		return nil, apperr.Invalid("name", "Name is required")
	}
	members = s.normalizeMembers(members)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	customers := store.NewCustomerStore(tx)
	households := store.NewHouseholdStore(tx)
	old, err := customers.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("update customer", err)
	}
	if old == nil {
		return nil, fmt.Errorf("customer %d: %w", id, apperr.ErrNotFound)
	}
	oldMembers, err := households.ListMembers(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("update customer", err)
	}

	changes := append(fieldChanges(old, in), memberChanges(oldMembers, members)...)

	updated, err := customers.Update(ctx, id, in)
	if err != nil {
		return nil, apperr.Persistence("update customer", err)
	}
	if err := households.ReplaceMembers(ctx, id, members); err != nil {
		return nil, apperr.Persistence("update customer", err)
	}

	at := s.now()
	auditStore := store.NewAuditStore(tx)
	pending := s.audit.Begin(tx)
	for _, c := range changes {
		if err := auditStore.AppendFieldChange(ctx, model.FieldChange{
			CustomerID: id,
			FieldName:  c.field,
			OldValue:   c.old,
			NewValue:   c.new,
			ChangedBy:  audit.Actor(actorID),
			ChangedAt:  at,
		}); err != nil {
			return nil, apperr.Persistence("update customer", err)
		}
		if err := pending.Record(ctx, audit.Entry{
			ActorID:    audit.Actor(actorID),
			Action:     audit.ActionCustomerEdit,
			TargetType: audit.TargetCustomer,
			TargetID:   audit.Target(id),
			Details:    fmt.Sprintf("Field '%s' changed from '%s' to '%s'", c.field, deref(c.old), deref(c.new)),
			CreatedAt:  at,
		}); err != nil {
			return nil, apperr.Persistence("update customer", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence("commit", err)
	}
	pending.Publish()
	s.logger.Info("customer updated", "customer_id", id, "changes", len(changes))
	return updated, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Get returns the customer and their household members.
func (s *Service) Get(ctx context.Context, id int64) (*model.Customer, []model.HouseholdMember, error) {
	c, err := store.NewCustomerStore(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperr.Persistence("get customer", err)
	}
	if c == nil {
		return nil, nil, fmt.Errorf("customer %d: %w", id, apperr.ErrNotFound)
	}
	members, err := store.NewHouseholdStore(s.db).ListMembers(ctx, id)
	if err != nil {
		return nil, nil, apperr.Persistence("get customer", err)
	}
	return c, members, nil
}

func (s *Service) List(ctx context.Context) ([]model.Customer, error) {
	list, err := store.NewCustomerStore(s.db).List(ctx)
	if err != nil {
		return nil, apperr.Persistence("list customers", err)
	}
	return list, nil
}

// Search finds customers by their own fields or a household member's name.
func (s *Service) Search(ctx context.Context, q string) ([]model.Customer, error) {
	list, err := store.NewCustomerStore(s.db).Search(ctx, q)
	if err != nil {
		return nil, apperr.Persistence("search customers", err)
	}
	return list, nil
}

// VisitCount returns the number of valid visits of any type.
func (s *Service) VisitCount(ctx context.Context, id int64) (int, error) {
	counts, err := store.NewVisitStore(s.db).CountsByType(ctx, id)
	if err != nil {
		return 0, apperr.Persistence("count visits", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// History returns the field-level change log, newest first.
func (s *Service) History(ctx context.Context, id int64) ([]model.FieldChange, error) {
	changes, err := store.NewAuditStore(s.db).ListFieldChanges(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("customer history", err)
	}
	return changes, nil
}
