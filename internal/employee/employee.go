// Package employee manages staff accounts. Every administrative change is
// written to the audit trail in the same transaction.
package employee

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/store"
)

const minPasswordLength = 8

type Service struct {
	db     *sql.DB
	audit  *audit.Logger
	cost   int
	logger *slog.Logger
}

// NewService hashes passwords with the given bcrypt cost.
func NewService(db *sql.DB, auditLog *audit.Logger, cost int, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		audit:  auditLog,
		cost:   cost,
		logger: logger.With("component", "employee"),
	}
}

type NewEmployee struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

func checkPassword(pw string) error {
	if len(pw) < minPasswordLength {
		return apperr.Invalid("password", fmt.Sprintf("Password must be at least %d characters long", minPasswordLength))
	}
	return nil
}

func role(isAdmin bool) string {
	if isAdmin {
		return "Admin"
	}
	return "Employee"
}

func (s *Service) Create(ctx context.Context, actorID int64, in NewEmployee) (*model.Employee, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" || in.FullName == "" || in.Password == "" {
		return nil, apperr.Invalid("", "Username, password, and full name are required")
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	employees := store.NewEmployeeStore(tx)
	existing, err := employees.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, apperr.Persistence("create employee", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("username %q is taken: %w", in.Username, apperr.ErrConflict)
	}

	e, err := employees.Create(ctx, in.Username, in.FullName, strings.TrimSpace(in.Email), in.Password, in.IsAdmin, s.cost)
	if err != nil {
		return nil, apperr.Persistence("create employee", err)
	}

	pending := s.audit.Begin(tx)
	if err := pending.Record(ctx, audit.Entry{
		ActorID:    audit.Actor(actorID),
		Action:     audit.ActionEmployeeCreate,
		TargetType: audit.TargetEmployee,
		TargetID:   audit.Target(e.ID),
		Details:    fmt.Sprintf("Created employee: %s (%s), role: %s", e.Username, e.FullName, role(e.IsAdmin)),
	}); err != nil {
		return nil, apperr.Persistence("create employee", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence("commit", err)
	}
	pending.Publish()
	s.logger.Info("employee created", "employee_id", e.ID, "username", e.Username)
	return e, nil
}

// Deactivate blocks the employee from signing in. An employee cannot
// deactivate their own account.
func (s *Service) Deactivate(ctx context.Context, actorID, id int64) (*model.Employee, error) {
	if actorID == id {
		return nil, apperr.Invalid("id", "You cannot deactivate your own account")
	}
	return s.setActive(ctx, actorID, id, false)
}

func (s *Service) Reactivate(ctx context.Context, actorID, id int64) (*model.Employee, error) {
	return s.setActive(ctx, actorID, id, true)
}

func (s *Service) setActive(ctx context.Context, actorID, id int64, active bool) (*model.Employee, error) {
	action, verb := audit.ActionEmployeeReactivate, "Reactivated"
	if !active {
		action, verb = audit.ActionEmployeeDeactivate, "Deactivated"
	}
	return s.change(ctx, actorID, id, action, verb, func(ctx context.Context, employees *store.EmployeeStore) (bool, error) {
		return employees.SetActive(ctx, id, active)
	})
}

// ResetPassword sets a new password for another employee.
func (s *Service) ResetPassword(ctx context.Context, actorID, id int64, password string) (*model.Employee, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	return s.change(ctx, actorID, id, audit.ActionEmployeePasswordReset, "Reset password for", func(ctx context.Context, employees *store.EmployeeStore) (bool, error) {
		return employees.ResetPassword(ctx, id, password, s.cost)
	})
}

func (s *Service) change(ctx context.Context, actorID, id int64, action audit.Action, verb string, apply func(context.Context, *store.EmployeeStore) (bool, error)) (*model.Employee, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	employees := store.NewEmployeeStore(tx)
	ok, err := apply(ctx, employees)
	if err != nil {
		return nil, apperr.Persistence(string(action), err)
	}
	if !ok {
		return nil, fmt.Errorf("employee %d: %w", id, apperr.ErrNotFound)
	}
	e, err := employees.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(string(action), err)
	}

	pending := s.audit.Begin(tx)
	if err := pending.Record(ctx, audit.Entry{
		ActorID:    audit.Actor(actorID),
		Action:     action,
		TargetType: audit.TargetEmployee,
		TargetID:   audit.Target(id),
		Details:    fmt.Sprintf("%s employee: %s (%s)", verb, e.Username, e.FullName),
	}); err != nil {
		return nil, apperr.Persistence(string(action), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence("commit", err)
	}
	pending.Publish()
	s.logger.Info("employee updated", "employee_id", id, "action", action)
	return e, nil
}

// ChangePassword lets an employee replace their own password after
// confirming the current one.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if current == "" || next == "" {
		return apperr.Invalid("", "All fields are required")
	}
	if err := checkPassword(next); err != nil {
		return err
	}
	employees := store.NewEmployeeStore(s.db)
	e, err := employees.GetByID(ctx, id)
	if err != nil {
		return apperr.Persistence("change password", err)
	}
	if e == nil {
		return fmt.Errorf("employee %d: %w", id, apperr.ErrNotFound)
	}
	ok, err := employees.Authenticate(ctx, e.Username, current)
	if err != nil {
		return apperr.Persistence("change password", err)
	}
	if ok == nil {
		return apperr.Invalid("current_password", "Current password is incorrect")
	}
	if _, err := employees.ResetPassword(ctx, id, next, s.cost); err != nil {
		return apperr.Persistence("change password", err)
	}
	return nil
}

// Authenticate returns nil for unknown users, inactive accounts and wrong
// passwords alike.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.Employee, error) {
	e, err := store.NewEmployeeStore(s.db).Authenticate(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return nil, apperr.Persistence("authenticate", err)
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Employee, error) {
	e, err := store.NewEmployeeStore(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get employee", err)
	}
	if e == nil {
		return nil, fmt.Errorf("employee %d: %w", id, apperr.ErrNotFound)
	}
	return e, nil
}

func (s *Service) List(ctx context.Context) ([]model.Employee, error) {
	list, err := store.NewEmployeeStore(s.db).List(ctx)
	if err != nil {
		return nil, apperr.Persistence("list employees", err)
	}
	return list, nil
}

// EnsureAdmin creates an active administrator with the given credentials
// when no employee has that username. It reports whether one was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	employees := store.NewEmployeeStore(s.db)
	existing, err := employees.GetByUsername(ctx, username)
	if err != nil {
		return false, apperr.Persistence("ensure admin", err)
	}
	if existing != nil {
		return false, nil
	}
	if err := checkPassword(password); err != nil {
		return false, err
	}
	e, err := employees.Create(ctx, username, "Administrator", "", password, true, s.cost)
	if err != nil {
		return false, apperr.Persistence("ensure admin", err)
	}
	s.logger.Info("bootstrap admin created", "employee_id", e.ID, "username", username)
	return true, nil
}
