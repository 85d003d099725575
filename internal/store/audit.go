package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/intake/internal/model"
)

// AuditStore appends to the employee and customer audit trails. Rows are
// never updated or deleted.
type AuditStore struct {
	db DBTX
}

func NewAuditStore(db DBTX) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) WithTx(tx *sql.Tx) *AuditStore {
	return &AuditStore{db: tx}
}

func scanAction(sc scanner) (*model.EmployeeAction, error) {
	var (
		a        model.EmployeeAction
		targetID sql.NullInt64
	)
	err := sc.Scan(&a.ID, &a.EventID, &a.EmployeeID, &a.ActionType, &a.TargetType, &targetID, &a.Details, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.TargetID = int64Ptr(targetID)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

const actionCols = `id, event_id, employee_id, action_type, target_type, target_id, details, created_at`

func (s *AuditStore) Append(ctx context.Context, a model.EmployeeAction) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO employee_audit (event_id, employee_id, action_type, target_type, target_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.EventID, a.EmployeeID, a.ActionType, a.TargetType, nullInt64(a.TargetID), a.Details, dbTime(a.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert employee audit: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *AuditStore) ListByEmployee(ctx context.Context, employeeID int64) ([]model.EmployeeAction, error) {
	return s.listActions(ctx,
		`SELECT `+actionCols+` FROM employee_audit WHERE employee_id = ? ORDER BY created_at DESC, id DESC`, employeeID)
}

func (s *AuditStore) ListByTarget(ctx context.Context, targetType string, targetID int64) ([]model.EmployeeAction, error) {
	return s.listActions(ctx,
		`SELECT `+actionCols+` FROM employee_audit WHERE target_type = ? AND target_id = ? ORDER BY created_at DESC, id DESC`,
		targetType, targetID)
}

func (s *AuditStore) listActions(ctx context.Context, query string, args ...any) ([]model.EmployeeAction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list employee audit: %w", err)
	}
	defer rows.Close()

	var actions []model.EmployeeAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee audit: %w", err)
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

func (s *AuditStore) AppendFieldChange(ctx context.Context, c model.FieldChange) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customer_audit (customer_id, field_name, old_value, new_value, changed_by, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.CustomerID, c.FieldName, c.OldValue, c.NewValue, nullInt64(c.ChangedBy), dbTime(c.ChangedAt),
	)
	if err != nil {
		return fmt.Errorf("insert customer audit: %w", err)
	}
	return nil
}

func (s *AuditStore) ListFieldChanges(ctx context.Context, customerID int64) ([]model.FieldChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, field_name, old_value, new_value, changed_by, changed_at
		 FROM customer_audit WHERE customer_id = ? ORDER BY changed_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer audit: %w", err)
	}
	defer rows.Close()

	var changes []model.FieldChange
	for rows.Next() {
		var (
			c         model.FieldChange
			old, next sql.NullString
			by        sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.FieldName, &old, &next, &by, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan customer audit: %w", err)
		}
		c.OldValue = stringPtr(old)
		c.NewValue = stringPtr(next)
		c.ChangedBy = int64Ptr(by)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
