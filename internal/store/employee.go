package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/intake/internal/model"
)

type EmployeeStore struct {
	db DBTX
}

func NewEmployeeStore(db DBTX) *EmployeeStore {
	return &EmployeeStore{db: db}
}

func (s *EmployeeStore) WithTx(tx *sql.Tx) *EmployeeStore {
	return &EmployeeStore{db: tx}
}

func scanEmployee(sc scanner) (*model.Employee, error) {
	var (
		e               model.Employee
		isAdmin, active int
	)
	err := sc.Scan(&e.ID, &e.Username, &e.FullName, &e.Email, &isAdmin, &active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.IsAdmin = isAdmin != 0
	e.IsActive = active != 0
	return &e, nil
}

const employeeCols = `id, username, full_name, email, is_admin, is_active, created_at, updated_at`

func (s *EmployeeStore) Create(ctx context.Context, username, fullName, email, password string, isAdmin bool, cost int) (*model.Employee, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := dbTime(time.Now())
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO employees (username, password_hash, full_name, email, is_admin, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		username, string(hash), fullName, email, boolInt(isAdmin), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert employee: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *EmployeeStore) GetByID(ctx context.Context, id int64) (*model.Employee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

func (s *EmployeeStore) GetByUsername(ctx context.Context, username string) (*model.Employee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE username = ?`, username)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee by username: %w", err)
	}
	return e, nil
}

// Authenticate returns the active employee matching the credentials, or nil
// when the username is unknown, the account is inactive or the password does
// not match.
func (s *EmployeeStore) Authenticate(ctx context.Context, username, password string) (*model.Employee, error) {
	var (
		id   int64
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM employees WHERE username = ? AND is_active = 1`, username,
	).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate employee: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, nil
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SetActive reports false when the employee does not exist.
func (s *EmployeeStore) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE employees SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), dbTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("set employee active: %w", err)
	}
	return affectedOne(res)
}

func (s *EmployeeStore) ResetPassword(ctx context.Context, id int64, password string, cost int) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE employees SET password_hash = ?, updated_at = ? WHERE id = ?`,
		string(hash), dbTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("reset password: %w", err)
	}
	return affectedOne(res)
}

func (s *EmployeeStore) List(ctx context.Context) ([]model.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+employeeCols+` FROM employees ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, *e)
	}
	return employees, rows.Err()
}
