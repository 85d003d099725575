package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/intake/internal/model"
)

type CustomerStore struct {
	db DBTX
}

func NewCustomerStore(db DBTX) *CustomerStore {
	return &CustomerStore{db: db}
}

func (s *CustomerStore) WithTx(tx *sql.Tx) *CustomerStore {
	return &CustomerStore{db: tx}
}

func scanCustomer(sc scanner) (*model.Customer, error) {
	var c model.Customer
	err := sc.Scan(&c.ID, &c.Name, &c.Address, &c.City, &c.State, &c.Zip, &c.Phone,
		&c.DescriptionOfNeed, &c.AppliedBefore, &c.SignupDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const customerCols = `id, name, address, city, state, zip, phone, description_of_need, applied_before, signup_date, created_at, updated_at`

// Create inserts the customer and its household members.
func (s *CustomerStore) Create(ctx context.Context, in model.CustomerInput, members []model.HouseholdMember) (*model.Customer, error) {
	now := dbTime(time.Now())
	signup := now
	if in.SignupDate != nil {
		signup = dbTime(*in.SignupDate)
	}
	applied := in.AppliedBefore
	if applied == "" {
		applied = "no"
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (name, address, city, state, zip, phone, description_of_need, applied_before, signup_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Address, in.City, in.State, in.Zip, in.Phone, in.DescriptionOfNeed, applied, signup, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	hs := &HouseholdStore{db: s.db}
	if err := hs.ReplaceMembers(ctx, id, members); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *CustomerStore) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// Update overwrites the scalar fields. SignupDate is left unchanged when nil.
func (s *CustomerStore) Update(ctx context.Context, id int64, in model.CustomerInput) (*model.Customer, error) {
	now := dbTime(time.Now())
	var err error
	if in.SignupDate != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE customers SET name = ?, address = ?, city = ?, state = ?, zip = ?, phone = ?,
			 description_of_need = ?, applied_before = ?, signup_date = ?, updated_at = ? WHERE id = ?`,
			in.Name, in.Address, in.City, in.State, in.Zip, in.Phone, in.DescriptionOfNeed, in.AppliedBefore,
			dbTime(*in.SignupDate), now, id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE customers SET name = ?, address = ?, city = ?, state = ?, zip = ?, phone = ?,
			 description_of_need = ?, applied_before = ?, updated_at = ? WHERE id = ?`,
			in.Name, in.Address, in.City, in.State, in.Zip, in.Phone, in.DescriptionOfNeed, in.AppliedBefore,
			now, id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return s.GetByID(ctx, id)
}

// FindDuplicate returns an existing customer with the same phone number. When
// phone is empty it falls back to an exact name match on customers without a
// phone.
func (s *CustomerStore) FindDuplicate(ctx context.Context, phone, name string) (*model.Customer, error) {
	var row *sql.Row
	if phone != "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+customerCols+` FROM customers WHERE phone = ? ORDER BY id LIMIT 1`, phone)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+customerCols+` FROM customers WHERE name = ? AND phone = ? ORDER BY id LIMIT 1`, name, phone)
	}
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate customer: %w", err)
	}
	return c, nil
}

func (s *CustomerStore) List(ctx context.Context) ([]model.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerCols+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

const (
	minSearchLen = 2
	searchLimit  = 10
)

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search matches q against name, phone, address, city, state and household
// member names. Queries shorter than two characters return nothing.
func (s *CustomerStore) Search(ctx context.Context, q string) ([]model.Customer, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < minSearchLen {
		return nil, nil
	}
	term := "%" + likeEscaper.Replace(q) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customerCols+` FROM customers WHERE id IN (
			SELECT DISTINCT c.id FROM customers c
			LEFT JOIN household_members hm ON hm.customer_id = c.id
			WHERE c.name LIKE ? ESCAPE '!'
			   OR c.phone LIKE ? ESCAPE '!'
			   OR c.address LIKE ? ESCAPE '!'
			   OR c.city LIKE ? ESCAPE '!'
			   OR c.state LIKE ? ESCAPE '!'
			   OR hm.name LIKE ? ESCAPE '!'
		)
		ORDER BY name, id
		LIMIT ?`,
		term, term, term, term, term, term, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}
