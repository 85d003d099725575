package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/intake/internal/model"
)

// HouseholdStore reads and writes the household members listed on customer
// records. Member names are the join key between customers.
type HouseholdStore struct {
	db DBTX
}

func NewHouseholdStore(db DBTX) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func (s *HouseholdStore) WithTx(tx *sql.Tx) *HouseholdStore {
	return &HouseholdStore{db: tx}
}

func scanMember(sc scanner) (*model.HouseholdMember, error) {
	var m model.HouseholdMember
	if err := sc.Scan(&m.ID, &m.CustomerID, &m.Name, &m.Birthdate, &m.Relationship); err != nil {
		return nil, err
	}
	return &m, nil
}

const memberCols = `id, customer_id, name, birthdate, relationship`

func (s *HouseholdStore) ListMembers(ctx context.Context, customerID int64) ([]model.HouseholdMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+` FROM household_members WHERE customer_id = ? ORDER BY id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list household members: %w", err)
	}
	defer rows.Close()

	var members []model.HouseholdMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// MemberNames returns the distinct member names listed on one customer.
func (s *HouseholdStore) MemberNames(ctx context.Context, customerID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM household_members WHERE customer_id = ? ORDER BY name`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list member names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan member name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CustomersWithMemberNames returns every customer that lists at least one of
// names as a household member. Matching is exact.
func (s *HouseholdStore) CustomersWithMemberNames(ctx context.Context, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT customer_id FROM household_members WHERE name IN (`+placeholders(len(names))+`) ORDER BY customer_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("find customers by member names: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan customer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplaceMembers deletes the customer's members and inserts the given list.
// Rows with an empty name are skipped.
func (s *HouseholdStore) ReplaceMembers(ctx context.Context, customerID int64, members []model.HouseholdMember) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM household_members WHERE customer_id = ?`, customerID); err != nil {
		return fmt.Errorf("delete household members: %w", err)
	}
	for _, m := range members {
		if m.Name == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO household_members (customer_id, name, birthdate, relationship) VALUES (?, ?, ?, ?)`,
			customerID, m.Name, m.Birthdate, m.Relationship,
		); err != nil {
			return fmt.Errorf("insert household member: %w", err)
		}
	}
	return nil
}
