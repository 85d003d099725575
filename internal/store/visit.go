package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/intake/internal/model"
)

// VisitStore is the visit ledger. Invalidated visits stay in the table but
// are excluded from every count and interval lookup.
type VisitStore struct {
	db DBTX
}

func NewVisitStore(db DBTX) *VisitStore {
	return &VisitStore{db: db}
}

func (s *VisitStore) WithTx(tx *sql.Tx) *VisitStore {
	return &VisitStore{db: tx}
}

func scanVisit(sc scanner) (*model.Visit, error) {
	var (
		v             model.Visit
		amount        decimal.NullDecimal
		voucherID     sql.NullInt64
		isInvalid     int
		invalidReason sql.NullString
		invalidatedBy sql.NullInt64
		invalidatedAt sql.NullTime
	)
	err := sc.Scan(&v.ID, &v.CustomerID, &v.VisitDate, &v.Type, &amount, &v.Notes, &voucherID,
		&isInvalid, &invalidReason, &invalidatedBy, &invalidatedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if amount.Valid {
		a := amount.Decimal
		v.Amount = &a
	}
	v.VisitDate = v.VisitDate.UTC()
	v.VoucherID = int64Ptr(voucherID)
	v.IsInvalid = isInvalid != 0
	v.InvalidReason = stringPtr(invalidReason)
	v.InvalidatedBy = int64Ptr(invalidatedBy)
	v.InvalidatedAt = timePtr(invalidatedAt)
	return &v, nil
}

const visitCols = `id, customer_id, visit_date, visit_type, amount, notes, voucher_id, is_invalid, invalid_reason, invalidated_by, invalidated_at, created_at`

func (s *VisitStore) Insert(ctx context.Context, in model.VisitInput) (*model.Visit, error) {
	var amount decimal.NullDecimal
	if in.Amount != nil {
		amount = decimal.NullDecimal{Decimal: *in.Amount, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO visits (customer_id, visit_date, visit_type, amount, notes, voucher_id, is_invalid, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		in.CustomerID, dbTime(in.VisitDate), string(in.Type), amount, in.Notes, nullInt64(in.VoucherID), dbTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert visit: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *VisitStore) GetByID(ctx context.Context, id int64) (*model.Visit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+visitCols+` FROM visits WHERE id = ?`, id)
	v, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

// Invalidate flips a valid visit to invalid. It reports false when the visit
// does not belong to customerID or is already invalid. A non-positive actorID
// is stored as NULL.
func (s *VisitStore) Invalidate(ctx context.Context, id, customerID int64, reason string, actorID int64, at time.Time) (bool, error) {
	var by sql.NullInt64
	if actorID > 0 {
		by = sql.NullInt64{Int64: actorID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE visits SET is_invalid = 1, invalid_reason = ?, invalidated_by = ?, invalidated_at = ?
		 WHERE id = ? AND customer_id = ? AND is_invalid = 0`,
		reason, by, dbTime(at), id, customerID,
	)
	if err != nil {
		return false, fmt.Errorf("invalidate visit: %w", err)
	}
	return affectedOne(res)
}

// Count returns the number of valid visits of type t for the given customers.
// When bounded is false the time window is ignored.
func (s *VisitStore) Count(ctx context.Context, customerIDs []int64, t model.VisitType, from, to time.Time, bounded bool) (int, error) {
	if len(customerIDs) == 0 {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM visits WHERE customer_id IN (` + placeholders(len(customerIDs)) + `)
		AND visit_type = ? AND is_invalid = 0`
	args := append(int64Args(customerIDs), string(t))
	if bounded {
		query += ` AND visit_date >= ? AND visit_date < ?`
		args = append(args, dbTime(from), dbTime(to))
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}

// LastBefore returns the date of the most recent valid visit of type t that
// happened strictly before ref, or nil when there is none.
func (s *VisitStore) LastBefore(ctx context.Context, customerIDs []int64, t model.VisitType, ref time.Time) (*time.Time, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	args := append(int64Args(customerIDs), string(t), dbTime(ref))
	var last time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT visit_date FROM visits WHERE customer_id IN (`+placeholders(len(customerIDs))+`)
		 AND visit_type = ? AND is_invalid = 0 AND visit_date < ?
		 ORDER BY visit_date DESC LIMIT 1`,
		args...,
	).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last visit: %w", err)
	}
	last = last.UTC()
	return &last, nil
}

// ListByCustomer returns every visit of the customer, newest first, including
// invalidated ones.
func (s *VisitStore) ListByCustomer(ctx context.Context, customerID int64) ([]model.Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+visitCols+` FROM visits WHERE customer_id = ? ORDER BY visit_date DESC, id DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var visits []model.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

// CountsByType returns valid visit totals per type for one customer.
func (s *VisitStore) CountsByType(ctx context.Context, customerID int64) (map[model.VisitType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT visit_type, COUNT(*) FROM visits WHERE customer_id = ? AND is_invalid = 0 GROUP BY visit_type`, customerID)
	if err != nil {
		return nil, fmt.Errorf("count visits by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.VisitType]int, len(model.VisitTypes))
	for _, t := range model.VisitTypes {
		counts[t] = 0
	}
	for rows.Next() {
		var (
			t model.VisitType
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan visit count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}
