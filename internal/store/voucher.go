package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/intake/internal/model"
)

type VoucherStore struct {
	db DBTX
}

func NewVoucherStore(db DBTX) *VoucherStore {
	return &VoucherStore{db: db}
}

func (s *VoucherStore) WithTx(tx *sql.Tx) *VoucherStore {
	return &VoucherStore{db: tx}
}

func scanVoucher(sc scanner) (*model.Voucher, error) {
	var (
		v          model.Voucher
		expiry     sql.NullTime
		redeemed   sql.NullTime
		redeemedBy sql.NullString
	)
	err := sc.Scan(&v.ID, &v.Code, &v.CustomerID, &v.Amount, &v.Status, &v.IssuedDate,
		&expiry, &redeemed, &redeemedBy, &v.Notes, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.IssuedDate = v.IssuedDate.UTC()
	v.ExpiryDate = timePtr(expiry)
	v.RedeemedDate = timePtr(redeemed)
	v.RedeemedBy = stringPtr(redeemedBy)
	return &v, nil
}

const voucherCols = `id, voucher_code, customer_id, amount, status, issued_date, expiry_date, redeemed_date, redeemed_by, notes, created_at`

// Create inserts an active voucher.
func (s *VoucherStore) Create(ctx context.Context, v model.Voucher) (*model.Voucher, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO vouchers (voucher_code, customer_id, amount, status, issued_date, expiry_date, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Code, v.CustomerID, v.Amount, string(model.VoucherActive), dbTime(v.IssuedDate),
		nullTime(v.ExpiryDate), v.Notes, dbTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert voucher: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *VoucherStore) GetByID(ctx context.Context, id int64) (*model.Voucher, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+voucherCols+` FROM vouchers WHERE id = ?`, id)
	v, err := scanVoucher(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	return v, nil
}

func (s *VoucherStore) GetByCode(ctx context.Context, code string) (*model.Voucher, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+voucherCols+` FROM vouchers WHERE voucher_code = ?`, code)
	v, err := scanVoucher(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get voucher by code: %w", err)
	}
	return v, nil
}

func (s *VoucherStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vouchers WHERE voucher_code = ?`, code).Scan(&n); err != nil {
		return false, fmt.Errorf("check voucher code: %w", err)
	}
	return n > 0, nil
}

// MarkRedeemed moves an active voucher to redeemed. It reports false when the
// voucher was not active.
func (s *VoucherStore) MarkRedeemed(ctx context.Context, id int64, by string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vouchers SET status = ?, redeemed_date = ?, redeemed_by = ? WHERE id = ? AND status = ?`,
		string(model.VoucherRedeemed), dbTime(at), by, id, string(model.VoucherActive),
	)
	if err != nil {
		return false, fmt.Errorf("redeem voucher: %w", err)
	}
	return affectedOne(res)
}

// MarkExpired moves an active voucher to expired. It reports false when the
// voucher was not active.
func (s *VoucherStore) MarkExpired(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vouchers SET status = ? WHERE id = ? AND status = ?`,
		string(model.VoucherExpired), id, string(model.VoucherActive),
	)
	if err != nil {
		return false, fmt.Errorf("expire voucher: %w", err)
	}
	return affectedOne(res)
}

func (s *VoucherStore) ListActive(ctx context.Context) ([]model.Voucher, error) {
	return s.list(ctx, `SELECT `+voucherCols+` FROM vouchers WHERE status = ? ORDER BY issued_date DESC, id DESC`, string(model.VoucherActive))
}

func (s *VoucherStore) ListByCustomer(ctx context.Context, customerID int64) ([]model.Voucher, error) {
	return s.list(ctx, `SELECT `+voucherCols+` FROM vouchers WHERE customer_id = ? ORDER BY issued_date DESC, id DESC`, customerID)
}

func (s *VoucherStore) list(ctx context.Context, query string, args ...any) ([]model.Voucher, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []model.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, rows.Err()
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
