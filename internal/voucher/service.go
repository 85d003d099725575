// Package voucher issues, redeems and revokes vouchers. Issuing a voucher also
// records a voucher visit, so it goes through the same evaluate-and-commit
// path as any other visit.
package voucher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/model"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/store"
	"github.com/dukerupert/intake/internal/visits"
)

type Service struct {
	db     *sql.DB
	visits *visits.Service
	audit  *audit.Logger
	codes  CodeGenerator
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, visitSvc *visits.Service, auditLog *audit.Logger, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		visits: visitSvc,
		audit:  auditLog,
		codes:  RandomCode,
		logger: logger.With("component", "voucher"),
		now:    time.Now,
	}
}

// SetCodeGenerator replaces RandomCode, for tests.
func (s *Service) SetCodeGenerator(g CodeGenerator) {
	s.codes = g
}

// SetClock replaces the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type IssueInput struct {
	CustomerID int64
	Amount     decimal.Decimal
	ExpiryDate *time.Time
	Notes      string
	IssuedAt   *time.Time
}

// Issue creates an active voucher and its voucher visit in one transaction,
// after the voucher limits and interval pass.
func (s *Service) Issue(ctx context.Context, actorID int64, in IssueInput) (*model.Voucher, error) {
	if in.CustomerID <= 0 {
		return nil, apperr.Invalid("customer_id", "Invalid customer ID")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Invalid("amount", "Amount must be greater than 0")
	}
	issued := s.now()
	if in.IssuedAt != nil {
		issued = *in.IssuedAt
	}

	var v *model.Voucher
	_, err := s.visits.Commit(ctx, in.CustomerID, model.VisitVoucher, issued, func(ctx context.Context, tx *sql.Tx, p policy.Policy, pending *audit.Pending) error {
		vouchers := store.NewVoucherStore(tx)
		code, err := s.uniqueCode(ctx, vouchers, p.VoucherPrefix)
		if err != nil {
			return err
		}

		v, err = vouchers.Create(ctx, model.Voucher{
			Code:       code,
			CustomerID: in.CustomerID,
			Amount:     in.Amount,
			IssuedDate: issued,
			ExpiryDate: in.ExpiryDate,
			Notes:      in.Notes,
		})
		if err != nil {
			return err
		}

		amount := in.Amount
		visit, err := store.NewVisitStore(tx).Insert(ctx, model.VisitInput{
			CustomerID: in.CustomerID,
			VisitDate:  issued,
			Type:       model.VisitVoucher,
			Amount:     &amount,
			Notes:      "Voucher " + code,
			VoucherID:  &v.ID,
		})
		if err != nil {
			return err
		}

		actor := audit.Actor(actorID)
		if err := pending.Record(ctx, audit.Entry{
			ActorID:    actor,
			Action:     audit.ActionVoucherCreate,
			TargetType: audit.TargetVoucher,
			TargetID:   audit.Target(v.ID),
			Details:    fmt.Sprintf("Issued voucher %s ($%s) to customer #%d", code, in.Amount.StringFixed(2), in.CustomerID),
		}); err != nil {
			return err
		}
		return pending.Record(ctx, audit.Entry{
			ActorID:    actor,
			Action:     audit.ActionVisitCreate,
			TargetType: audit.TargetVisit,
			TargetID:   audit.Target(visit.ID),
			Details:    fmt.Sprintf("Recorded voucher visit for customer #%d (voucher %s)", in.CustomerID, code),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("voucher issued", "voucher_id", v.ID, "customer_id", in.CustomerID)
	return v, nil
}

func (s *Service) uniqueCode(ctx context.Context, vouchers *store.VoucherStore, prefix string) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.codes(prefix)
		if err != nil {
			return "", err
		}
		exists, err := vouchers.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unique voucher code after %d attempts", maxCodeAttempts)
}

// Lookup returns the voucher with the given code in any status.
func (s *Service) Lookup(ctx context.Context, code string) (*model.Voucher, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Invalid("voucher_code", "Voucher code is required")
	}
	v, err := store.NewVoucherStore(s.db).GetByCode(ctx, code)
	if err != nil {
		return nil, apperr.Persistence("lookup voucher", err)
	}
	if v == nil {
		return nil, fmt.Errorf("voucher %s: %w", code, apperr.ErrNotFound)
	}
	return v, nil
}

// Active lists every voucher that can still be redeemed.
func (s *Service) Active(ctx context.Context) ([]model.Voucher, error) {
	list, err := store.NewVoucherStore(s.db).ListActive(ctx)
	if err != nil {
		return nil, apperr.Persistence("list active vouchers", err)
	}
	return list, nil
}

// ForCustomer lists the customer's vouchers in any status.
func (s *Service) ForCustomer(ctx context.Context, customerID int64) ([]model.Voucher, error) {
	list, err := store.NewVoucherStore(s.db).ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperr.Persistence("list customer vouchers", err)
	}
	return list, nil
}

// Check returns the voucher and, when it cannot be redeemed, a
// *apperr.VoucherStateError explaining why.
func (s *Service) Check(ctx context.Context, code string) (*model.Voucher, error) {
	v, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return v, stateError(v)
}

func stateError(v *model.Voucher) error {
	if v.Status == model.VoucherActive {
		return nil
	}
	return &apperr.VoucherStateError{Code: v.Code, Status: string(v.Status), RedeemedAt: v.RedeemedDate}
}

// Redeem moves an active voucher to redeemed. A voucher leaves active at most
// once, so of two concurrent redemptions exactly one succeeds.
func (s *Service) Redeem(ctx context.Context, actorID int64, code, redeemedBy string) (*model.Voucher, error) {
	redeemedBy = strings.TrimSpace(redeemedBy)
	if redeemedBy == "" {
		return nil, apperr.Invalid("redeemed_by", "Redeemed by is required")
	}
	return s.transition(ctx, code, func(ctx context.Context, vouchers *store.VoucherStore, v *model.Voucher) (bool, audit.Entry, error) {
		ok, err := vouchers.MarkRedeemed(ctx, v.ID, redeemedBy, s.now())
		return ok, audit.Entry{
			ActorID:    audit.Actor(actorID),
			Action:     audit.ActionVoucherRedeem,
			TargetType: audit.TargetVoucher,
			TargetID:   audit.Target(v.ID),
			Details:    fmt.Sprintf("Redeemed voucher %s ($%s) by %s", v.Code, v.Amount.StringFixed(2), redeemedBy),
		}, err
	})
}

// Revoke moves an active voucher to expired.
func (s *Service) Revoke(ctx context.Context, actorID int64, code string) (*model.Voucher, error) {
	return s.transition(ctx, code, func(ctx context.Context, vouchers *store.VoucherStore, v *model.Voucher) (bool, audit.Entry, error) {
		ok, err := vouchers.MarkExpired(ctx, v.ID)
		return ok, audit.Entry{
			ActorID:    audit.Actor(actorID),
			Action:     audit.ActionVoucherRevoke,
			TargetType: audit.TargetVoucher,
			TargetID:   audit.Target(v.ID),
			Details:    fmt.Sprintf("Revoked voucher %s for customer #%d", v.Code, v.CustomerID),
		}, err
	})
}

type transitionFunc func(ctx context.Context, vouchers *store.VoucherStore, v *model.Voucher) (bool, audit.Entry, error)

func (s *Service) transition(ctx context.Context, code string, apply transitionFunc) (*model.Voucher, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Invalid("voucher_code", "Voucher code is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	vouchers := store.NewVoucherStore(tx)
	v, err := vouchers.GetByCode(ctx, code)
	if err != nil {
		return nil, apperr.Persistence("load voucher", err)
	}
	if v == nil {
		return nil, fmt.Errorf("voucher %s: %w", code, apperr.ErrNotFound)
	}
	if err := stateError(v); err != nil {
		return nil, err
	}

	ok, entry, err := apply(ctx, vouchers, v)
	if err != nil {
		return nil, apperr.Persistence("update voucher", err)
	}
	if !ok {
		// Lost a race with another transition; report the state it left.
		current, err := vouchers.GetByID(ctx, v.ID)
		if err != nil {
			return nil, apperr.Persistence("load voucher", err)
		}
		if current != nil {
			if err := stateError(current); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("voucher %s changed concurrently: %w", code, apperr.ErrConflict)
	}

	pending := s.audit.Begin(tx)
	if err := pending.Record(ctx, entry); err != nil {
		return nil, apperr.Persistence("update voucher", err)
	}
	updated, err := vouchers.GetByID(ctx, v.ID)
	if err != nil {
		return nil, apperr.Persistence("load voucher", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence("commit", err)
	}
	pending.Publish()
	s.logger.Info("voucher updated", "voucher_id", v.ID, "action", entry.Action, "status", updated.Status)
	return updated, nil
}
