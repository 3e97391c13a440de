package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/money"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

var (
	ErrNegativeAmount      = errors.New("amounts must not be negative")
	ErrDescriptionRequired = errors.New("description is required")
	ErrReasonRequired      = errors.New("reason is required")
)

const (
	WarrantyOpen  = "abierta"
	ReturnPending = "pendiente"
)

var now = time.Now

type BudgetInput struct {
	RepairID       int64
	Parts          string
	Labor          float64
	EstimatedHours float64
	Total          float64
}

// AddBudget attaches an unapproved estimate to a repair.
func AddBudget(ctx context.Context, db *sqlite.DB, in BudgetInput) (int64, error) {
	if money.IsNegative(in.Labor) || money.IsNegative(in.Total) || in.EstimatedHours < 0 {
		return 0, ErrNegativeAmount
	}
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := requireRepair(ctx, tx, in.RepairID); err != nil {
			return err
		}
		var err error
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO budgets (repair_id, parts, labor, estimated_hours, total, approved, created_at)
VALUES (?, ?, ?, ?, ?, 0, ?)`,
			in.RepairID, sqlite.NullIfEmpty(in.Parts), money.Round(in.Labor), in.EstimatedHours, money.Round(in.Total), sqlite.FormatTime(now()))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func requireRepair(ctx context.Context, tx bun.Tx, repairID int64) error {
	ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM repairs WHERE id = ?`, repairID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRepairNotFound
	}
	return nil
}

// ApproveBudget marks a budget approved. Approving twice is harmless; there
// is no way back. It reports false for an unknown budget.
func ApproveBudget(ctx context.Context, db *sqlite.DB, budgetID int64) (bool, error) {
	found := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		n, err := sqlite.RowsAffected(ctx, tx, `UPDATE budgets SET approved = 1 WHERE id = ?`, budgetID)
		found = n == 1
		return err
	})
	return found, err
}

func ListBudgets(ctx context.Context, db *sqlite.DB, repairID int64) ([]models.Budget, error) {
	budgets := make([]models.Budget, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&budgets).Where("b.repair_id = ?", repairID).OrderExpr("b.id ASC").Scan(ctx)
	})
	return budgets, err
}

// RegisterWarranty records a warranty claim against a repair.
func RegisterWarranty(ctx context.Context, db *sqlite.DB, repairID int64, description string) (int64, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return 0, ErrDescriptionRequired
	}
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := requireRepair(ctx, tx, repairID); err != nil {
			return err
		}
		var err error
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO warranties (repair_id, description, status, created_at) VALUES (?, ?, ?, ?)`,
			repairID, description, WarrantyOpen, sqlite.FormatTime(now()))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListWarranties returns claims for repairID, or all claims when it is zero.
func ListWarranties(ctx context.Context, db *sqlite.DB, repairID int64) ([]models.Warranty, error) {
	out := make([]models.Warranty, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&out).OrderExpr("w.created_at DESC, w.id DESC")
		if repairID > 0 {
			q = q.Where("w.repair_id = ?", repairID)
		}
		return q.Scan(ctx)
	})
	return out, err
}

// RegisterReturn records a return against an invoice.
func RegisterReturn(ctx context.Context, db *sqlite.DB, invoiceID int64, reason string) (int64, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, ErrReasonRequired
	}
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM invoices WHERE id = ?`, invoiceID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvoiceNotFound
		}
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO returns (invoice_id, reason, status, created_at) VALUES (?, ?, ?, ?)`,
			invoiceID, reason, ReturnPending, sqlite.FormatTime(now()))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListReturns returns returns for invoiceID, or all of them when it is zero.
func ListReturns(ctx context.Context, db *sqlite.DB, invoiceID int64) ([]models.Return, error) {
	out := make([]models.Return, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&out).OrderExpr("ret.created_at DESC, ret.id DESC")
		if invoiceID > 0 {
			q = q.Where("ret.invoice_id = ?", invoiceID)
		}
		return q.Scan(ctx)
	})
	return out, err
}
