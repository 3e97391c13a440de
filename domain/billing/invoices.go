package billing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/money"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

var (
	ErrNegativeTotal   = errors.New("total must not be negative")
	ErrInvalidAmount   = errors.New("payment amount must be positive")
	ErrOverpayment     = errors.New("payment exceeds invoice balance")
	ErrRepairNotFound  = errors.New("repair not found")
	ErrClientNotFound  = errors.New("client not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// Status is the (total, paid, balance) triple of an invoice.
type Status struct {
	Total   float64 `bun:"total"`
	Paid    float64 `bun:"paid"`
	Balance float64 `bun:"balance"`
}

// PaymentOptions tunes RecordPayment. The zero value accepts overpayment,
// which leaves a negative balance.
type PaymentOptions struct {
	RejectOverpayment bool
}

// CreateInvoice opens an invoice with nothing paid.
func CreateInvoice(ctx context.Context, db *sqlite.DB, repairID, clientID int64, total float64) (int64, error) {
	if money.IsNegative(total) {
		return 0, ErrNegativeTotal
	}
	total = money.Round(total)
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM repairs WHERE id = ?`, repairID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRepairNotFound
		}
		ok, err = sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM clients WHERE id = ?`, clientID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrClientNotFound
		}
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO invoices (repair_id, client_id, total, paid, balance, created_at)
VALUES (?, ?, ?, 0, ?, ?)`, repairID, clientID, total, total, sqlite.FormatTime(now()))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RecordPayment stores a payment and moves the same amount from the
// invoice's balance to its paid total. It reports false for an unknown invoice.
func RecordPayment(ctx context.Context, db *sqlite.DB, invoiceID int64, amount float64, opts PaymentOptions) (bool, error) {
	if !money.IsPositive(amount) {
		return false, ErrInvalidAmount
	}
	amount = money.Round(amount)
	recorded := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var st Status
		err := tx.NewRaw(`SELECT total, paid, balance FROM invoices WHERE id = ?`, invoiceID).Scan(ctx, &st.Total, &st.Paid, &st.Balance)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if opts.RejectOverpayment && money.Cmp(amount, st.Balance) > 0 {
			return ErrOverpayment
		}

		paid := money.Add(st.Paid, amount)
		balance := money.Sub(st.Total, paid)
		if _, err := tx.ExecContext(ctx, `INSERT INTO payments (invoice_id, amount, created_at) VALUES (?, ?, ?)`,
			invoiceID, amount, sqlite.FormatTime(now())); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE invoices SET paid = ?, balance = ? WHERE id = ?`, paid, balance, invoiceID); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	return recorded, err
}

// InvoiceStatus returns the invoice amounts, or zeros when it does not exist.
func InvoiceStatus(ctx context.Context, db *sqlite.DB, invoiceID int64) (Status, error) {
	var st Status
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`SELECT total, paid, balance FROM invoices WHERE id = ?`, invoiceID).Scan(ctx, &st.Total, &st.Paid, &st.Balance)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, nil
	}
	return st, err
}

// ClientDebt sums the balances of every invoice of the client.
func ClientDebt(ctx context.Context, db *sqlite.DB, clientID int64) (float64, error) {
	var balances []float64
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().TableExpr("invoices").Column("balance").Where("client_id = ?", clientID).Scan(ctx, &balances)
	})
	if err != nil {
		return 0, err
	}
	return money.Add(balances...), nil
}

func GetInvoice(ctx context.Context, db *sqlite.DB, id int64) (models.Invoice, bool, error) {
	var inv models.Invoice
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&inv).Where("i.id = ?", id).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, false, nil
	}
	if err != nil {
		return models.Invoice{}, false, err
	}
	return inv, true, nil
}

func ListInvoicesByClient(ctx context.Context, db *sqlite.DB, clientID int64) ([]models.Invoice, error) {
	invoices := make([]models.Invoice, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&invoices).Where("i.client_id = ?", clientID).OrderExpr("i.created_at ASC, i.id ASC").Scan(ctx)
	})
	return invoices, err
}

func ListPayments(ctx context.Context, db *sqlite.DB, invoiceID int64) ([]models.Payment, error) {
	payments := make([]models.Payment, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&payments).Where("pay.invoice_id = ?", invoiceID).OrderExpr("pay.created_at ASC, pay.id ASC").Scan(ctx)
	})
	return payments, err
}
