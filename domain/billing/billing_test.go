package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/domain/billing"
	"repairdesk/domain/clients"
	"repairdesk/domain/repairs"
	"repairdesk/infrastructure/money"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/infrastructure/sqlite/sqlitetest"
)

// newRepair creates a repair for client name and returns the repair and client ids.
func newRepair(t *testing.T, db *sqlite.DB, name string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	repairID, err := repairs.Add(ctx, db, nil, "", repairs.RepairInput{ClientName: name, Brand: "Nokia"})
	require.NoError(t, err)
	c, found, err := clients.FindByName(ctx, db, name)
	require.NoError(t, err)
	require.True(t, found)
	return repairID, c.ID
}

func TestInvoicePaymentFlow(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	repairID, clientID := newRepair(t, db, "Juan")

	invoiceID, err := billing.CreateInvoice(ctx, db, repairID, clientID, 15)
	require.NoError(t, err)

	st, err := billing.InvoiceStatus(ctx, db, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, billing.Status{Total: 15, Paid: 0, Balance: 15}, st)

	ok, err := billing.RecordPayment(ctx, db, invoiceID, 5, billing.PaymentOptions{})
	require.NoError(t, err)
	require.True(t, ok)

	st, err = billing.InvoiceStatus(ctx, db, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, billing.Status{Total: 15, Paid: 5, Balance: 10}, st)

	debt, err := billing.ClientDebt(ctx, db, clientID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, debt)

	payments, err := billing.ListPayments(ctx, db, invoiceID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, 5.0, payments[0].Amount)
}

func TestBalanceIdentityHoldsAcrossPayments(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	repairID, clientID := newRepair(t, db, "Ana")

	invoiceID, err := billing.CreateInvoice(ctx, db, repairID, clientID, 100.3)
	require.NoError(t, err)
	for _, amount := range []float64{0.1, 0.2, 33.33, 66.67} {
		ok, err := billing.RecordPayment(ctx, db, invoiceID, amount, billing.PaymentOptions{})
		require.NoError(t, err)
		require.True(t, ok)

		st, err := billing.InvoiceStatus(ctx, db, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, money.Sub(st.Total, st.Paid), st.Balance)
	}
	st, err := billing.InvoiceStatus(ctx, db, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, 100.3, st.Paid)
	assert.Equal(t, 0.0, st.Balance)
}

func TestOverpayment(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	repairID, clientID := newRepair(t, db, "Luis")
	invoiceID, err := billing.CreateInvoice(ctx, db, repairID, clientID, 20)
	require.NoError(t, err)

	_, err = billing.RecordPayment(ctx, db, invoiceID, 25, billing.PaymentOptions{RejectOverpayment: true})
	assert.ErrorIs(t, err, billing.ErrOverpayment)
	st, err := billing.InvoiceStatus(ctx, db, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.Paid)
	payments, err := billing.ListPayments(ctx, db, invoiceID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	ok, err := billing.RecordPayment(ctx, db, invoiceID, 25, billing.PaymentOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	st, err = billing.InvoiceStatus(ctx, db, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, -5.0, st.Balance)
}

func TestPaymentEdgeCases(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	repairID, clientID := newRepair(t, db, "Eva")

	_, err := billing.CreateInvoice(ctx, db, repairID, clientID, -1)
	assert.ErrorIs(t, err, billing.ErrNegativeTotal)
	_, err = billing.CreateInvoice(ctx, db, 9999, clientID, 10)
	assert.ErrorIs(t, err, billing.ErrRepairNotFound)
	_, err = billing.CreateInvoice(ctx, db, repairID, 9999, 10)
	assert.ErrorIs(t, err, billing.ErrClientNotFound)

	_, err = billing.RecordPayment(ctx, db, 1, 0, billing.PaymentOptions{})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)
	ok, err := billing.RecordPayment(ctx, db, 9999, 5, billing.PaymentOptions{})
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := billing.InvoiceStatus(ctx, db, 9999)
	require.NoError(t, err)
	assert.Equal(t, billing.Status{}, st)

	debt, err := billing.ClientDebt(ctx, db, 9999)
	require.NoError(t, err)
	assert.Equal(t, 0.0, debt)

	first, err := billing.CreateInvoice(ctx, db, repairID, clientID, 10)
	require.NoError(t, err)
	_, err = billing.CreateInvoice(ctx, db, repairID, clientID, 7.5)
	require.NoError(t, err)
	_, err = billing.RecordPayment(ctx, db, first, 4, billing.PaymentOptions{})
	require.NoError(t, err)

	debt, err = billing.ClientDebt(ctx, db, clientID)
	require.NoError(t, err)
	assert.Equal(t, 13.5, debt)

	invoices, err := billing.ListInvoicesByClient(ctx, db, clientID)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)
	inv, found, err := billing.GetInvoice(ctx, db, first)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 6.0, inv.Balance)
}

func TestBudgets(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	repairID, _ := newRepair(t, db, "Juan")

	_, err := billing.AddBudget(ctx, db, billing.BudgetInput{RepairID: repairID, Labor: -1})
	assert.ErrorIs(t, err, billing.ErrNegativeAmount)
	_, err = billing.AddBudget(ctx, db, billing.BudgetInput{RepairID: 9999, Total: 10})
	assert.ErrorIs(t, err, billing.ErrRepairNotFound)

	id, err := billing.AddBudget(ctx, db, billing.BudgetInput{RepairID: repairID, Parts: "pantalla", Labor: 20, EstimatedHours: 1.5, Total: 55})
	require.NoError(t, err)

	for range 2 {
		ok, err := billing.ApproveBudget(ctx, db, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := billing.ApproveBudget(ctx, db, 9999)
	require.NoError(t, err)
	assert.False(t, ok)

	budgets, err := billing.ListBudgets(ctx, db, repairID)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.True(t, budgets[0].Approved)
	assert.Equal(t, 55.0, budgets[0].Total)
}

func TestWarrantiesAndReturns(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	repairID, clientID := newRepair(t, db, "Juan")
	otherRepair, _ := newRepair(t, db, "Ana")

	_, err := billing.RegisterWarranty(ctx, db, repairID, " ")
	assert.ErrorIs(t, err, billing.ErrDescriptionRequired)
	_, err = billing.RegisterWarranty(ctx, db, 9999, "falla")
	assert.ErrorIs(t, err, billing.ErrRepairNotFound)

	_, err = billing.RegisterWarranty(ctx, db, repairID, "la pantalla parpadea")
	require.NoError(t, err)
	_, err = billing.RegisterWarranty(ctx, db, otherRepair, "no carga")
	require.NoError(t, err)

	mine, err := billing.ListWarranties(ctx, db, repairID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, billing.WarrantyOpen, mine[0].Status)
	all, err := billing.ListWarranties(ctx, db, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	invoiceID, err := billing.CreateInvoice(ctx, db, repairID, clientID, 30)
	require.NoError(t, err)
	_, err = billing.RegisterReturn(ctx, db, invoiceID, "")
	assert.ErrorIs(t, err, billing.ErrReasonRequired)
	_, err = billing.RegisterReturn(ctx, db, 9999, "defecto")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
	_, err = billing.RegisterReturn(ctx, db, invoiceID, "defecto")
	require.NoError(t, err)

	returns, err := billing.ListReturns(ctx, db, invoiceID)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, billing.ReturnPending, returns[0].Status)
}
