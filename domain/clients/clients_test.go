package clients_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/domain/billing"
	"repairdesk/domain/clients"
	"repairdesk/domain/devices"
	"repairdesk/domain/repairs"
	"repairdesk/infrastructure/audit"
	"repairdesk/infrastructure/sqlite/sqlitetest"
)

func ptr[T any](v T) *T { return &v }

func TestAddAndFindByName(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	id, err := clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "  Juan ", Phone: "555-1234"})
	require.NoError(t, err)
	assert.Positive(t, id)

	c, ok, err := clients.FindByName(ctx, db, "Juan")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, "555-1234", c.Phone)
	assert.Empty(t, c.Email)

	_, ok, err = clients.FindByName(ctx, db, "Nadie")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddRejectsDuplicateAndEmptyName(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "Juan"})
	require.NoError(t, err)

	_, err = clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "Juan", Phone: "1"})
	assert.ErrorIs(t, err, clients.ErrClientExists)

	_, err = clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "   "})
	assert.ErrorIs(t, err, clients.ErrNameRequired)

	all, err := clients.List(ctx, db)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdatePartialFields(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	auditSvc := audit.NewService()

	id, err := clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "Ana", Phone: "1", Email: "ana@example.com"})
	require.NoError(t, err)

	ok, err := clients.Update(ctx, db, auditSvc, "admin", id, clients.ClientUpdate{})
	require.NoError(t, err)
	assert.False(t, ok, "empty update must report failure")

	ok, err = clients.Update(ctx, db, auditSvc, "admin", id, clients.ClientUpdate{Phone: ptr("2")})
	require.NoError(t, err)
	assert.True(t, ok)

	c, found, err := clients.Get(ctx, db, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", c.Phone)
	assert.Equal(t, "ana@example.com", c.Email, "fields not supplied must not change")

	ok, err = clients.Update(ctx, db, auditSvc, "admin", 9999, clients.ClientUpdate{Phone: ptr("3")})
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := audit.List(ctx, db, "admin")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionUpdate, entries[0].Action)
	assert.Equal(t, "clients", entries[0].TableName)
	assert.Equal(t, id, entries[0].RecordID)
}

func TestUpdateRenameConflict(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "Ana"})
	require.NoError(t, err)
	luis, err := clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "Luis"})
	require.NoError(t, err)

	ok, err := clients.Update(ctx, db, nil, "", luis, clients.ClientUpdate{Name: ptr("Ana")})
	assert.ErrorIs(t, err, clients.ErrClientExists)
	assert.False(t, ok)

	c, _, err := clients.Get(ctx, db, luis)
	require.NoError(t, err)
	assert.Equal(t, "Luis", c.Name)
}

func TestDeleteCascadesToDevicesAndRepairs(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	repairID, err := repairs.Add(ctx, db, nil, "", repairs.RepairInput{
		ClientName: "Juan", Brand: "X", Model: "Y", Description: "pantalla",
	})
	require.NoError(t, err)

	juan, ok, err := clients.FindByName(ctx, db, "Juan")
	require.NoError(t, err)
	require.True(t, ok)
	devs, err := devices.ListByClient(ctx, db, juan.ID)
	require.NoError(t, err)
	require.Len(t, devs, 1)

	deleted, err := clients.Delete(ctx, db, nil, "", juan.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	devs, err = devices.ListByClient(ctx, db, juan.ID)
	require.NoError(t, err)
	assert.Empty(t, devs)
	_, ok, err = repairs.Get(ctx, db, repairID)
	require.NoError(t, err)
	assert.False(t, ok, "repair should be removed with its device")

	deleted, err = clients.Delete(ctx, db, nil, "", juan.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListDetailed(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := repairs.Add(ctx, db, nil, "", repairs.RepairInput{ClientName: "Juan", Brand: "X", Model: "Y"})
	require.NoError(t, err)
	doneID, err := repairs.Add(ctx, db, nil, "", repairs.RepairInput{ClientName: "Juan", Brand: "X", Model: "Y", Status: "Completada"})
	require.NoError(t, err)
	_, err = clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "Ana"})
	require.NoError(t, err)

	juan, found, err := clients.FindByName(ctx, db, "Juan")
	require.NoError(t, err)
	require.True(t, found)
	invoiceID, err := billing.CreateInvoice(ctx, db, doneID, juan.ID, 40.5)
	require.NoError(t, err)
	ok, err := billing.RecordPayment(ctx, db, invoiceID, 10, billing.PaymentOptions{})
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := clients.ListDetailed(ctx, db)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ana", rows[0].Name)
	assert.Zero(t, rows[0].Devices)
	assert.Equal(t, "Juan", rows[1].Name)
	assert.Equal(t, int64(1), rows[1].Devices, "repeat submissions reuse the device")
	assert.Equal(t, int64(1), rows[1].OpenRepairs)
	assert.Zero(t, rows[0].OutstandingDue, "clients without invoices owe nothing")
	assert.InDelta(t, 30.5, rows[1].OutstandingDue, 1e-9)
}
