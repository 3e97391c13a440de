package exports_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/domain/clients"
	"repairdesk/domain/exports"
	"repairdesk/domain/repairs"
	"repairdesk/infrastructure/sqlite/sqlitetest"
)

func TestDumpLoadRoundTripThroughCSV(t *testing.T) {
	src := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := clients.Add(ctx, src, nil, "", clients.ClientInput{Name: "Juan", Phone: "555-1234", Notes: "paga, en efectivo"})
	require.NoError(t, err)
	_, err = clients.Add(ctx, src, nil, "", clients.ClientInput{Name: "Ana \"la tecnica\""})
	require.NoError(t, err)

	dumped, err := exports.Dump(ctx, src, "clients")
	require.NoError(t, err)
	require.Len(t, dumped.Rows, 2)
	assert.Contains(t, dumped.Columns, "name")

	var first bytes.Buffer
	require.NoError(t, exports.WriteCSV(&first, dumped))

	parsed, err := exports.ReadCSV(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)

	dst := sqlitetest.Open(t)
	n, err := exports.Load(ctx, dst, "clients", parsed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reloaded, err := exports.Dump(ctx, dst, "clients")
	require.NoError(t, err)
	var second bytes.Buffer
	require.NoError(t, exports.WriteCSV(&second, reloaded))
	assert.Equal(t, first.String(), second.String())

	c, found, err := clients.FindByName(ctx, dst, "Juan")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "555-1234", c.Phone)
	assert.Equal(t, "paga, en efectivo", c.Notes)
}

func TestLoadReplacesAndCascades(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	_, err := repairs.Add(ctx, db, nil, "", repairs.RepairInput{ClientName: "Juan", Brand: "LG"})
	require.NoError(t, err)

	n, err := exports.Load(ctx, db, "clients", exports.Table{
		Columns: []string{"id", "name", "phone"},
		Rows:    [][]any{{int64(7), "Eva", ""}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := clients.List(ctx, db)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(7), list[0].ID)
	assert.Empty(t, list[0].Phone)

	left, err := exports.Dump(ctx, db, "repairs")
	require.NoError(t, err)
	assert.Empty(t, left.Rows, "repairs of replaced clients are removed")

	dumped, err := exports.Dump(ctx, db, "clients")
	require.NoError(t, err)
	phone := -1
	for i, col := range dumped.Columns {
		if col == "phone" {
			phone = i
		}
	}
	require.GreaterOrEqual(t, phone, 0)
	assert.Nil(t, dumped.Rows[0][phone], "empty strings load as NULL")
}

func TestLoadRejectsBadInput(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	_, err := clients.Add(ctx, db, nil, "", clients.ClientInput{Name: "Juan"})
	require.NoError(t, err)

	_, err = exports.Load(ctx, db, "clients", exports.Table{Columns: []string{"name", "hacked"}, Rows: [][]any{{"x", "y"}}})
	assert.ErrorIs(t, err, exports.ErrUnknownColumn)
	_, err = exports.Load(ctx, db, "clients", exports.Table{Columns: []string{"name"}, Rows: [][]any{{"x", "y"}}})
	assert.ErrorIs(t, err, exports.ErrRowWidth)
	_, err = exports.Load(ctx, db, "clients", exports.Table{})
	assert.ErrorIs(t, err, exports.ErrUnknownColumn)
	_, err = exports.Load(ctx, db, "clients", exports.Table{Columns: []string{"name"}, Rows: [][]any{{"A"}, {"A"}}})
	assert.Error(t, err, "unique violation aborts the load")

	list, err := clients.List(ctx, db)
	require.NoError(t, err)
	require.Len(t, list, 1, "a failed load leaves the table untouched")
	assert.Equal(t, "Juan", list[0].Name)
}

func TestAllowList(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	for _, table := range []string{"audit_logs", "password_resets", "meta", "clients; DROP TABLE users"} {
		_, err := exports.Dump(ctx, db, table)
		assert.ErrorIs(t, err, exports.ErrTableNotAllowed, table)
		_, err = exports.Load(ctx, db, table, exports.Table{Columns: []string{"id"}})
		assert.ErrorIs(t, err, exports.ErrTableNotAllowed, table)
	}
	for _, table := range exports.Tables {
		_, err := exports.Dump(ctx, db, table)
		assert.NoError(t, err, table)
	}
}

func TestReadCSV(t *testing.T) {
	_, err := exports.ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	tbl, err := exports.ReadCSV(strings.NewReader("id,name\n1,\"Perez, Ana\"\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, tbl.Columns)
	assert.Equal(t, [][]any{{"1", "Perez, Ana"}}, tbl.Rows)
}
