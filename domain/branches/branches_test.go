package branches_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"repairdesk/domain/branches"
	"repairdesk/infrastructure/sqlite/sqlitetest"
)

func ptr[T any](v T) *T { return &v }

func TestAddAndList(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := branches.Add(ctx, db, "Norte")
	require.NoError(t, err)
	_, err = branches.Add(ctx, db, "Centro")
	require.NoError(t, err)
	_, err = branches.Add(ctx, db, " Centro ")
	assert.ErrorIs(t, err, branches.ErrBranchExists)
	_, err = branches.Add(ctx, db, "")
	assert.ErrorIs(t, err, branches.ErrNameRequired)

	list, err := branches.List(ctx, db)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Centro", list[0].Name)
}

func TestResolveAndRequire(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	id, err := branches.Add(ctx, db, "Centro")
	require.NoError(t, err)

	err = db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		got, err := branches.Resolve(ctx, tx, &id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, *got)

		got, err = branches.Resolve(ctx, tx, ptr(int64(404)))
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = branches.Resolve(ctx, tx, nil)
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.NoError(t, branches.Require(ctx, tx, nil))
		assert.NoError(t, branches.Require(ctx, tx, &id))
		assert.ErrorIs(t, branches.Require(ctx, tx, ptr(int64(404))), branches.ErrUnknownBranch)
		return nil
	})
	require.NoError(t, err)
}

func TestConfigFallsBackFromBranchToGlobal(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	centro, err := branches.Add(ctx, db, "Centro")
	require.NoError(t, err)
	norte, err := branches.Add(ctx, db, "Norte")
	require.NoError(t, err)

	v, err := branches.GetConfig(ctx, db, "iva", &centro, "21")
	require.NoError(t, err)
	assert.Equal(t, "21", v)

	require.NoError(t, branches.SetConfig(ctx, db, "iva", "16", nil))
	require.NoError(t, branches.SetConfig(ctx, db, "iva", "10", &centro))
	require.NoError(t, branches.SetConfig(ctx, db, "moneda", "EUR", nil))

	v, err = branches.GetConfig(ctx, db, "iva", &centro, "21")
	require.NoError(t, err)
	assert.Equal(t, "10", v)
	v, err = branches.GetConfig(ctx, db, "iva", &norte, "21")
	require.NoError(t, err)
	assert.Equal(t, "16", v)
	v, err = branches.GetConfig(ctx, db, "iva", ptr(int64(404)), "21")
	require.NoError(t, err)
	assert.Equal(t, "16", v, "unknown branch reads the global value")

	require.NoError(t, branches.SetConfig(ctx, db, "iva", "12", &centro))
	v, err = branches.GetConfig(ctx, db, "iva", &centro, "21")
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	assert.ErrorIs(t, branches.SetConfig(ctx, db, "iva", "1", ptr(int64(404))), branches.ErrUnknownBranch)
	assert.ErrorIs(t, branches.SetConfig(ctx, db, " ", "1", nil), branches.ErrKeyRequired)
	_, err = branches.GetConfig(ctx, db, "", nil, "x")
	assert.ErrorIs(t, err, branches.ErrKeyRequired)

	eff, err := branches.EffectiveConfig(ctx, db, &centro)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"iva": "12", "moneda": "EUR"}, eff)
	eff, err = branches.EffectiveConfig(ctx, db, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"iva": "16", "moneda": "EUR"}, eff)
}
