package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

// WithWriteTx runs fn in an explicit write transaction. The writer handle takes
// the database lock at BEGIN, so reads inside fn are not raced by other writers.
// Any error returned by fn rolls the transaction back.
func (db *DB) WithWriteTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	if db == nil || db.W == nil {
		return fmt.Errorf("write db is not initialized")
	}
	err := db.W.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
	if err != nil && db.Logger != nil {
		db.Logger.Debug("write transaction rolled back", "path", db.Path, "error", err)
	}
	return err
}

// WithReadTx runs fn in an explicit read transaction.
func (db *DB) WithReadTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	if db == nil || db.R == nil {
		return fmt.Errorf("read db is not initialized")
	}
	return db.R.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

// Exists reports whether query returns a positive count.
func Exists(ctx context.Context, tx bun.Tx, query string, args ...any) (bool, error) {
	var count int
	if err := tx.NewRaw(query, args...).Scan(ctx, &count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// LastInsertID executes an INSERT and returns the new row id.
func LastInsertID(ctx context.Context, tx bun.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RowsAffected executes a statement and returns how many rows it touched.
func RowsAffected(ctx context.Context, tx bun.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
