// Package branches manages sucursales and the configuration scoped to them.
// A nil branch id means the global scope.
package branches

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

var (
	ErrNameRequired  = errors.New("branch name is required")
	ErrBranchExists  = errors.New("branch already exists")
	ErrUnknownBranch = errors.New("unknown branch")
	ErrKeyRequired   = errors.New("config key is required")
)

func Add(ctx context.Context, db *sqlite.DB, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrNameRequired
	}
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		id, err = sqlite.LastInsertID(ctx, tx, `INSERT INTO branches (name) VALUES (?)`, name)
		if sqlite.IsUniqueViolation(err) {
			return ErrBranchExists
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func List(ctx context.Context, db *sqlite.DB) ([]models.Branch, error) {
	branches := make([]models.Branch, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&branches).OrderExpr("br.name ASC").Scan(ctx)
	})
	return branches, err
}

// Resolve returns id when it names an existing branch and nil otherwise, so
// an unknown branch behaves like no branch at all.
func Resolve(ctx context.Context, tx bun.Tx, id *int64) (*int64, error) {
	if id == nil {
		return nil, nil
	}
	var count int
	if err := tx.NewRaw(`SELECT COUNT(1) FROM branches WHERE id = ?`, *id).Scan(ctx, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	resolved := *id
	return &resolved, nil
}

// Require is Resolve for writes: an unknown branch is an error instead.
func Require(ctx context.Context, tx bun.Tx, id *int64) error {
	resolved, err := Resolve(ctx, tx, id)
	if err != nil {
		return err
	}
	if id != nil && resolved == nil {
		return ErrUnknownBranch
	}
	return nil
}

// GetConfig returns the branch value for key, else the global value, else def.
func GetConfig(ctx context.Context, db *sqlite.DB, key string, branch *int64, def string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return def, ErrKeyRequired
	}
	value := def
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		if resolved != nil {
			v, ok, err := lookup(ctx, tx, key, resolved)
			if err != nil || ok {
				value = v
				return err
			}
		}
		v, ok, err := lookup(ctx, tx, key, nil)
		if ok {
			value = v
		}
		return err
	})
	if err != nil {
		return def, err
	}
	return value, nil
}

func lookup(ctx context.Context, tx bun.Tx, key string, branch *int64) (string, bool, error) {
	var value sql.NullString
	q := tx.NewSelect().Table("config").Column("value").Where("key = ?", key).Limit(1)
	if branch == nil {
		q = q.Where("branch_id IS NULL")
	} else {
		q = q.Where("branch_id = ?", *branch)
	}
	err := q.Scan(ctx, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value.String, true, nil
}

// SetConfig upserts the value of key in branch (global when nil).
func SetConfig(ctx context.Context, db *sqlite.DB, key, value string, branch *int64) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrKeyRequired
	}
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := Require(ctx, tx, branch); err != nil {
			return err
		}
		q := tx.NewUpdate().Table("config").Set("value = ?", value).Where("key = ?", key)
		if branch == nil {
			q = q.Where("branch_id IS NULL")
		} else {
			q = q.Where("branch_id = ?", *branch)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO config (key, value, branch_id) VALUES (?, ?, ?)`, key, value, sqlite.NullableID(branch))
		return err
	})
}

// EffectiveConfig returns every key visible from branch, with branch values
// overriding global ones.
func EffectiveConfig(ctx context.Context, db *sqlite.DB, branch *int64) (map[string]string, error) {
	out := make(map[string]string)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		var entries []models.ConfigEntry
		q := tx.NewSelect().Model(&entries).Where("cfg.branch_id IS NULL")
		if resolved != nil {
			q = q.WhereOr("cfg.branch_id = ?", *resolved)
		}
		// Global rows first so branch rows overwrite them below.
		if err := q.OrderExpr("cfg.branch_id IS NOT NULL, cfg.id").Scan(ctx); err != nil {
			return err
		}
		for _, e := range entries {
			out[e.Key] = e.Value
		}
		return nil
	})
	return out, err
}
