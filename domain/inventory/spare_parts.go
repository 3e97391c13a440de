package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"repairdesk/domain/branches"
	"repairdesk/infrastructure/audit"
	"repairdesk/infrastructure/money"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

var (
	ErrSparePartExists = errors.New("spare part already exists in this branch")
	ErrSameBranch      = errors.New("source and destination branch are the same")
)

type SparePartInput struct {
	Name     string
	Stock    int64
	MinStock int64
	Supplier string
	Price    float64
	BranchID *int64
}

// SparePartUpdate changes only the fields that are non-nil. Stock is not
// here: it moves through UseSparePart, Restock and TransferSparePart.
type SparePartUpdate struct {
	Name     *string
	MinStock *int64
	Supplier *string
	Price    *float64
}

// AddSparePart inserts a spare part. (name, branch) identifies a part.
func AddSparePart(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, in SparePartInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return 0, ErrNameRequired
	}
	if in.Stock < 0 || in.MinStock < 0 {
		return 0, ErrNegativeQuantity
	}
	if money.IsNegative(in.Price) {
		return 0, ErrNegativePrice
	}

	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := branches.Require(ctx, tx, in.BranchID); err != nil {
			return err
		}
		var err error
		id, err = insertSparePart(ctx, tx, in)
		if err != nil {
			return err
		}
		return auditSvc.Write(ctx, tx, userName, audit.ActionCreate, "spare_parts", id, nil, in)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertSparePart(ctx context.Context, tx bun.Tx, in SparePartInput) (int64, error) {
	id, err := sqlite.LastInsertID(ctx, tx, `
INSERT INTO spare_parts (name, stock, min_stock, supplier, price, branch_id)
VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, in.Stock, in.MinStock, sqlite.NullIfEmpty(in.Supplier), money.Round(in.Price), sqlite.NullableID(in.BranchID))
	if sqlite.IsUniqueViolation(err) {
		return 0, ErrSparePartExists
	}
	return id, err
}

func GetSparePart(ctx context.Context, db *sqlite.DB, id int64) (models.SparePart, bool, error) {
	var sp models.SparePart
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&sp).Where("sp.id = ?", id).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.SparePart{}, false, nil
	}
	if err != nil {
		return models.SparePart{}, false, err
	}
	return sp, true, nil
}

// FindSparePart looks a part up by name within branch (global when nil).
func FindSparePart(ctx context.Context, db *sqlite.DB, name string, branch *int64) (models.SparePart, bool, error) {
	var sp models.SparePart
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&sp).
			Where("sp.name = ?", strings.TrimSpace(name)).
			Where("COALESCE(sp.branch_id, 0) = ?", branchKey(branch)).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.SparePart{}, false, nil
	}
	if err != nil {
		return models.SparePart{}, false, err
	}
	return sp, true, nil
}

func UpdateSparePart(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64, upd SparePartUpdate) (bool, error) {
	if upd.MinStock != nil && *upd.MinStock < 0 {
		return false, ErrNegativeQuantity
	}
	if upd.Price != nil && money.IsNegative(*upd.Price) {
		return false, ErrNegativePrice
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return false, ErrNameRequired
	}

	updated := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Table("spare_parts").Where("id = ?", id)
		n := 0
		if upd.Name != nil {
			q = q.Set("name = ?", strings.TrimSpace(*upd.Name))
			n++
		}
		if upd.MinStock != nil {
			q = q.Set("min_stock = ?", *upd.MinStock)
			n++
		}
		if upd.Supplier != nil {
			q = q.Set("supplier = ?", sqlite.NullIfEmpty(*upd.Supplier))
			n++
		}
		if upd.Price != nil {
			q = q.Set("price = ?", money.Round(*upd.Price))
			n++
		}
		if n == 0 {
			return nil
		}
		res, err := q.Exec(ctx)
		if err != nil {
			if sqlite.IsUniqueViolation(err) {
				return ErrSparePartExists
			}
			return fmt.Errorf("update spare part: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil
		}
		updated = true
		return auditSvc.Write(ctx, tx, userName, audit.ActionUpdate, "spare_parts", id, nil, upd)
	})
	return updated, err
}

func DeleteSparePart(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64) (bool, error) {
	deleted := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		n, err := sqlite.RowsAffected(ctx, tx, `DELETE FROM spare_parts WHERE id = ?`, id)
		if err != nil || n == 0 {
			return err
		}
		deleted = true
		return auditSvc.Write(ctx, tx, userName, audit.ActionDelete, "spare_parts", id, nil, nil)
	})
	return deleted, err
}

// ListSpareParts returns parts in branch, or all parts when branch is nil or unknown.
func ListSpareParts(ctx context.Context, db *sqlite.DB, branch *int64) ([]models.SparePart, error) {
	parts := make([]models.SparePart, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		q := tx.NewSelect().Model(&parts).OrderExpr("sp.name ASC, sp.id ASC")
		if resolved != nil {
			q = q.Where("sp.branch_id = ?", *resolved)
		}
		return q.Scan(ctx)
	})
	return parts, err
}

// decrement takes qty from part id only if enough is in stock. The check and
// the write are one statement under the writer lock.
func decrement(ctx context.Context, tx bun.Tx, id, qty int64) (bool, error) {
	n, err := sqlite.RowsAffected(ctx, tx, `UPDATE spare_parts SET stock = stock - ? WHERE id = ? AND stock >= ?`, qty, id, qty)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UseSparePart takes qty units out of stock. It reports false, changing
// nothing, when the part is unknown or holds fewer than qty units.
func UseSparePart(ctx context.Context, db *sqlite.DB, id, qty int64) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	used := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		used, err = decrement(ctx, tx, id, qty)
		return err
	})
	return used, err
}

// Restock adds qty units to part id.
func Restock(ctx context.Context, db *sqlite.DB, id, qty int64) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	restocked := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		n, err := sqlite.RowsAffected(ctx, tx, `UPDATE spare_parts SET stock = stock + ? WHERE id = ?`, qty, id)
		restocked = n == 1
		return err
	})
	return restocked, err
}

// AssignToRepair takes qty units of part out of stock and records them
// against repair. Either both happen or neither does; false means the repair
// or part is unknown or the stock is insufficient.
func AssignToRepair(ctx context.Context, db *sqlite.DB, repairID, sparePartID, qty int64) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	assigned := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM repairs WHERE id = ?`, repairID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		ok, err = decrement(ctx, tx, sparePartID, qty)
		if err != nil || !ok {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO repair_spare_parts (repair_id, spare_part_id, quantity)
VALUES (?, ?, ?)
ON CONFLICT (repair_id, spare_part_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
			repairID, sparePartID, qty); err != nil {
			return err
		}
		assigned = true
		return nil
	})
	return assigned, err
}

// TransferSparePart moves qty units of the part called name from one branch
// to another, creating the destination row when it does not exist yet. It
// reports false, changing nothing, when the source lacks the stock.
func TransferSparePart(ctx context.Context, db *sqlite.DB, name string, from, to *int64, qty int64) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrNameRequired
	}
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	if branchKey(from) == branchKey(to) {
		return false, ErrSameBranch
	}

	moved := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := branches.Require(ctx, tx, from); err != nil {
			return err
		}
		if err := branches.Require(ctx, tx, to); err != nil {
			return err
		}

		var src models.SparePart
		err := tx.NewSelect().Model(&src).
			Where("sp.name = ?", name).
			Where("COALESCE(sp.branch_id, 0) = ?", branchKey(from)).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		ok, err := decrement(ctx, tx, src.ID, qty)
		if err != nil || !ok {
			return err
		}

		n, err := sqlite.RowsAffected(ctx, tx, `
UPDATE spare_parts SET stock = stock + ?
WHERE name = ? AND COALESCE(branch_id, 0) = ?`, qty, name, branchKey(to))
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := insertSparePart(ctx, tx, SparePartInput{
				Name:     name,
				Stock:    qty,
				MinStock: src.MinStock,
				Supplier: src.Supplier,
				Price:    src.Price,
				BranchID: to,
			}); err != nil {
				return err
			}
		}
		moved = true
		return nil
	})
	return moved, err
}

// LowStockItem is a product or spare part at or below its minimum.
type LowStockItem struct {
	Kind     string `bun:"kind"`
	ID       int64  `bun:"id"`
	Name     string `bun:"name"`
	Quantity int64  `bun:"quantity"`
	MinStock int64  `bun:"min_stock"`
	BranchID *int64 `bun:"branch_id"`
}

const (
	KindProduct   = "product"
	KindSparePart = "spare_part"
)

// LowStock lists products and spare parts whose quantity is at or below
// their minimum, ordered by quantity then name. limit <= 0 means no limit.
func LowStock(ctx context.Context, db *sqlite.DB, limit int, branch *int64) ([]LowStockItem, error) {
	items := make([]LowStockItem, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		filter := ""
		args := []any{}
		if resolved != nil {
			filter = " AND branch_id = ?"
			args = append(args, *resolved, *resolved)
		}
		query := `
SELECT 'product' AS kind, id, name, quantity, min_stock, branch_id
FROM products WHERE quantity <= min_stock` + filter + `
UNION ALL
SELECT 'spare_part' AS kind, id, name, stock AS quantity, min_stock, branch_id
FROM spare_parts WHERE stock <= min_stock` + filter + `
ORDER BY quantity ASC, name ASC, kind ASC, id ASC`
		if limit > 0 {
			query += " LIMIT ?"
			args = append(args, limit)
		}
		return tx.NewRaw(query, args...).Scan(ctx, &items)
	})
	return items, err
}
