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
	ErrNameRequired     = errors.New("name is required")
	ErrNegativeQuantity = errors.New("quantity and minimum stock must not be negative")
	ErrNegativePrice    = errors.New("cost and price must not be negative")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrProductExists    = errors.New("product already exists")
	ErrSKUExists        = errors.New("sku already exists")
)

type ProductInput struct {
	SKU      string
	Name     string
	Category string
	Quantity int64
	MinStock int64
	Cost     float64
	Price    float64
	Location string
	Supplier string
	Notes    string
	BranchID *int64
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if in.Quantity < 0 || in.MinStock < 0 {
		return ErrNegativeQuantity
	}
	if money.IsNegative(in.Cost) || money.IsNegative(in.Price) {
		return ErrNegativePrice
	}
	return nil
}

// ProductUpdate changes only the fields that are non-nil.
type ProductUpdate struct {
	SKU      *string
	Name     *string
	Category *string
	Quantity *int64
	MinStock *int64
	Cost     *float64
	Price    *float64
	Location *string
	Supplier *string
	Notes    *string
}

// ProductView is the detailed product projection.
type ProductView struct {
	models.Product `bun:",extend"`
	BranchName     string  `bun:"branch_name"`
	StockValue     float64 `bun:"stock_value"`
	Low            bool    `bun:"low"`
}

// AddProduct inserts a product. With a SKU, the SKU must be unique; without
// one, the name must be unique within the branch.
func AddProduct(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, in ProductInput) (int64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)

	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := branches.Require(ctx, tx, in.BranchID); err != nil {
			return err
		}
		if in.SKU != "" {
			exists, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM products WHERE sku = ?`, in.SKU)
			if err != nil {
				return err
			}
			if exists {
				return ErrSKUExists
			}
		} else {
			exists, err := sqlite.Exists(ctx, tx, `
SELECT COUNT(1) FROM products
WHERE name = ? AND COALESCE(branch_id, 0) = ?`, in.Name, branchKey(in.BranchID))
			if err != nil {
				return err
			}
			if exists {
				return ErrProductExists
			}
		}

		var err error
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO products (sku, name, category, quantity, min_stock, cost, price, location, supplier, notes, branch_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sqlite.NullIfEmpty(in.SKU), in.Name, sqlite.NullIfEmpty(in.Category), in.Quantity, in.MinStock,
			money.Round(in.Cost), money.Round(in.Price), sqlite.NullIfEmpty(in.Location),
			sqlite.NullIfEmpty(in.Supplier), sqlite.NullIfEmpty(in.Notes), sqlite.NullableID(in.BranchID))
		if sqlite.IsUniqueViolation(err) {
			return ErrSKUExists
		}
		if err != nil {
			return err
		}
		return auditSvc.Write(ctx, tx, userName, audit.ActionCreate, "products", id, nil, in)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func branchKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func GetProduct(ctx context.Context, db *sqlite.DB, id int64) (models.Product, bool, error) {
	var p models.Product
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&p).Where("p.id = ?", id).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, false, nil
	}
	if err != nil {
		return models.Product{}, false, err
	}
	return p, true, nil
}

// FindProductBySKU looks a product up by SKU.
func FindProductBySKU(ctx context.Context, db *sqlite.DB, sku string) (models.Product, bool, error) {
	var p models.Product
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&p).Where("p.sku = ?", strings.TrimSpace(sku)).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, false, nil
	}
	if err != nil {
		return models.Product{}, false, err
	}
	return p, true, nil
}

func UpdateProduct(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64, upd ProductUpdate) (bool, error) {
	if (upd.Quantity != nil && *upd.Quantity < 0) || (upd.MinStock != nil && *upd.MinStock < 0) {
		return false, ErrNegativeQuantity
	}
	if (upd.Cost != nil && money.IsNegative(*upd.Cost)) || (upd.Price != nil && money.IsNegative(*upd.Price)) {
		return false, ErrNegativePrice
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return false, ErrNameRequired
	}

	updated := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Table("products").Where("id = ?", id)
		n := 0
		set := func(col string, v any) {
			q = q.Set("? = ?", bun.Ident(col), v)
			n++
		}
		if upd.SKU != nil {
			set("sku", sqlite.NullIfEmpty(*upd.SKU))
		}
		if upd.Name != nil {
			set("name", strings.TrimSpace(*upd.Name))
		}
		if upd.Category != nil {
			set("category", sqlite.NullIfEmpty(*upd.Category))
		}
		if upd.Quantity != nil {
			set("quantity", *upd.Quantity)
		}
		if upd.MinStock != nil {
			set("min_stock", *upd.MinStock)
		}
		if upd.Cost != nil {
			set("cost", money.Round(*upd.Cost))
		}
		if upd.Price != nil {
			set("price", money.Round(*upd.Price))
		}
		if upd.Location != nil {
			set("location", sqlite.NullIfEmpty(*upd.Location))
		}
		if upd.Supplier != nil {
			set("supplier", sqlite.NullIfEmpty(*upd.Supplier))
		}
		if upd.Notes != nil {
			set("notes", sqlite.NullIfEmpty(*upd.Notes))
		}
		if n == 0 {
			return nil
		}

		var before models.Product
		if err := tx.NewSelect().Model(&before).Where("p.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if _, err := q.Exec(ctx); err != nil {
			if sqlite.IsUniqueViolation(err) {
				return ErrSKUExists
			}
			return fmt.Errorf("update product: %w", err)
		}
		var after models.Product
		if err := tx.NewSelect().Model(&after).Where("p.id = ?", id).Scan(ctx); err != nil {
			return err
		}
		updated = true
		return auditSvc.Write(ctx, tx, userName, audit.ActionUpdate, "products", id, before, after)
	})
	return updated, err
}

func DeleteProduct(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64) (bool, error) {
	deleted := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		n, err := sqlite.RowsAffected(ctx, tx, `DELETE FROM products WHERE id = ?`, id)
		if err != nil || n == 0 {
			return err
		}
		deleted = true
		return auditSvc.Write(ctx, tx, userName, audit.ActionDelete, "products", id, nil, nil)
	})
	return deleted, err
}

// ListProducts returns products in branch, or all products when branch is nil
// or unknown.
func ListProducts(ctx context.Context, db *sqlite.DB, branch *int64) ([]models.Product, error) {
	products := make([]models.Product, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		q := tx.NewSelect().Model(&products).OrderExpr("p.name ASC, p.id ASC")
		if resolved != nil {
			q = q.Where("p.branch_id = ?", *resolved)
		}
		return q.Scan(ctx)
	})
	return products, err
}

// ListProductsDetailed adds the branch name, stock value and low-stock flag.
func ListProductsDetailed(ctx context.Context, db *sqlite.DB, branch *int64) ([]ProductView, error) {
	rows := make([]ProductView, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		q := tx.NewSelect().Model(&rows).
			ColumnExpr("p.*").
			ColumnExpr("COALESCE(br.name, '') AS branch_name").
			ColumnExpr("ROUND(p.quantity * p.cost, 2) AS stock_value").
			ColumnExpr("p.quantity <= p.min_stock AS low").
			Join("LEFT JOIN branches AS br ON br.id = p.branch_id").
			OrderExpr("p.name ASC, p.id ASC")
		if resolved != nil {
			q = q.Where("p.branch_id = ?", *resolved)
		}
		return q.Scan(ctx)
	})
	return rows, err
}
