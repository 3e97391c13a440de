package repairs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"repairdesk/domain/branches"
	"repairdesk/domain/clients"
	"repairdesk/domain/devices"
	"repairdesk/infrastructure/audit"
	"repairdesk/infrastructure/money"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

var (
	ErrDeviceRequired      = errors.New("a device id or a client name is required")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrNegativeAmount      = errors.New("amounts must not be negative")
	ErrDepositExceedsTotal = errors.New("deposit exceeds total")
)

// RepairInput describes a new repair. When DeviceID is zero the client and
// device are found or created from ClientName, Brand, Model and IMEI.
type RepairInput struct {
	DeviceID   int64
	ClientName string
	Brand      string
	Model      string
	IMEI       string

	Description          string
	Diagnosis            string
	Actions              string
	PartsUsed            string
	LaborCost            float64
	PartsCost            float64
	Deposit              float64
	Total                *float64 // defaults to LaborCost + PartsCost
	Status               string   // defaults to models.RepairStatusPending
	Priority             string
	Technician           string
	EstimatedHours       float64
	WarrantyDays         int64
	LockCode             string
	DataBackup           bool
	DeliveredAccessories string
	BranchID             *int64
	CreatedAt            time.Time // defaults to now
}

// RepairUpdate changes only the fields that are non-nil. Touching any amount
// recomputes the balance; setting Total also rewrites the legacy cost column.
type RepairUpdate struct {
	Description          *string
	Diagnosis            *string
	Actions              *string
	PartsUsed            *string
	LaborCost            *float64
	PartsCost            *float64
	Deposit              *float64
	Total                *float64
	Status               *string
	Priority             *string
	Technician           *string
	EstimatedHours       *float64
	WarrantyDays         *int64
	LockCode             *string
	DataBackup           *bool
	DeliveredAccessories *string
}

func (u RepairUpdate) touchesAmounts() bool {
	return u.LaborCost != nil || u.PartsCost != nil || u.Deposit != nil || u.Total != nil
}

// RepairView is a repair joined with its device and client.
type RepairView struct {
	models.Repair `bun:",extend"`
	ClientID      int64  `bun:"client_id"`
	ClientName    string `bun:"client_name"`
	Brand         string `bun:"brand"`
	Model         string `bun:"model"`
}

// PartUsage is one spare part consumed by a repair.
type PartUsage struct {
	SparePartID int64   `bun:"spare_part_id"`
	Name        string  `bun:"name"`
	Quantity    int64   `bun:"quantity"`
	Price       float64 `bun:"price"`
	Subtotal    float64 `bun:"-"`
}

// Amounts derives total and balance: total defaults to labor + parts and the
// balance never drops below zero.
func Amounts(labor, parts, deposit float64, total *float64) (float64, float64, error) {
	if money.IsNegative(labor) || money.IsNegative(parts) || money.IsNegative(deposit) {
		return 0, 0, ErrNegativeAmount
	}
	t := money.Add(labor, parts)
	if total != nil {
		if money.IsNegative(*total) {
			return 0, 0, ErrNegativeAmount
		}
		t = money.Round(*total)
	}
	if money.Cmp(deposit, t) > 0 {
		return 0, 0, ErrDepositExceedsTotal
	}
	return t, money.Floor0(t, deposit), nil
}

// Add creates a repair, finding or creating the client and device first when
// no device id is given. Everything happens in one transaction.
func Add(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, in RepairInput) (int64, error) {
	if in.DeviceID <= 0 && strings.TrimSpace(in.ClientName) == "" {
		return 0, ErrDeviceRequired
	}
	total, balance, err := Amounts(in.LaborCost, in.PartsCost, in.Deposit, in.Total)
	if err != nil {
		return 0, err
	}
	if in.EstimatedHours < 0 || in.WarrantyDays < 0 {
		return 0, ErrNegativeAmount
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = models.RepairStatusPending
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err = db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := branches.Require(ctx, tx, in.BranchID); err != nil {
			return err
		}
		deviceID := in.DeviceID
		if deviceID > 0 {
			ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM devices WHERE id = ?`, deviceID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrDeviceNotFound
			}
		} else {
			clientID, err := clients.FindOrCreate(ctx, tx, in.ClientName)
			if err != nil {
				return err
			}
			deviceID, err = devices.FindOrCreate(ctx, tx, clientID, in.Brand, in.Model, in.IMEI)
			if err != nil {
				return err
			}
		}

		var err error
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO repairs (
  device_id, description, diagnosis, actions, parts_used,
  labor_cost, parts_cost, deposit, total, balance, cost,
  status, priority, technician, estimated_hours, warranty_days,
  lock_code, data_backup, delivered_accessories, branch_id, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			deviceID, in.Description, sqlite.NullIfEmpty(in.Diagnosis), sqlite.NullIfEmpty(in.Actions), sqlite.NullIfEmpty(in.PartsUsed),
			money.Round(in.LaborCost), money.Round(in.PartsCost), money.Round(in.Deposit), total, balance, total,
			status, sqlite.NullIfEmpty(in.Priority), sqlite.NullIfEmpty(in.Technician), in.EstimatedHours, in.WarrantyDays,
			sqlite.NullIfEmpty(in.LockCode), in.DataBackup, sqlite.NullIfEmpty(in.DeliveredAccessories),
			sqlite.NullableID(in.BranchID), sqlite.FormatTime(createdAt))
		if err != nil {
			return err
		}
		return auditSvc.Write(ctx, tx, userName, audit.ActionCreate, "repairs", id, nil, in)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func Get(ctx context.Context, db *sqlite.DB, id int64) (models.Repair, bool, error) {
	var r models.Repair
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&r).Where("r.id = ?", id).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Repair{}, false, nil
	}
	if err != nil {
		return models.Repair{}, false, err
	}
	return r, true, nil
}

func Update(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64, upd RepairUpdate) (bool, error) {
	if (upd.EstimatedHours != nil && *upd.EstimatedHours < 0) || (upd.WarrantyDays != nil && *upd.WarrantyDays < 0) {
		return false, ErrNegativeAmount
	}

	updated := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Table("repairs").Where("id = ?", id)
		n := 0
		setText := func(col string, v *string) {
			if v != nil {
				q = q.Set("? = ?", bun.Ident(col), sqlite.NullIfEmpty(*v))
				n++
			}
		}
		setText("diagnosis", upd.Diagnosis)
		setText("actions", upd.Actions)
		setText("parts_used", upd.PartsUsed)
		setText("priority", upd.Priority)
		setText("technician", upd.Technician)
		setText("lock_code", upd.LockCode)
		setText("delivered_accessories", upd.DeliveredAccessories)
		if upd.Description != nil {
			q = q.Set("description = ?", *upd.Description)
			n++
		}
		if upd.Status != nil {
			status := strings.TrimSpace(*upd.Status)
			if status == "" {
				status = models.RepairStatusPending
			}
			q = q.Set("status = ?", status)
			n++
		}
		if upd.EstimatedHours != nil {
			q = q.Set("estimated_hours = ?", *upd.EstimatedHours)
			n++
		}
		if upd.WarrantyDays != nil {
			q = q.Set("warranty_days = ?", *upd.WarrantyDays)
			n++
		}
		if upd.DataBackup != nil {
			q = q.Set("data_backup = ?", *upd.DataBackup)
			n++
		}
		if n == 0 && !upd.touchesAmounts() {
			return nil
		}

		var before models.Repair
		if err := tx.NewSelect().Model(&before).Where("r.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		if upd.touchesAmounts() {
			labor, parts, deposit := before.LaborCost, before.PartsCost, before.Deposit
			if upd.LaborCost != nil {
				labor = *upd.LaborCost
			}
			if upd.PartsCost != nil {
				parts = *upd.PartsCost
			}
			if upd.Deposit != nil {
				deposit = *upd.Deposit
			}
			total := upd.Total
			if total == nil && upd.LaborCost == nil && upd.PartsCost == nil {
				total = &before.Total
			}
			t, balance, err := Amounts(labor, parts, deposit, total)
			if err != nil {
				return err
			}
			q = q.Set("labor_cost = ?", money.Round(labor)).
				Set("parts_cost = ?", money.Round(parts)).
				Set("deposit = ?", money.Round(deposit)).
				Set("total = ?", t).
				Set("cost = ?", t).
				Set("balance = ?", balance)
		}

		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("update repair: %w", err)
		}
		var after models.Repair
		if err := tx.NewSelect().Model(&after).Where("r.id = ?", id).Scan(ctx); err != nil {
			return err
		}
		updated = true
		return auditSvc.Write(ctx, tx, userName, audit.ActionUpdate, "repairs", id, before, after)
	})
	return updated, err
}

// SetStatus is shorthand for an Update that only changes the status.
func SetStatus(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64, status string) (bool, error) {
	return Update(ctx, db, auditSvc, userName, id, RepairUpdate{Status: &status})
}

func Delete(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64) (bool, error) {
	deleted := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var before models.Repair
		if err := tx.NewSelect().Model(&before).Where("r.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		n, err := sqlite.RowsAffected(ctx, tx, `DELETE FROM repairs WHERE id = ?`, id)
		if err != nil {
			return err
		}
		deleted = n > 0
		return auditSvc.Write(ctx, tx, userName, audit.ActionDelete, "repairs", id, before, nil)
	})
	return deleted, err
}

func ListByDevice(ctx context.Context, db *sqlite.DB, deviceID int64) ([]models.Repair, error) {
	repairs := make([]models.Repair, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&repairs).Where("r.device_id = ?", deviceID).OrderExpr("r.created_at ASC, r.id ASC").Scan(ctx)
	})
	return repairs, err
}

// Filter narrows ListDetailed. Zero values match everything; an unknown
// branch matches everything too.
type Filter struct {
	Status     string
	Technician string
	BranchID   *int64
}

// ListDetailed returns repairs newest first with device and client columns.
func ListDetailed(ctx context.Context, db *sqlite.DB, f Filter) ([]RepairView, error) {
	rows := make([]RepairView, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, f.BranchID)
		if err != nil {
			return err
		}
		q := tx.NewSelect().Model(&rows).
			ColumnExpr("r.*").
			ColumnExpr("d.client_id AS client_id").
			ColumnExpr("c.name AS client_name").
			ColumnExpr("COALESCE(d.brand, '') AS brand").
			ColumnExpr("COALESCE(d.model, '') AS model").
			Join("JOIN devices AS d ON d.id = r.device_id").
			Join("JOIN clients AS c ON c.id = d.client_id").
			OrderExpr("r.created_at DESC, r.id DESC")
		if f.Status != "" {
			q = q.Where("r.status = ?", f.Status)
		}
		if f.Technician != "" {
			q = q.Where("r.technician = ?", f.Technician)
		}
		if resolved != nil {
			q = q.Where("r.branch_id = ?", *resolved)
		}
		return q.Scan(ctx)
	})
	return rows, err
}

// PartsUsed lists the spare parts assigned to a repair.
func PartsUsed(ctx context.Context, db *sqlite.DB, repairID int64) ([]PartUsage, error) {
	parts := make([]PartUsage, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT rsp.spare_part_id, sp.name, rsp.quantity, sp.price
FROM repair_spare_parts rsp
JOIN spare_parts sp ON sp.id = rsp.spare_part_id
WHERE rsp.repair_id = ?
ORDER BY sp.name ASC`, repairID).Scan(ctx, &parts)
	})
	if err != nil {
		return nil, err
	}
	for i := range parts {
		parts[i].Subtotal = money.Mul(parts[i].Price, parts[i].Quantity)
	}
	return parts, nil
}
