// Package reports holds read-only rollups for dashboards and exports. An
// unknown branch id is treated as no branch filter.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"repairdesk/domain/branches"
	"repairdesk/domain/inventory"
	"repairdesk/infrastructure/money"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

type Counts struct {
	Clients        int64
	Devices        int64
	Products       int64
	PendingRepairs int64
}

// GetCounts returns the dashboard counters. Products and pending repairs
// follow the branch filter. A count that fails is reported as zero and its
// error is joined into the returned error.
func GetCounts(ctx context.Context, db *sqlite.DB, branch *int64) (Counts, error) {
	var c Counts
	var errs []error
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		count := func(name string, dest *int64, query string, args ...any) {
			if err := tx.NewRaw(query, args...).Scan(ctx, dest); err != nil {
				*dest = 0
				db.Logger.Warn("count failed", "count", name, "error", err)
				errs = append(errs, fmt.Errorf("count %s: %w", name, err))
			}
		}
		count("clients", &c.Clients, `SELECT COUNT(1) FROM clients`)
		count("devices", &c.Devices, `SELECT COUNT(1) FROM devices`)
		if resolved != nil {
			count("products", &c.Products, `SELECT COUNT(1) FROM products WHERE branch_id = ?`, *resolved)
			count("pending_repairs", &c.PendingRepairs, `SELECT COUNT(1) FROM repairs WHERE status = ? AND branch_id = ?`, models.RepairStatusPending, *resolved)
		} else {
			count("products", &c.Products, `SELECT COUNT(1) FROM products`)
			count("pending_repairs", &c.PendingRepairs, `SELECT COUNT(1) FROM repairs WHERE status = ?`, models.RepairStatusPending)
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return c, errors.Join(errs...)
}

// LowStock lists products and spare parts at or below their minimum.
func LowStock(ctx context.Context, db *sqlite.DB, limit int, branch *int64) ([]inventory.LowStockItem, error) {
	return inventory.LowStock(ctx, db, limit, branch)
}

// TechnicianStats is one row of the productivity report.
type TechnicianStats struct {
	Technician        string  `bun:"technician"`
	Completed         int64   `bun:"completed"`
	Pending           int64   `bun:"pending"`
	AvgEstimatedHours float64 `bun:"avg_hours"`
}

// Productivity counts completed and not-yet-completed repairs per technician
// and averages their estimated hours. Repairs without a technician are skipped.
func Productivity(ctx context.Context, db *sqlite.DB, branch *int64) ([]TechnicianStats, error) {
	rows := make([]TechnicianStats, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		q := tx.NewSelect().
			TableExpr("repairs AS r").
			ColumnExpr("r.technician AS technician").
			ColumnExpr("SUM(CASE WHEN r.status IN (?) THEN 1 ELSE 0 END) AS completed", bun.In(models.DoneRepairStatuses)).
			ColumnExpr("SUM(CASE WHEN r.status IN (?) THEN 0 ELSE 1 END) AS pending", bun.In(models.DoneRepairStatuses)).
			ColumnExpr("COALESCE(AVG(r.estimated_hours), 0.0) AS avg_hours").
			Where("COALESCE(r.technician, '') <> ''").
			GroupExpr("r.technician").
			OrderExpr("r.technician ASC")
		if resolved != nil {
			q = q.Where("r.branch_id = ?", *resolved)
		}
		return q.Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].AvgEstimatedHours = money.Round(rows[i].AvgEstimatedHours)
	}
	return rows, nil
}

// TechnicianLoad is one row of the workload report.
type TechnicianLoad struct {
	Technician  string  `bun:"technician"`
	OpenRepairs int64   `bun:"open_repairs"`
	Hours       float64 `bun:"hours"`
}

// Workload sums the open repairs and their estimated hours per technician,
// busiest first.
func Workload(ctx context.Context, db *sqlite.DB, branch *int64) ([]TechnicianLoad, error) {
	rows := make([]TechnicianLoad, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		q := tx.NewSelect().
			TableExpr("repairs AS r").
			ColumnExpr("r.technician AS technician").
			ColumnExpr("COUNT(1) AS open_repairs").
			ColumnExpr("TOTAL(r.estimated_hours) AS hours").
			Where("COALESCE(r.technician, '') <> ''").
			Where("r.status NOT IN (?)", bun.In(models.ClosedRepairStatuses)).
			GroupExpr("r.technician").
			OrderExpr("hours DESC, r.technician ASC")
		if resolved != nil {
			q = q.Where("r.branch_id = ?", *resolved)
		}
		return q.Scan(ctx, &rows)
	})
	return rows, err
}

// MonthSummary is one month of the financial summary.
type MonthSummary struct {
	Month  string
	Income float64
	Cost   float64
	Margin float64
}

type monthAmount struct {
	Month  string  `bun:"month"`
	Amount float64 `bun:"amount"`
}

// FinancialSummary returns, per YYYY-MM in ascending order, the invoiced
// income, the labor plus parts cost of repairs opened that month, and the
// difference.
func FinancialSummary(ctx context.Context, db *sqlite.DB, branch *int64) ([]MonthSummary, error) {
	var income, cost []monthAmount
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := branches.Resolve(ctx, tx, branch)
		if err != nil {
			return err
		}
		iq := tx.NewSelect().
			TableExpr("invoices AS i").
			ColumnExpr("strftime('%Y-%m', i.created_at) AS month").
			ColumnExpr("TOTAL(i.total) AS amount").
			GroupExpr("month")
		cq := tx.NewSelect().
			TableExpr("repairs AS r").
			ColumnExpr("strftime('%Y-%m', r.created_at) AS month").
			ColumnExpr("TOTAL(r.labor_cost + r.parts_cost) AS amount").
			Where("r.created_at IS NOT NULL").
			GroupExpr("month")
		if resolved != nil {
			iq = iq.Join("JOIN repairs AS r ON r.id = i.repair_id").Where("r.branch_id = ?", *resolved)
			cq = cq.Where("r.branch_id = ?", *resolved)
		}
		if err := iq.Scan(ctx, &income); err != nil {
			return err
		}
		return cq.Scan(ctx, &cost)
	})
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*MonthSummary)
	get := func(month string) *MonthSummary {
		if s, ok := byMonth[month]; ok {
			return s
		}
		s := &MonthSummary{Month: month}
		byMonth[month] = s
		return s
	}
	for _, m := range income {
		get(m.Month).Income = money.Round(m.Amount)
	}
	for _, m := range cost {
		get(m.Month).Cost = money.Round(m.Amount)
	}
	out := make([]MonthSummary, 0, len(byMonth))
	for _, s := range byMonth {
		s.Margin = money.Sub(s.Income, s.Cost)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// TasksByDate returns repairs opened on day's calendar date (UTC).
func TasksByDate(ctx context.Context, db *sqlite.DB, day time.Time) ([]models.Repair, error) {
	repairs := make([]models.Repair, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&repairs).
			Where("date(r.created_at) = ?", day.UTC().Format("2006-01-02")).
			OrderExpr("r.created_at ASC, r.id ASC").
			Scan(ctx)
	})
	return repairs, err
}
