package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/audit"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

var (
	ErrNameRequired = errors.New("client name is required")
	ErrClientExists = errors.New("client already exists")
)

type ClientInput struct {
	Name    string
	Phone   string
	Email   string
	Address string
	TaxID   string
	Notes   string
}

// ClientUpdate changes only the fields that are non-nil.
type ClientUpdate struct {
	Name    *string
	Phone   *string
	Email   *string
	Address *string
	TaxID   *string
	Notes   *string
}

func (u ClientUpdate) columns() map[string]*string {
	return map[string]*string{
		"name":    u.Name,
		"phone":   u.Phone,
		"email":   u.Email,
		"address": u.Address,
		"tax_id":  u.TaxID,
		"notes":   u.Notes,
	}
}

// ClientSummary is the detailed list projection.
type ClientSummary struct {
	ID             int64   `bun:"id"`
	Name           string  `bun:"name"`
	Phone          string  `bun:"phone"`
	Email          string  `bun:"email"`
	Devices        int64   `bun:"devices"`
	OpenRepairs    int64   `bun:"open_repairs"`
	OutstandingDue float64 `bun:"outstanding_due"`
}

func Add(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, in ClientInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return 0, ErrNameRequired
	}

	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		exists, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM clients WHERE name = ?`, in.Name)
		if err != nil {
			return err
		}
		if exists {
			return ErrClientExists
		}
		id, err = insert(ctx, tx, in)
		if err != nil {
			return err
		}
		return auditSvc.Write(ctx, tx, userName, audit.ActionCreate, "clients", id, nil, in)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insert(ctx context.Context, tx bun.Tx, in ClientInput) (int64, error) {
	return sqlite.LastInsertID(ctx, tx, `
INSERT INTO clients (name, phone, email, address, tax_id, notes)
VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, sqlite.NullIfEmpty(in.Phone), sqlite.NullIfEmpty(in.Email), sqlite.NullIfEmpty(in.Address),
		sqlite.NullIfEmpty(in.TaxID), sqlite.NullIfEmpty(in.Notes))
}

// FindOrCreate returns the id of the client called name, inserting it when
// absent. It runs inside the caller's transaction.
func FindOrCreate(ctx context.Context, tx bun.Tx, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrNameRequired
	}
	var id int64
	err := tx.NewRaw(`SELECT id FROM clients WHERE name = ?`, name).Scan(ctx, &id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return insert(ctx, tx, ClientInput{Name: name})
}

func FindByName(ctx context.Context, db *sqlite.DB, name string) (models.Client, bool, error) {
	return findOne(ctx, db, "c.name = ?", strings.TrimSpace(name))
}

func Get(ctx context.Context, db *sqlite.DB, id int64) (models.Client, bool, error) {
	return findOne(ctx, db, "c.id = ?", id)
}

func findOne(ctx context.Context, db *sqlite.DB, where string, arg any) (models.Client, bool, error) {
	var client models.Client
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&client).Where(where, arg).Limit(1).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, false, nil
	}
	if err != nil {
		return models.Client{}, false, err
	}
	return client, true, nil
}

// Update applies upd to client id. It reports false when the client does not
// exist or upd sets nothing.
func Update(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64, upd ClientUpdate) (bool, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return false, ErrNameRequired
		}
		upd.Name = &trimmed
	}

	updated := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Table("clients").Where("id = ?", id)
		n := 0
		for col, v := range upd.columns() {
			if v == nil {
				continue
			}
			q = q.Set("? = ?", bun.Ident(col), nullable(col, *v))
			n++
		}
		if n == 0 {
			return nil
		}

		var before models.Client
		if err := tx.NewSelect().Model(&before).Where("c.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if upd.Name != nil && *upd.Name != before.Name {
			exists, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM clients WHERE name = ? AND id <> ?`, *upd.Name, id)
			if err != nil {
				return err
			}
			if exists {
				return ErrClientExists
			}
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("update client: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return nil
		}
		var after models.Client
		if err := tx.NewSelect().Model(&after).Where("c.id = ?", id).Scan(ctx); err != nil {
			return err
		}
		updated = true
		return auditSvc.Write(ctx, tx, userName, audit.ActionUpdate, "clients", id, before, after)
	})
	return updated, err
}

func nullable(col, v string) any {
	if col == "name" {
		return v
	}
	return sqlite.NullIfEmpty(v)
}

// Delete removes the client; devices and their repairs go with it.
func Delete(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64) (bool, error) {
	deleted := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var before models.Client
		if err := tx.NewSelect().Model(&before).Where("c.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		n, err := sqlite.RowsAffected(ctx, tx, `DELETE FROM clients WHERE id = ?`, id)
		if err != nil {
			return err
		}
		deleted = n > 0
		return auditSvc.Write(ctx, tx, userName, audit.ActionDelete, "clients", id, before, nil)
	})
	return deleted, err
}

func List(ctx context.Context, db *sqlite.DB) ([]models.Client, error) {
	clients := make([]models.Client, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&clients).OrderExpr("c.name ASC").Scan(ctx)
	})
	return clients, err
}

// ListDetailed returns every client with device, open repair and balance totals.
func ListDetailed(ctx context.Context, db *sqlite.DB) ([]ClientSummary, error) {
	rows := make([]ClientSummary, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT c.id, c.name, COALESCE(c.phone, '') AS phone, COALESCE(c.email, '') AS email,
       (SELECT COUNT(1) FROM devices d WHERE d.client_id = c.id) AS devices,
       (SELECT COUNT(1) FROM repairs r JOIN devices d ON d.id = r.device_id
         WHERE d.client_id = c.id AND r.status NOT IN (?)) AS open_repairs,
       (SELECT TOTAL(i.balance) FROM invoices i WHERE i.client_id = c.id) AS outstanding_due
FROM clients c
ORDER BY c.name ASC`, bun.In(models.ClosedRepairStatuses)).Scan(ctx, &rows)
	})
	return rows, err
}
