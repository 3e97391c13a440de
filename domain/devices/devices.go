package devices

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
	ErrClientNotFound = errors.New("client not found")
	ErrSerialExists   = errors.New("serial number already registered")
)

type DeviceInput struct {
	ClientID    int64
	Brand       string
	Model       string
	IMEI        string
	Serial      string
	Color       string
	Accessories string
}

// DeviceUpdate changes only the fields that are non-nil.
type DeviceUpdate struct {
	Brand       *string
	Model       *string
	IMEI        *string
	Serial      *string
	Color       *string
	Accessories *string
}

func (u DeviceUpdate) columns() map[string]*string {
	return map[string]*string{
		"brand":       u.Brand,
		"model":       u.Model,
		"imei":        u.IMEI,
		"serial":      u.Serial,
		"color":       u.Color,
		"accessories": u.Accessories,
	}
}

// DeviceView is a device joined with its owner.
type DeviceView struct {
	ID          int64  `bun:"id"`
	ClientID    int64  `bun:"client_id"`
	ClientName  string `bun:"client_name"`
	Brand       string `bun:"brand"`
	Model       string `bun:"model"`
	IMEI        string `bun:"imei"`
	Serial      string `bun:"serial"`
	Color       string `bun:"color"`
	Accessories string `bun:"accessories"`
	Repairs     int64  `bun:"repairs"`
}

// Add inserts a device. A duplicate serial is caught by the unique index.
func Add(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, in DeviceInput) (int64, error) {
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM clients WHERE id = ?`, in.ClientID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrClientNotFound
		}
		id, err = insert(ctx, tx, in)
		if err != nil {
			return err
		}
		return auditSvc.Write(ctx, tx, userName, audit.ActionCreate, "devices", id, nil, in)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insert(ctx context.Context, tx bun.Tx, in DeviceInput) (int64, error) {
	id, err := sqlite.LastInsertID(ctx, tx, `
INSERT INTO devices (client_id, brand, model, imei, serial, color, accessories)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ClientID, strings.TrimSpace(in.Brand), strings.TrimSpace(in.Model), sqlite.NullIfEmpty(in.IMEI),
		sqlite.NullIfEmpty(in.Serial), sqlite.NullIfEmpty(in.Color), sqlite.NullIfEmpty(in.Accessories))
	if sqlite.IsUniqueViolation(err) {
		return 0, ErrSerialExists
	}
	return id, err
}

// FindOrCreate returns the device matching (client, brand, model, IMEI),
// inserting it when absent. It runs inside the caller's transaction.
func FindOrCreate(ctx context.Context, tx bun.Tx, clientID int64, brand, model, imei string) (int64, error) {
	brand, model, imei = strings.TrimSpace(brand), strings.TrimSpace(model), strings.TrimSpace(imei)
	var id int64
	err := tx.NewRaw(`
SELECT id FROM devices
WHERE client_id = ? AND COALESCE(brand, '') = ? AND COALESCE(model, '') = ? AND COALESCE(imei, '') = ?
ORDER BY id ASC
LIMIT 1`, clientID, brand, model, imei).Scan(ctx, &id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return insert(ctx, tx, DeviceInput{ClientID: clientID, Brand: brand, Model: model, IMEI: imei})
}

func Get(ctx context.Context, db *sqlite.DB, id int64) (models.Device, bool, error) {
	var device models.Device
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&device).Where("d.id = ?", id).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, false, nil
	}
	if err != nil {
		return models.Device{}, false, err
	}
	return device, true, nil
}

// FindBySerial looks a device up by its serial number.
func FindBySerial(ctx context.Context, db *sqlite.DB, serial string) (models.Device, bool, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return models.Device{}, false, nil
	}
	var device models.Device
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&device).Where("d.serial = ?", serial).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, false, nil
	}
	if err != nil {
		return models.Device{}, false, err
	}
	return device, true, nil
}

func Update(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64, upd DeviceUpdate) (bool, error) {
	updated := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Table("devices").Where("id = ?", id)
		n := 0
		for col, v := range upd.columns() {
			if v == nil {
				continue
			}
			var value any = strings.TrimSpace(*v)
			if col != "brand" && col != "model" {
				value = sqlite.NullIfEmpty(*v)
			}
			q = q.Set("? = ?", bun.Ident(col), value)
			n++
		}
		if n == 0 {
			return nil
		}

		var before models.Device
		if err := tx.NewSelect().Model(&before).Where("d.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if _, err := q.Exec(ctx); err != nil {
			if sqlite.IsUniqueViolation(err) {
				return ErrSerialExists
			}
			return fmt.Errorf("update device: %w", err)
		}
		var after models.Device
		if err := tx.NewSelect().Model(&after).Where("d.id = ?", id).Scan(ctx); err != nil {
			return err
		}
		updated = true
		return auditSvc.Write(ctx, tx, userName, audit.ActionUpdate, "devices", id, before, after)
	})
	return updated, err
}

// Delete removes the device and, through the schema, its repairs.
func Delete(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, userName string, id int64) (bool, error) {
	deleted := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var before models.Device
		if err := tx.NewSelect().Model(&before).Where("d.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		n, err := sqlite.RowsAffected(ctx, tx, `DELETE FROM devices WHERE id = ?`, id)
		if err != nil {
			return err
		}
		deleted = n > 0
		return auditSvc.Write(ctx, tx, userName, audit.ActionDelete, "devices", id, before, nil)
	})
	return deleted, err
}

func ListByClient(ctx context.Context, db *sqlite.DB, clientID int64) ([]models.Device, error) {
	devices := make([]models.Device, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&devices).Where("d.client_id = ?", clientID).OrderExpr("d.id ASC").Scan(ctx)
	})
	return devices, err
}

// ListDetailed returns all devices with their client name and repair count.
func ListDetailed(ctx context.Context, db *sqlite.DB) ([]DeviceView, error) {
	rows := make([]DeviceView, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT d.id, d.client_id, c.name AS client_name,
       COALESCE(d.brand, '') AS brand, COALESCE(d.model, '') AS model,
       COALESCE(d.imei, '') AS imei, COALESCE(d.serial, '') AS serial,
       COALESCE(d.color, '') AS color, COALESCE(d.accessories, '') AS accessories,
       (SELECT COUNT(1) FROM repairs r WHERE r.device_id = d.id) AS repairs
FROM devices d
JOIN clients c ON c.id = d.client_id
ORDER BY c.name ASC, d.id ASC`).Scan(ctx, &rows)
	})
	return rows, err
}
