package sqlite

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/argon"
)

//go:embed migrations/base.sql
var baseSchemaSQL string

// DefaultAdminPassword is the password of the admin account seeded into an
// empty users table.
const DefaultAdminPassword = "admin"

type migrateOptions struct {
	adminPassword string
	logger        *slog.Logger
}

// MigrateOption customizes EnsureSchema.
type MigrateOption func(*migrateOptions)

// WithAdminPassword sets the password of the seeded admin account.
func WithAdminPassword(password string) MigrateOption {
	return func(o *migrateOptions) {
		if strings.TrimSpace(password) != "" {
			o.adminPassword = password
		}
	}
}

type migration struct {
	version int
	name    string
	up      func(ctx context.Context, tx bun.Tx) error
}

// LatestVersion is the schema version EnsureSchema brings a database to.
var LatestVersion = len(steps(migrateOptions{})) + 1

// EnsureSchema brings any database (empty, partially migrated or current) to
// LatestVersion and returns the resulting version. Step N runs only when the
// stored version is below N; the step and its version bump commit together,
// so a failed or interrupted run resumes at the first unapplied step.
func EnsureSchema(ctx context.Context, db *DB, opts ...MigrateOption) (int, error) {
	o := migrateOptions{adminPassword: DefaultAdminPassword, logger: db.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	if err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, baseSchemaSQL)
		return err
	}); err != nil {
		return 0, fmt.Errorf("apply base schema: %w", err)
	}

	version, err := SchemaVersion(ctx, db)
	if err != nil {
		return 0, err
	}

	for _, m := range steps(o) {
		if version >= m.version {
			continue
		}
		err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
			if err := m.up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `UPDATE meta SET schema_version = ? WHERE id = 1`, m.version)
			return err
		})
		if err != nil {
			return version, fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		db.Logger.Info("applied migration", "from", version, "to", m.version, "name", m.name)
		version = m.version
	}
	return version, nil
}

// SchemaVersion reads the stored schema version marker.
func SchemaVersion(ctx context.Context, db *DB) (int, error) {
	var version int
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`SELECT schema_version FROM meta WHERE id = 1`).Scan(ctx, &version)
	})
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func steps(o migrateOptions) []migration {
	return []migration{
		{2, "client contact details", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx,
				addColumn("clients", "phone", "TEXT"),
				addColumn("clients", "email", "TEXT"),
				addColumn("clients", "address", "TEXT"),
				addColumn("clients", "tax_id", "TEXT"),
				addColumn("clients", "notes", "TEXT"),
				uniqueIndex(o.logger, "idx_clients_name", "clients", "name"),
			)
		}},
		{3, "device details", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx,
				addColumn("devices", "imei", "TEXT"),
				addColumn("devices", "serial", "TEXT"),
				addColumn("devices", "color", "TEXT"),
				addColumn("devices", "accessories", "TEXT"),
				exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_devices_serial ON devices(serial)`),
				exec(`CREATE INDEX IF NOT EXISTS idx_devices_client ON devices(client_id)`),
			)
		}},
		{4, "extended products", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx,
				addColumn("products", "sku", "TEXT"),
				addColumn("products", "category", "TEXT"),
				addColumn("products", "min_stock", "INTEGER NOT NULL DEFAULT 0"),
				addColumn("products", "cost", "REAL NOT NULL DEFAULT 0"),
				addColumn("products", "price", "REAL NOT NULL DEFAULT 0"),
				addColumn("products", "location", "TEXT"),
				addColumn("products", "supplier", "TEXT"),
				addColumn("products", "notes", "TEXT"),
				exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(sku)`),
			)
		}},
		{5, "repair details", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx,
				addColumn("repairs", "diagnosis", "TEXT"),
				addColumn("repairs", "actions", "TEXT"),
				addColumn("repairs", "parts_used", "TEXT"),
				addColumn("repairs", "labor_cost", "REAL NOT NULL DEFAULT 0"),
				addColumn("repairs", "parts_cost", "REAL NOT NULL DEFAULT 0"),
				addColumn("repairs", "deposit", "REAL NOT NULL DEFAULT 0"),
				addColumn("repairs", "total", "REAL NOT NULL DEFAULT 0"),
				addColumn("repairs", "balance", "REAL NOT NULL DEFAULT 0"),
				addColumn("repairs", "cost", "REAL NOT NULL DEFAULT 0"),
				addColumn("repairs", "priority", "TEXT"),
				addColumn("repairs", "technician", "TEXT"),
				addColumn("repairs", "estimated_hours", "REAL NOT NULL DEFAULT 0"),
				addColumn("repairs", "warranty_days", "INTEGER NOT NULL DEFAULT 0"),
				addColumn("repairs", "lock_code", "TEXT"),
				addColumn("repairs", "data_backup", "INTEGER NOT NULL DEFAULT 0"),
				addColumn("repairs", "delivered_accessories", "TEXT"),
				addColumn("repairs", "created_at", "DATETIME"),
				exec(`UPDATE repairs SET created_at = CURRENT_TIMESTAMP WHERE created_at IS NULL`),
			)
		}},
		{6, "users and audit", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx,
				exec(`
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE COLLATE NOCASE,
  password_hash TEXT NOT NULL,
  salt TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('admin', 'technician', 'receptionist')),
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS audit_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_name TEXT NOT NULL,
  action TEXT NOT NULL,
  table_name TEXT NOT NULL,
  record_id INTEGER NOT NULL,
  before_json TEXT,
  after_json TEXT,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_name);
CREATE TABLE IF NOT EXISTS password_resets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  token TEXT NOT NULL UNIQUE,
  expires_at INTEGER NOT NULL,
  FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);`),
				seedIfEmpty("users", func(ctx context.Context, tx bun.Tx) error {
					hash, err := argon.CreateHash(o.adminPassword, argon.DefaultParams)
					if err != nil {
						return err
					}
					salt, err := argon.SaltOf(hash)
					if err != nil {
						return err
					}
					_, err = tx.ExecContext(ctx, `
INSERT INTO users (name, password_hash, salt, role, created_at, updated_at)
VALUES ('admin', ?, ?, 'admin', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`, hash, salt)
					return err
				}),
			)
		}},
		{7, "spare parts", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx, exec(`
CREATE TABLE IF NOT EXISTS spare_parts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
  min_stock INTEGER NOT NULL DEFAULT 0,
  supplier TEXT,
  price REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS repair_spare_parts (
  repair_id INTEGER NOT NULL,
  spare_part_id INTEGER NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  PRIMARY KEY (repair_id, spare_part_id),
  FOREIGN KEY (repair_id) REFERENCES repairs(id) ON DELETE CASCADE,
  FOREIGN KEY (spare_part_id) REFERENCES spare_parts(id) ON DELETE CASCADE
);`))
		}},
		{8, "billing", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx, exec(`
CREATE TABLE IF NOT EXISTS invoices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  repair_id INTEGER NOT NULL,
  client_id INTEGER NOT NULL,
  total REAL NOT NULL,
  paid REAL NOT NULL DEFAULT 0,
  balance REAL NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (repair_id) REFERENCES repairs(id) ON DELETE CASCADE,
  FOREIGN KEY (client_id) REFERENCES clients(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS payments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id INTEGER NOT NULL,
  amount REAL NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS budgets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  repair_id INTEGER NOT NULL,
  parts TEXT,
  labor REAL NOT NULL DEFAULT 0,
  estimated_hours REAL NOT NULL DEFAULT 0,
  total REAL NOT NULL DEFAULT 0,
  approved INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (repair_id) REFERENCES repairs(id) ON DELETE CASCADE
);`))
		}},
		{9, "tickets", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx, exec(`
CREATE TABLE IF NOT EXISTS tickets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  client_name TEXT NOT NULL,
  device TEXT NOT NULL,
  description TEXT,
  state TEXT NOT NULL CHECK (state IN ('recibido', 'en_reparacion', 'listo', 'entregado')),
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS ticket_states (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ticket_id INTEGER NOT NULL,
  state TEXT NOT NULL,
  changed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS ticket_photos (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ticket_id INTEGER NOT NULL,
  path TEXT NOT NULL,
  FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
);`))
		}},
		{10, "warranties, returns and notifications", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx, exec(`
CREATE TABLE IF NOT EXISTS warranties (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  repair_id INTEGER NOT NULL,
  description TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'abierta',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (repair_id) REFERENCES repairs(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS returns (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id INTEGER NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pendiente',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS notifications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  recipient TEXT NOT NULL,
  channel TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`))
		}},
		{11, "branches", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx,
				exec(`
CREATE TABLE IF NOT EXISTS branches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS config (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  key TEXT NOT NULL,
  value TEXT,
  branch_id INTEGER,
  FOREIGN KEY (branch_id) REFERENCES branches(id) ON DELETE CASCADE
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_config_key_branch ON config(key, COALESCE(branch_id, 0));`),
				addColumn("products", "branch_id", "INTEGER REFERENCES branches(id)"),
				addColumn("spare_parts", "branch_id", "INTEGER REFERENCES branches(id)"),
				addColumn("repairs", "branch_id", "INTEGER REFERENCES branches(id)"),
				uniqueIndex(o.logger, "idx_spare_parts_name_branch", "spare_parts", "name, COALESCE(branch_id, 0)"),
			)
		}},
		{12, "reporting indexes", func(ctx context.Context, tx bun.Tx) error {
			return runAll(ctx, tx, exec(`
CREATE INDEX IF NOT EXISTS idx_repairs_status ON repairs(status);
CREATE INDEX IF NOT EXISTS idx_repairs_technician ON repairs(technician);
CREATE INDEX IF NOT EXISTS idx_repairs_device ON repairs(device_id);
CREATE INDEX IF NOT EXISTS idx_ticket_states_ticket ON ticket_states(ticket_id, changed_at);
CREATE INDEX IF NOT EXISTS idx_invoices_client ON invoices(client_id);
CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);`))
		}},
	}
}

type stepFunc func(ctx context.Context, tx bun.Tx) error

func runAll(ctx context.Context, tx bun.Tx, fns ...stepFunc) error {
	for _, fn := range fns {
		if err := fn(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func exec(query string) stepFunc {
	return func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, query)
		return err
	}
}

// addColumn tolerates the column already existing, e.g. when an older build
// added it outside the versioned steps.
func addColumn(table, column, decl string) stepFunc {
	return func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
		if IsDuplicateColumn(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, column, err)
		}
		return nil
	}
}

// uniqueIndex builds a unique index unless rows written by an older build
// already collide on it. Those databases keep working without the index and
// rely on the pre-insert checks in the domain packages.
func uniqueIndex(logger *slog.Logger, index, table, columns string) stepFunc {
	return func(ctx context.Context, tx bun.Tx) error {
		var dupes int
		err := tx.NewRaw(fmt.Sprintf(
			"SELECT COUNT(1) FROM (SELECT 1 FROM %s GROUP BY %s HAVING COUNT(1) > 1)", table, columns,
		)).Scan(ctx, &dupes)
		if err != nil {
			return fmt.Errorf("check duplicates for %s: %w", index, err)
		}
		if dupes > 0 {
			if logger != nil {
				logger.Warn("skipping unique index over duplicate rows", "index", index, "table", table, "duplicate_groups", dupes)
			}
			return nil
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(%s)", index, table, columns))
		return err
	}
}

func seedIfEmpty(table string, seed stepFunc) stepFunc {
	return func(ctx context.Context, tx bun.Tx) error {
		var count int
		if err := tx.NewRaw(fmt.Sprintf("SELECT COUNT(1) FROM %s", table)).Scan(ctx, &count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return seed(ctx, tx)
	}
}
