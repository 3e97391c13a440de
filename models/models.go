package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Client owns devices. Name is globally unique.
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:c"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Name    string `bun:"name,notnull,unique"`
	Phone   string `bun:"phone"`
	Email   string `bun:"email"`
	Address string `bun:"address"`
	TaxID   string `bun:"tax_id"`
	Notes   string `bun:"notes"`
}

// Device belongs to a client and owns repairs.
type Device struct {
	bun.BaseModel `bun:"table:devices,alias:d"`

	ID          int64  `bun:"id,pk,autoincrement"`
	ClientID    int64  `bun:"client_id,notnull"`
	Brand       string `bun:"brand"`
	Model       string `bun:"model"`
	IMEI        string `bun:"imei"`
	Serial      string `bun:"serial"`
	Color       string `bun:"color"`
	Accessories string `bun:"accessories"`
}

// Product is a general inventory item.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID       int64   `bun:"id,pk,autoincrement"`
	SKU      string  `bun:"sku"`
	Name     string  `bun:"name,notnull"`
	Category string  `bun:"category"`
	Quantity int64   `bun:"quantity,notnull"`
	MinStock int64   `bun:"min_stock,notnull"`
	Cost     float64 `bun:"cost,notnull"`
	Price    float64 `bun:"price,notnull"`
	Location string  `bun:"location"`
	Supplier string  `bun:"supplier"`
	Notes    string  `bun:"notes"`
	BranchID *int64  `bun:"branch_id"`
}

// SparePart (repuesto) is consumed by repairs.
type SparePart struct {
	bun.BaseModel `bun:"table:spare_parts,alias:sp"`

	ID       int64   `bun:"id,pk,autoincrement"`
	Name     string  `bun:"name,notnull"`
	Stock    int64   `bun:"stock,notnull"`
	MinStock int64   `bun:"min_stock,notnull"`
	Supplier string  `bun:"supplier"`
	Price    float64 `bun:"price,notnull"`
	BranchID *int64  `bun:"branch_id"`
}

// RepairSparePart records the quantity of a spare part used on a repair.
type RepairSparePart struct {
	bun.BaseModel `bun:"table:repair_spare_parts,alias:rsp"`

	RepairID    int64 `bun:"repair_id,pk"`
	SparePartID int64 `bun:"spare_part_id,pk"`
	Quantity    int64 `bun:"quantity,notnull"`
}

// Known repair statuses. The column is free text: older builds and operators
// write other values, which are treated as open.
const (
	RepairStatusPending    = "Pendiente"
	RepairStatusInProgress = "En progreso"
	RepairStatusWaiting    = "Esperando repuesto"
	RepairStatusCompleted  = "Completada"
	RepairStatusDelivered  = "Entregada"
	RepairStatusCancelled  = "Cancelada"
)

// DoneRepairStatuses count as completed work in productivity reports.
var DoneRepairStatuses = []string{RepairStatusCompleted, RepairStatusDelivered}

// ClosedRepairStatuses are no longer part of anyone's workload.
var ClosedRepairStatuses = []string{RepairStatusCompleted, RepairStatusDelivered, RepairStatusCancelled}

// Repair is a job on a device.
type Repair struct {
	bun.BaseModel `bun:"table:repairs,alias:r"`

	ID                   int64     `bun:"id,pk,autoincrement"`
	DeviceID             int64     `bun:"device_id,notnull"`
	Description          string    `bun:"description"`
	Diagnosis            string    `bun:"diagnosis"`
	Actions              string    `bun:"actions"`
	PartsUsed            string    `bun:"parts_used"`
	LaborCost            float64   `bun:"labor_cost,notnull"`
	PartsCost            float64   `bun:"parts_cost,notnull"`
	Deposit              float64   `bun:"deposit,notnull"`
	Total                float64   `bun:"total,notnull"`
	Balance              float64   `bun:"balance,notnull"`
	Cost                 float64   `bun:"cost,notnull"`
	Status               string    `bun:"status,notnull"`
	Priority             string    `bun:"priority"`
	Technician           string    `bun:"technician"`
	EstimatedHours       float64   `bun:"estimated_hours,notnull"`
	WarrantyDays         int64     `bun:"warranty_days,notnull"`
	LockCode             string    `bun:"lock_code"`
	DataBackup           bool      `bun:"data_backup,notnull"`
	DeliveredAccessories string    `bun:"delivered_accessories"`
	BranchID             *int64    `bun:"branch_id"`
	CreatedAt            time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Invoice keeps balance = total - paid.
type Invoice struct {
	bun.BaseModel `bun:"table:invoices,alias:i"`

	ID        int64     `bun:"id,pk,autoincrement"`
	RepairID  int64     `bun:"repair_id,notnull"`
	ClientID  int64     `bun:"client_id,notnull"`
	Total     float64   `bun:"total,notnull"`
	Paid      float64   `bun:"paid,notnull"`
	Balance   float64   `bun:"balance,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Payment is a single amount applied to an invoice.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:pay"`

	ID        int64     `bun:"id,pk,autoincrement"`
	InvoiceID int64     `bun:"invoice_id,notnull"`
	Amount    float64   `bun:"amount,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Budget (presupuesto) is an estimate attached to a repair.
type Budget struct {
	bun.BaseModel `bun:"table:budgets,alias:b"`

	ID             int64     `bun:"id,pk,autoincrement"`
	RepairID       int64     `bun:"repair_id,notnull"`
	Parts          string    `bun:"parts"`
	Labor          float64   `bun:"labor,notnull"`
	EstimatedHours float64   `bun:"estimated_hours,notnull"`
	Total          float64   `bun:"total,notnull"`
	Approved       bool      `bun:"approved,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Warranty is a warranty claim on a repair.
type Warranty struct {
	bun.BaseModel `bun:"table:warranties,alias:w"`

	ID          int64     `bun:"id,pk,autoincrement"`
	RepairID    int64     `bun:"repair_id,notnull"`
	Description string    `bun:"description,notnull"`
	Status      string    `bun:"status,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Return is a product return against an invoice.
type Return struct {
	bun.BaseModel `bun:"table:returns,alias:ret"`

	ID        int64     `bun:"id,pk,autoincrement"`
	InvoiceID int64     `bun:"invoice_id,notnull"`
	Reason    string    `bun:"reason,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Ticket is a customer-facing job tracked through a fixed set of states.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID          int64     `bun:"id,pk,autoincrement"`
	ClientName  string    `bun:"client_name,notnull"`
	Device      string    `bun:"device,notnull"`
	Description string    `bun:"description"`
	State       string    `bun:"state,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// TicketState is one append-only timeline row.
type TicketState struct {
	bun.BaseModel `bun:"table:ticket_states,alias:ts"`

	ID        int64     `bun:"id,pk,autoincrement"`
	TicketID  int64     `bun:"ticket_id,notnull"`
	State     string    `bun:"state,notnull"`
	ChangedAt time.Time `bun:"changed_at,notnull,default:current_timestamp"`
}

// TicketPhoto references an image stored outside the database.
type TicketPhoto struct {
	bun.BaseModel `bun:"table:ticket_photos,alias:tp"`

	ID       int64  `bun:"id,pk,autoincrement"`
	TicketID int64  `bun:"ticket_id,notnull"`
	Path     string `bun:"path,notnull"`
}

// User represents an authenticated app user.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,unique,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	Salt         string    `bun:"salt,notnull"`
	Role         string    `bun:"role,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// PasswordReset is a single-use reset token.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pw"`

	ID        int64  `bun:"id,pk,autoincrement"`
	UserID    int64  `bun:"user_id,notnull"`
	Token     string `bun:"token,notnull,unique"`
	ExpiresAt int64  `bun:"expires_at,notnull"`
}

// Expired returns true when the token expiry time has passed.
func (p PasswordReset) Expired(now time.Time) bool {
	return now.Unix() >= p.ExpiresAt
}

// AuditLog captures immutable change history for key operations.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserName   string    `bun:"user_name,notnull"`
	Action     string    `bun:"action,notnull"`
	TableName  string    `bun:"table_name,notnull"`
	RecordID   int64     `bun:"record_id,notnull"`
	BeforeJSON string    `bun:"before_json"`
	AfterJSON  string    `bun:"after_json"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Branch (sucursal) partitions stock and configuration.
type Branch struct {
	bun.BaseModel `bun:"table:branches,alias:br"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

// ConfigEntry is a key/value setting, global when BranchID is nil.
type ConfigEntry struct {
	bun.BaseModel `bun:"table:config,alias:cfg"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Key      string `bun:"key,notnull"`
	Value    string `bun:"value"`
	BranchID *int64 `bun:"branch_id"`
}

// Notification records a message handed to an external sender.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Recipient string    `bun:"recipient,notnull"`
	Channel   string    `bun:"channel,notnull"`
	Message   string    `bun:"message,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
