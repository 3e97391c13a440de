package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Service writes audit records inside the caller transaction.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Write appends one entry. A nil Service is a no-op so repositories can be
// used without auditing.
func (s *Service) Write(ctx context.Context, tx bun.Tx, userName, action, table string, recordID int64, before, after any) error {
	if s == nil {
		return nil
	}
	beforeJSON, err := marshal(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshal(after)
	if err != nil {
		return err
	}
	if userName == "" {
		userName = "system"
	}
	log := &models.AuditLog{
		UserName:   userName,
		Action:     action,
		TableName:  table,
		RecordID:   recordID,
		BeforeJSON: beforeJSON,
		AfterJSON:  afterJSON,
	}
	_, err = tx.NewInsert().Model(log).ExcludeColumn("created_at").Exec(ctx)
	return err
}

// Log appends an entry in its own write transaction.
func (s *Service) Log(ctx context.Context, db *sqlite.DB, userName, action, table string, recordID int64) error {
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return s.Write(ctx, tx, userName, action, table, recordID, nil, nil)
	})
}

// List returns entries newest first, restricted to userName when it is not empty.
func List(ctx context.Context, db *sqlite.DB, userName string) ([]models.AuditLog, error) {
	entries := make([]models.AuditLog, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&entries).OrderExpr("al.created_at DESC, al.id DESC")
		if userName != "" {
			q = q.Where("al.user_name = ?", userName)
		}
		return q.Scan(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}

func marshal(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
