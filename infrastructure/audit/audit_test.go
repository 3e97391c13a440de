package audit_test

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/audit"
	"repairdesk/infrastructure/sqlite/sqlitetest"
)

func TestWriteAndList(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	svc := audit.NewService()

	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := svc.Write(ctx, tx, "ana", audit.ActionUpdate, "clients", 7, map[string]string{"phone": "1"}, map[string]string{"phone": "2"}); err != nil {
			return err
		}
		return svc.Write(ctx, tx, "luis", audit.ActionDelete, "devices", 3, nil, nil)
	})
	if err != nil {
		t.Fatalf("write audit: %v", err)
	}
	if err := svc.Log(ctx, db, "ana", audit.ActionCreate, "repairs", 11); err != nil {
		t.Fatalf("log audit: %v", err)
	}

	all, err := audit.List(ctx, db, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}

	ana, err := audit.List(ctx, db, "ana")
	if err != nil {
		t.Fatalf("list ana: %v", err)
	}
	if len(ana) != 2 {
		t.Fatalf("expected 2 entries for ana, got %d", len(ana))
	}
	if ana[0].TableName != "repairs" || ana[0].RecordID != 11 {
		t.Fatalf("expected newest entry first, got %+v", ana[0])
	}
	if ana[1].BeforeJSON != `{"phone":"1"}` || ana[1].AfterJSON != `{"phone":"2"}` {
		t.Fatalf("unexpected snapshots: %+v", ana[1])
	}
	if ana[1].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set by the store")
	}
}

func TestNilServiceIsNoop(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	var svc *audit.Service

	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return svc.Write(ctx, tx, "ana", audit.ActionCreate, "clients", 1, nil, nil)
	})
	if err != nil {
		t.Fatalf("nil service write: %v", err)
	}
	entries, err := audit.List(ctx, db, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
