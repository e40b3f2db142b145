package repository

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ghepes/checkout-ui-app/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&model.WebhookEventRecord{}, &model.TransferAttempt{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestWebhookEventDedup(t *testing.T) {
	repo := NewWebhookEventRepository(newTestDB(t))
	ctx := context.Background()

	exists, err := repo.Exists(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("fresh event reported as processed")
	}

	if err := repo.MarkProcessed(ctx, "evt_1", "payment_intent.succeeded", "ch_1"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	// Redelivered marks must not fail on the primary key.
	if err := repo.MarkProcessed(ctx, "evt_1", "payment_intent.succeeded", "ch_1"); err != nil {
		t.Fatalf("MarkProcessed redelivery: %v", err)
	}

	exists, err = repo.Exists(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("processed event not found")
	}
}

func TestTransferAttemptListFailed(t *testing.T) {
	repo := NewTransferAttemptRepository(newTestDB(t))
	ctx := context.Background()

	attempts := []*model.TransferAttempt{
		{ChargeID: "ch_1", Destination: "acct_A", Amount: 100, Currency: "usd", Status: model.TransferStatusCreated, TransferID: "tr_1"},
		{ChargeID: "ch_1", Destination: "acct_B", Amount: 200, Currency: "usd", Status: model.TransferStatusFailed, LastError: "account restricted"},
		{ChargeID: "ch_2", Destination: "acct_C", Amount: 300, Currency: "usd", Status: model.TransferStatusSkipped},
	}
	for _, a := range attempts {
		if err := repo.Record(ctx, a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	failed, err := repo.ListFailed(ctx)
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(failed))
	}
	if failed[0].Destination != "acct_B" || failed[0].LastError == "" {
		t.Errorf("unexpected failed row: %+v", failed[0])
	}
}
