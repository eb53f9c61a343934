package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
)

func TestSnapshotStoreIsolatesSavedState(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	v := billing.Var(billing.CategoryEquipmentGlider, 2014)

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Len() != 0 {
		t.Fatalf("expected empty context")
	}
	state.SetAmount("1234", v, decimal.NewFromInt(30))
	if err := store.Save(ctx, "run-1", state); err != nil {
		t.Fatalf("save: %v", err)
	}
	state.SetAmount("1234", v, decimal.NewFromInt(70))

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Amount("1234", v).String(); got != "30" {
		t.Fatalf("expected 30, got %s", got)
	}
	if store.LastRunID() != "run-1" {
		t.Fatalf("unexpected run id %q", store.LastRunID())
	}
	if err := store.Save(ctx, "run-2", nil); err == nil {
		t.Fatalf("expected nil context error")
	}
}

func TestInvoiceRepositoryReplacesRun(t *testing.T) {
	repo := NewInvoiceRepository()
	ctx := context.Background()

	if err := repo.WriteInvoices(ctx, "run-1", []billing.Invoice{{AccountID: "2"}, {AccountID: "1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.WriteInvoices(ctx, "run-2", []billing.Invoice{{AccountID: "3"}, {AccountID: "1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].AccountID != "1" || list[1].AccountID != "3" {
		t.Fatalf("unexpected invoices %+v", list)
	}
	if _, err := repo.Get(ctx, "2"); !errors.Is(err, billing.ErrInvoiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if repo.RunID() != "run-2" {
		t.Fatalf("unexpected run id %q", repo.RunID())
	}
	if err := repo.WriteInvoices(ctx, "run-3", []billing.Invoice{{}}); !errors.Is(err, billing.ErrEmptyAccountID) {
		t.Fatalf("expected empty account error, got %v", err)
	}
}

func TestCommitLogKeepsFirstRun(t *testing.T) {
	commits := NewCommitLog()
	ctx := context.Background()

	if runID, _ := commits.CommittedRun(ctx, "abc"); runID != "" {
		t.Fatalf("expected no commit, got %q", runID)
	}
	if err := commits.RecordCommit(ctx, "run-1", "abc"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := commits.RecordCommit(ctx, "run-2", "abc"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if runID, _ := commits.CommittedRun(ctx, "abc"); runID != "run-1" {
		t.Fatalf("expected run-1, got %q", runID)
	}
	if err := commits.RecordCommit(ctx, "run-3", ""); err == nil {
		t.Fatalf("expected empty digest error")
	}
}
