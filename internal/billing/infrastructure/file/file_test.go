package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "context.json")
	store, err := NewSnapshotStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ctx := context.Background()

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if state.Len() != 0 {
		t.Fatalf("expected empty context on first run")
	}

	v := billing.Var(billing.CategoryEquipmentTotal, 2014)
	pkg := billing.Var(billing.CategoryGliderPackage, 2014)
	state.SetAmount("1001", v, decimal.RequireFromString("87.50"))
	state.SetDate("1001", pkg, billing.Date(2014, 3, 31))
	if err := store.Save(ctx, "run-1", state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Amount("1001", v).Equal(decimal.RequireFromString("87.5")) {
		t.Fatalf("unexpected amount %s", loaded.Amount("1001", v))
	}
	if date, ok := loaded.DateOf("1001", pkg); !ok || !date.Equal(billing.Date(2014, 3, 31)) {
		t.Fatalf("unexpected date %v %v", date, ok)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the snapshot file, got %d entries", len(entries))
	}
}

func TestSnapshotStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewSnapshotStore(path)
	if _, err := store.Load(context.Background()); !errors.Is(err, billing.ErrInvalidSnapshot) {
		t.Fatalf("expected invalid snapshot, got %v", err)
	}
	if _, err := NewSnapshotStore(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestInvoiceDirWritesOneFilePerAccount(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewInvoiceDir(dir, ".txt", func(inv billing.Invoice) ([]byte, error) {
		return []byte(inv.AccountID + ":" + inv.Total().StringFixed(2)), nil
	})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	invoices := []billing.Invoice{
		{AccountID: "1001", Lines: []billing.InvoiceLine{{Price: decimal.NewFromInt(15)}}},
		{AccountID: "1002"},
	}
	if err := sink.WriteInvoices(context.Background(), "run-1", invoices); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(sink.Path("1001"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "1001:15.00" {
		t.Fatalf("unexpected content %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "1002.txt")); err != nil {
		t.Fatalf("expected second invoice: %v", err)
	}

	if err := sink.WriteInvoices(context.Background(), "run-2", []billing.Invoice{{AccountID: "../x"}}); err == nil {
		t.Fatalf("expected invalid account id error")
	}
	failing, _ := NewInvoiceDir(dir, "txt", func(billing.Invoice) ([]byte, error) { return nil, errors.New("boom") })
	if err := failing.WriteInvoices(context.Background(), "run-3", invoices); err == nil {
		t.Fatalf("expected render error")
	}
}

func TestCommitLogPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "billing-context.json.commits")
	ctx := context.Background()

	first, err := NewCommitLog(path)
	if err != nil {
		t.Fatalf("commit log: %v", err)
	}
	if runID, err := first.CommittedRun(ctx, "abc"); err != nil || runID != "" {
		t.Fatalf("expected empty log, got %q %v", runID, err)
	}
	if err := first.RecordCommit(ctx, "run-1", "abc"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := first.RecordCommit(ctx, "run-2", "def"); err != nil {
		t.Fatalf("record: %v", err)
	}

	second, _ := NewCommitLog(path)
	if runID, err := second.CommittedRun(ctx, "def"); err != nil || runID != "run-2" {
		t.Fatalf("expected run-2, got %q %v", runID, err)
	}
	if runID, _ := second.CommittedRun(ctx, "xyz"); runID != "" {
		t.Fatalf("unexpected commit %q", runID)
	}

	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := second.CommittedRun(ctx, "abc"); err == nil {
		t.Fatalf("expected corrupt log error")
	}
	if _, err := NewCommitLog(""); err == nil {
		t.Fatalf("expected empty path error")
	}
}
