package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
	billingrepo "pik-billing/internal/billing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestSnapshotStore_SaveReplacesContext(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := billingrepo.NewSnapshotStore(db)
	glider := billing.Var(billing.CategoryEquipmentGlider, 2014)
	pkg := billing.Var(billing.CategoryGliderPackage, 2014)

	first := billing.NewBillingContext()
	first.SetAmount("1001", glider, decimal.NewFromInt(40))
	first.SetAmount("1002", glider, decimal.NewFromInt(10))
	if err := store.Save(ctx, "run-1", first); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := billing.NewBillingContext()
	second.SetAmount("1001", glider, decimal.RequireFromString("52.5"))
	second.SetDate("1001", pkg, billing.Date(2014, 4, 2))
	if err := store.Save(ctx, "run-2", second); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", loaded.Len())
	}
	if got := loaded.Amount("1001", glider).String(); got != "52.5" {
		t.Fatalf("expected 52.5, got %s", got)
	}
	date, ok := loaded.DateOf("1001", pkg)
	if !ok || !date.Equal(billing.Date(2014, 4, 2)) {
		t.Fatalf("unexpected trigger date %v %v", date, ok)
	}
}

func TestInvoiceRepository_WriteListGet(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := billingrepo.NewInvoiceRepository(db)
	invoices := []billing.Invoice{
		{
			AccountID: "1001",
			Date:      billing.Date(2014, 12, 31),
			Lines: []billing.InvoiceLine{
				{AccountID: "1001", Date: billing.Date(2014, 4, 2), Item: "Lento, 650, 45 min", Price: decimal.RequireFromString("11.25"), LedgerAccount: billing.Int(3220)},
				{AccountID: "1001", Date: billing.Date(2014, 1, 1), Item: "Saldo 2013", Price: decimal.RequireFromString("-20.00"), Rollup: true},
			},
		},
		{AccountID: "1002", Date: billing.Date(2014, 12, 31)},
	}
	if err := repo.WriteInvoices(ctx, "run-1", invoices); err != nil {
		t.Fatalf("write: %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].AccountID != "1001" {
		t.Fatalf("unexpected invoices %+v", list)
	}
	if got := list[0].Total().StringFixed(2); got != "-8.75" {
		t.Fatalf("expected total -8.75, got %s", got)
	}

	inv, err := repo.Get(ctx, "1001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(inv.Lines) != 2 || inv.Lines[0].LedgerAccount != billing.Int(3220) || !inv.Lines[1].Rollup {
		t.Fatalf("unexpected lines %+v", inv.Lines)
	}
	if _, err := repo.Get(ctx, "9999"); !errors.Is(err, billing.ErrInvoiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := repo.WriteInvoices(ctx, "run-2", invoices[1:]); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := repo.Get(ctx, "1001"); !errors.Is(err, billing.ErrInvoiceNotFound) {
		t.Fatalf("expected previous run to be replaced, got %v", err)
	}
}

func TestCommitLog_KeepsFirstRun(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ctx := context.Background()
	commits := billingrepo.NewCommitLog(db)
	if runID, err := commits.CommittedRun(ctx, "digest-a"); err != nil || runID != "" {
		t.Fatalf("expected no commit, got %q %v", runID, err)
	}
	if err := commits.RecordCommit(ctx, "run-1", "digest-a"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := commits.RecordCommit(ctx, "run-2", "digest-a"); err != nil {
		t.Fatalf("record again: %v", err)
	}
	runID, err := commits.CommittedRun(ctx, "digest-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if runID != "run-1" {
		t.Fatalf("expected run-1, got %q", runID)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(projectRoot(), "migrations", "001_billing.sql"))
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if _, err := db.Exec(string(content)); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	_, _ = db.Exec("DELETE FROM billing_invoice_lines")
	_, _ = db.Exec("DELETE FROM billing_invoices")
	_, _ = db.Exec("DELETE FROM billing_context")
	_, _ = db.Exec("DELETE FROM billing_commits")
	return db
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", "..", ".."))
}
