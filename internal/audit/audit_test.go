package audit

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"
)

func TestDigestJSON(t *testing.T) {
	if DigestJSON(nil) != "" {
		t.Fatalf("expected empty digest for empty payload")
	}
	a := DigestJSON([]byte(`{"format":"pdf"}`))
	b := DigestJSON([]byte(`{"format":"xlsx"}`))
	if len(a) != 64 || a == b {
		t.Fatalf("unexpected digests %q %q", a, b)
	}
}

func TestLogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogLogger(log.New(&buf, "", 0))
	err := l.Log(context.Background(), Entry{Actor: "user-1", Role: "member", Action: ActionInvoiceExport, AccountID: "1001"})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(buf.String(), "action=invoice.export account=1001") {
		t.Fatalf("unexpected line %q", buf.String())
	}
	if !strings.HasPrefix(NewID(), "audit-") {
		t.Fatalf("unexpected id format")
	}
}

func TestEntryCompleteKeepsCallerFields(t *testing.T) {
	now := time.Date(2015, 1, 10, 12, 0, 0, 0, time.FixedZone("EET", 2*3600))
	e := Entry{Action: ActionRunTrigger, Metadata: []byte(`{"dry_run":"true"}`)}.complete(now)
	if !strings.HasPrefix(e.ID, "audit-") || !e.CreatedAt.Equal(now) || e.CreatedAt.Location() != time.UTC {
		t.Fatalf("unexpected generated fields %+v", e)
	}
	if e.PayloadDigest != DigestJSON(e.Metadata) {
		t.Fatalf("unexpected digest %q", e.PayloadDigest)
	}

	fixed := Entry{ID: "audit-1", PayloadDigest: "x", CreatedAt: now}.complete(time.Now())
	if fixed.ID != "audit-1" || fixed.PayloadDigest != "x" || !fixed.CreatedAt.Equal(now) {
		t.Fatalf("caller fields overwritten %+v", fixed)
	}
}

func TestRepositoryWithoutDB(t *testing.T) {
	var repo *Repository
	if err := repo.Log(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected nil db error")
	}
	if err := NewRepository(nil).Log(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected nil db error")
	}
}
