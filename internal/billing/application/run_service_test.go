package application

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	billing "pik-billing/internal/billing/domain"
)

type stubSnapshots struct {
	state   *billing.BillingContext
	loadErr error
	saveErr error
	saved   []string
	calls   *[]string
}

func (s *stubSnapshots) Load(ctx context.Context) (*billing.BillingContext, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.state == nil {
		s.state = billing.NewBillingContext()
	}
	return s.state, nil
}

func (s *stubSnapshots) Save(ctx context.Context, runID string, state *billing.BillingContext) error {
	*s.calls = append(*s.calls, "snapshot")
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, runID)
	return nil
}

type stubSource struct {
	events []billing.Event
}

func (s stubSource) Events(ctx context.Context) ([]billing.Event, error) {
	return s.events, nil
}

type stubSink struct {
	err      error
	invoices []billing.Invoice
	calls    *[]string
}

func (s *stubSink) WriteInvoices(ctx context.Context, runID string, invoices []billing.Invoice) error {
	*s.calls = append(*s.calls, "invoices")
	s.invoices = invoices
	return s.err
}

type stubLedger struct {
	txns  []billing.LedgerTransaction
	calls *[]string
}

func (s *stubLedger) WriteTransactions(ctx context.Context, txns []billing.LedgerTransaction) error {
	*s.calls = append(*s.calls, "ledger")
	s.txns = txns
	return nil
}

type stubNotifier struct {
	reviews []Review
	err     error
	calls   *[]string
}

func (s *stubNotifier) NotifyReview(ctx context.Context, review Review) error {
	*s.calls = append(*s.calls, "notify")
	s.reviews = append(s.reviews, review)
	return s.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type runFixture struct {
	calls     []string
	snapshots *stubSnapshots
	sink      *stubSink
	ledger    *stubLedger
	notifier  *stubNotifier
	logs      bytes.Buffer
	service   *RunService
}

func newRunFixture(t *testing.T, events []billing.Event) *runFixture {
	t.Helper()
	f := &runFixture{}
	f.snapshots = &stubSnapshots{calls: &f.calls}
	f.sink = &stubSink{calls: &f.calls}
	f.ledger = &stubLedger{calls: &f.calls}
	f.notifier = &stubNotifier{calls: &f.calls}
	engine, err := NewEngine(testTree(t), log.New(&f.logs, "", 0))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	f.service, err = NewRunService(engine, f.snapshots, stubSource{events: events},
		WithInvoiceSink(f.sink),
		WithLedgerWriter(f.ledger),
		WithReviewNotifier(f.notifier),
		WithClock(fixedClock{now: time.Date(2014, 6, 2, 10, 0, 0, 0, time.UTC)}),
		WithLogger(log.New(&f.logs, "", 0)),
		WithRunIDGenerator(func() string { return "run-1" }),
	)
	if err != nil {
		t.Fatalf("run service: %v", err)
	}
	return f
}

func TestRunServiceSavesSnapshotLast(t *testing.T) {
	f := newRunFixture(t, []billing.Event{
		flight(t, "2014-05-01", "1234", "650", 60),
		ledger(t, "2014-05-02", "1234", "Maksu", "-20", 1910),
		flight(t, "2014-05-03", "1234", "DDS", 60),
	})

	report, err := f.service.Run(context.Background(), RunConfig{FirstTransactionID: 10})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"invoices", "ledger", "notify", "snapshot"}
	if len(f.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, f.calls)
	}
	for i := range want {
		if f.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, f.calls)
		}
	}
	if report.RunID != "run-1" || f.snapshots.saved[0] != "run-1" {
		t.Fatalf("unexpected run id %q", report.RunID)
	}
	if !report.InvoiceDate.Equal(billing.Date(2014, 6, 2)) {
		t.Fatalf("expected invoice date from clock, got %s", report.InvoiceDate)
	}
	if len(report.Invoices) != 1 || report.Invoices[0].Total().StringFixed(2) != "5.00" {
		t.Fatalf("unexpected invoices %+v", report.Invoices)
	}
	if len(f.ledger.txns) != 3 || f.ledger.txns[0].ID != 10 {
		t.Fatalf("unexpected transactions %+v", f.ledger.txns)
	}
	if len(report.Unmatched) != 1 {
		t.Fatalf("expected one unmatched event, got %d", len(report.Unmatched))
	}
	review := f.notifier.reviews[0]
	if !review.NeedsAttention() || len(review.Unmatched) != 1 || review.Total.StringFixed(2) != "5.00" {
		t.Fatalf("unexpected review %+v", review)
	}
	if f.snapshots.state.Amount("1234", billing.Var(billing.CategoryEquipmentGlider, 2014)).String() != "10" {
		t.Fatalf("expected cap state to be carried into snapshot")
	}
}

func TestRunServiceKeepsSnapshotOnWriteFailure(t *testing.T) {
	f := newRunFixture(t, []billing.Event{flight(t, "2014-05-01", "1234", "650", 60)})
	f.sink.err = errors.New("disk full")

	if _, err := f.service.Run(context.Background(), RunConfig{}); err == nil {
		t.Fatalf("expected error")
	}
	if len(f.snapshots.saved) != 0 {
		t.Fatalf("snapshot must not be saved after a failed run")
	}
}

func TestRunServiceNotifyFailureIsNotFatal(t *testing.T) {
	f := newRunFixture(t, []billing.Event{flight(t, "2014-05-01", "1234", "650", 60)})
	f.notifier.err = errors.New("webhook down")

	if _, err := f.service.Run(context.Background(), RunConfig{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.snapshots.saved) != 1 {
		t.Fatalf("expected snapshot save")
	}
	if !bytes.Contains(f.logs.Bytes(), []byte("review notify failed: webhook down")) {
		t.Fatalf("expected notify failure to be logged, got %q", f.logs.String())
	}
}

func TestRunServiceDryRunWritesNothing(t *testing.T) {
	f := newRunFixture(t, []billing.Event{flight(t, "2014-05-01", "1234", "650", 60)})

	report, err := f.service.Run(context.Background(), RunConfig{DryRun: true, InvoiceDate: billing.Date(2014, 6, 30)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("dry run wrote %v", f.calls)
	}
	if len(report.Invoices) != 1 || report.Lines != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunServiceSnapshotErrorsAreFatal(t *testing.T) {
	f := newRunFixture(t, nil)
	f.snapshots.loadErr = billing.ErrInvalidSnapshot
	if _, err := f.service.Run(context.Background(), RunConfig{}); !errors.Is(err, billing.ErrInvalidSnapshot) {
		t.Fatalf("expected snapshot error, got %v", err)
	}

	f = newRunFixture(t, nil)
	f.snapshots.saveErr = errors.New("read-only")
	if _, err := f.service.Run(context.Background(), RunConfig{}); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestNewRunServiceValidates(t *testing.T) {
	engine, _ := NewEngine(testTree(t), nil)
	if _, err := NewRunService(nil, &stubSnapshots{}, stubSource{}); err == nil {
		t.Fatalf("expected nil engine error")
	}
	if _, err := NewRunService(engine, nil, stubSource{}); err == nil {
		t.Fatalf("expected nil snapshot store error")
	}
	if _, err := NewRunService(engine, &stubSnapshots{}, nil); err == nil {
		t.Fatalf("expected nil source error")
	}
}

type stubCommits struct {
	runs  map[string]string
	calls *[]string
}

func (s *stubCommits) CommittedRun(ctx context.Context, digest string) (string, error) {
	return s.runs[digest], nil
}

func (s *stubCommits) RecordCommit(ctx context.Context, runID, digest string) error {
	*s.calls = append(*s.calls, "commit")
	s.runs[digest] = runID
	return nil
}

func TestRunServiceRefusesCommittedInputs(t *testing.T) {
	events := []billing.Event{
		flight(t, "2014-05-01", "1234", "650", 60),
		flight(t, "2014-05-03", "1234", "DDS", 60),
	}
	f := newRunFixture(t, events)
	commits := &stubCommits{runs: map[string]string{}, calls: &f.calls}
	WithCommitLog(commits)(f.service)

	report, err := f.service.Run(context.Background(), RunConfig{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if report.InputDigest == "" || commits.runs[report.InputDigest] != "run-1" {
		t.Fatalf("expected run-1 committed under %q, got %v", report.InputDigest, commits.runs)
	}
	if last := f.calls[len(f.calls)-1]; last != "commit" || f.calls[len(f.calls)-2] != "snapshot" {
		t.Fatalf("expected commit after snapshot, got %v", f.calls)
	}

	f.calls = nil
	f.snapshots.state = nil
	if _, err := f.service.Run(context.Background(), RunConfig{}); !errors.Is(err, ErrInputsCommitted) {
		t.Fatalf("expected committed inputs error, got %v", err)
	}
	if len(f.calls) != 0 || len(f.snapshots.saved) != 1 {
		t.Fatalf("refused run wrote output: calls=%v saved=%v", f.calls, f.snapshots.saved)
	}

	dry, err := f.service.Run(context.Background(), RunConfig{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.InputDigest != report.InputDigest {
		t.Fatalf("expected stable digest, got %q and %q", report.InputDigest, dry.InputDigest)
	}
}

func TestDigestEventsDependsOnContentAndOrder(t *testing.T) {
	a := flight(t, "2014-05-01", "1234", "650", 60)
	b := flight(t, "2014-05-01", "1234", "650", 61)
	digest := func(events ...billing.Event) string {
		d, err := DigestEvents(events)
		if err != nil {
			t.Fatalf("digest: %v", err)
		}
		return d
	}
	if digest(a, b) == digest(b, a) || digest(a) == digest(b) {
		t.Fatalf("expected distinct digests")
	}
	if digest(a, b) != digest(a, b) {
		t.Fatalf("expected deterministic digest")
	}
}
