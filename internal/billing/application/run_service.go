package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/observability/metrics"
)

// SnapshotStore persists the billing context between runs.
type SnapshotStore interface {
	// Load returns the stored context, or an empty one when nothing is stored.
	Load(ctx context.Context) (*billing.BillingContext, error)
	Save(ctx context.Context, runID string, state *billing.BillingContext) error
}

// EventSource yields the events of one billing period, in stream order.
type EventSource interface {
	Events(ctx context.Context) ([]billing.Event, error)
}

// InvoiceSink receives the invoices of a run: repositories and renderers alike.
type InvoiceSink interface {
	WriteInvoices(ctx context.Context, runID string, invoices []billing.Invoice) error
}

// LedgerWriter exports double-entry transactions to bookkeeping.
type LedgerWriter interface {
	WriteTransactions(ctx context.Context, transactions []billing.LedgerTransaction) error
}

// ReviewNotifier tells treasurers about a finished run.
type ReviewNotifier interface {
	NotifyReview(ctx context.Context, review Review) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RunConfig holds per-run parameters.
type RunConfig struct {
	InvoiceDate        time.Time
	ExcludePrefixes    []string
	DebtAccount        int
	FirstTransactionID int
	// DryRun computes the report without writing invoices, ledger rows or the snapshot.
	DryRun bool
}

// RunReport summarises one billing run.
type RunReport struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	InvoiceDate  time.Time
	DryRun       bool
	InputDigest  string
	Events       int
	Lines        int
	Invoices     []billing.Invoice
	Excluded     []string
	Unmatched    []billing.Event
	Violations   []Violation
	Transactions []billing.LedgerTransaction
	Unposted     []billing.InvoiceLine
}

// Total returns the sum of all invoice totals.
func (r *RunReport) Total() decimal.Decimal {
	total := decimal.Zero
	if r == nil {
		return total
	}
	for _, inv := range r.Invoices {
		total = total.Add(inv.Total())
	}
	return total
}

// Review is the treasurer-facing digest of a run.
type Review struct {
	RunID           string
	InvoiceDate     time.Time
	Invoices        int
	Total           decimal.Decimal
	FlaggedAccounts []string
	Violations      []string
	Unmatched       []string
	Unposted        []string
}

// NeedsAttention reports whether anything requires manual correction.
func (r Review) NeedsAttention() bool {
	return len(r.Violations) > 0 || len(r.Unmatched) > 0 || len(r.Unposted) > 0
}

// Review builds the digest sent to treasurers.
func (r *RunReport) Review() Review {
	review := Review{
		RunID:           r.RunID,
		InvoiceDate:     r.InvoiceDate,
		Invoices:        len(r.Invoices),
		Total:           r.Total(),
		FlaggedAccounts: FlaggedAccounts(r.Violations),
	}
	for _, v := range r.Violations {
		review.Violations = append(review.Violations, v.String())
	}
	for _, ev := range r.Unmatched {
		review.Unmatched = append(review.Unmatched, ev.String())
	}
	for _, line := range r.Unposted {
		review.Unposted = append(review.Unposted, line.String())
	}
	return review
}

// RunService executes a complete billing run.
type RunService struct {
	engine    *Engine
	snapshots SnapshotStore
	source    EventSource
	sinks     []InvoiceSink
	ledger    LedgerWriter
	notifier  ReviewNotifier
	commits   CommitLog
	clock     Clock
	logger    *log.Logger
	newID     func() string
}

// RunOption configures the run service.
type RunOption func(*RunService)

// WithInvoiceSink adds a destination for assembled invoices.
func WithInvoiceSink(sink InvoiceSink) RunOption {
	return func(s *RunService) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithLedgerWriter sets the bookkeeping export.
func WithLedgerWriter(w LedgerWriter) RunOption {
	return func(s *RunService) {
		if w != nil {
			s.ledger = w
		}
	}
}

// WithReviewNotifier sets the treasurer notifier.
func WithReviewNotifier(n ReviewNotifier) RunOption {
	return func(s *RunService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithCommitLog refuses committed runs over inputs that were already committed.
func WithCommitLog(commits CommitLog) RunOption {
	return func(s *RunService) {
		if commits != nil {
			s.commits = commits
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) RunOption {
	return func(s *RunService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) RunOption {
	return func(s *RunService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunIDGenerator overrides uuid run ids.
func WithRunIDGenerator(gen func() string) RunOption {
	return func(s *RunService) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewRunService constructs the service.
func NewRunService(engine *Engine, snapshots SnapshotStore, source EventSource, opts ...RunOption) (*RunService, error) {
	if engine == nil {
		return nil, errors.New("run service: nil engine")
	}
	if snapshots == nil {
		return nil, errors.New("run service: nil snapshot store")
	}
	if source == nil {
		return nil, errors.New("run service: nil event source")
	}
	s := &RunService{
		engine:    engine,
		snapshots: snapshots,
		source:    source,
		clock:     SystemClock{},
		logger:    log.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run loads the snapshot and events, prices everything and writes the results.
// The snapshot is saved last: a failed run leaves the previous snapshot in place.
func (s *RunService) Run(ctx context.Context, cfg RunConfig) (*RunReport, error) {
	start := s.clock.Now()
	report, err := s.run(ctx, cfg)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveBillingRun(result, s.clock.Now().Sub(start))
	return report, err
}

func (s *RunService) run(ctx context.Context, cfg RunConfig) (*RunReport, error) {
	invoiceDate := cfg.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = s.clock.Now()
	}
	report := &RunReport{
		RunID:       s.newID(),
		StartedAt:   s.clock.Now(),
		InvoiceDate: billing.ToDate(invoiceDate),
		DryRun:      cfg.DryRun,
	}

	state, err := s.snapshots.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing run: load snapshot: %w", err)
	}
	events, err := s.source.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing run: load events: %w", err)
	}
	if report.InputDigest, err = DigestEvents(events); err != nil {
		return nil, fmt.Errorf("billing run: digest events: %w", err)
	}
	if !cfg.DryRun && s.commits != nil {
		prior, err := s.commits.CommittedRun(ctx, report.InputDigest)
		if err != nil {
			return nil, fmt.Errorf("billing run: commit log: %w", err)
		}
		if prior != "" {
			return nil, fmt.Errorf("%w: run %s replayed the same events", ErrInputsCommitted, prior)
		}
	}
	replay, err := s.engine.Replay(state, events)
	if err != nil {
		return nil, err
	}
	report.Events = replay.Events
	report.Lines = len(replay.Lines)
	report.Unmatched = replay.Unmatched

	assembled := AssembleInvoices(replay.Lines, AssembleOptions{
		Date:            report.InvoiceDate,
		ExcludePrefixes: cfg.ExcludePrefixes,
	})
	report.Invoices = assembled.Invoices
	report.Excluded = assembled.Excluded
	for _, account := range assembled.Excluded {
		s.logger.Printf("billing run %s: excluded account=%s", report.RunID, account)
	}
	metrics.AddInvoices(len(report.Invoices))

	var invoiced []billing.InvoiceLine
	for _, inv := range report.Invoices {
		invoiced = append(invoiced, inv.Lines...)
	}
	report.Violations = CheckLedgerConsistency(invoiced)
	for _, v := range report.Violations {
		s.logger.Printf("billing run %s: ledger check: %s", report.RunID, v)
	}
	posted := BuildTransactions(invoiced, TransactionOptions{
		DebtAccount: cfg.DebtAccount,
		FirstID:     cfg.FirstTransactionID,
		EntryDate:   report.InvoiceDate,
	})
	report.Transactions = posted.Transactions
	report.Unposted = posted.Unposted
	for _, line := range posted.Unposted {
		s.logger.Printf("billing run %s: no ledger account for line %s", report.RunID, line)
	}

	s.logger.Printf("billing run %s: events=%d lines=%d invoices=%d transactions=%d unmatched=%d",
		report.RunID, report.Events, report.Lines, len(report.Invoices), len(report.Transactions), len(report.Unmatched))

	if cfg.DryRun {
		report.FinishedAt = s.clock.Now()
		return report, nil
	}

	for _, sink := range s.sinks {
		if err := sink.WriteInvoices(ctx, report.RunID, report.Invoices); err != nil {
			return nil, fmt.Errorf("billing run: write invoices: %w", err)
		}
	}
	if s.ledger != nil {
		if err := s.ledger.WriteTransactions(ctx, report.Transactions); err != nil {
			return nil, fmt.Errorf("billing run: write ledger: %w", err)
		}
		legs := 0
		for _, txn := range report.Transactions {
			legs += len(txn.Legs)
		}
		metrics.AddLedgerLegs(legs)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyReview(ctx, report.Review()); err != nil {
			s.logger.Printf("billing run %s: review notify failed: %v", report.RunID, err)
			metrics.IncReviewNotify(metrics.ResultError)
		} else {
			metrics.IncReviewNotify(metrics.ResultSuccess)
		}
	}

	if err := s.snapshots.Save(ctx, report.RunID, state); err != nil {
		return nil, fmt.Errorf("billing run: save snapshot: %w", err)
	}
	if s.commits != nil {
		if err := s.commits.RecordCommit(ctx, report.RunID, report.InputDigest); err != nil {
			return nil, fmt.Errorf("billing run %s: snapshot saved but commit not recorded: %w", report.RunID, err)
		}
	}
	report.FinishedAt = s.clock.Now()
	return report, nil
}
