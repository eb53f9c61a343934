package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	billing "pik-billing/internal/billing/domain"
)

// SnapshotStore keeps the billing context in memory for dry runs and tests.
// Saved contexts are stored encoded so later mutations do not leak in.
type SnapshotStore struct {
	mu     sync.RWMutex
	data   []byte
	lastID string
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Load returns a copy of the stored context, or an empty one.
func (s *SnapshotStore) Load(ctx context.Context) (*billing.BillingContext, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := billing.NewBillingContext()
	if s.data == nil {
		return state, nil
	}
	if err := state.UnmarshalJSON(s.data); err != nil {
		return nil, err
	}
	return state, nil
}

// Save replaces the stored context.
func (s *SnapshotStore) Save(ctx context.Context, runID string, state *billing.BillingContext) error {
	_ = ctx
	if state == nil {
		return errors.New("memory snapshot store: nil context")
	}
	data, err := state.MarshalJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.lastID = runID
	return nil
}

// LastRunID returns the run that wrote the current snapshot.
func (s *SnapshotStore) LastRunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// InvoiceRepository is an in-memory invoice store holding the latest run.
type InvoiceRepository struct {
	mu    sync.RWMutex
	runID string
	data  map[string]billing.Invoice
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{data: make(map[string]billing.Invoice)}
}

// WriteInvoices replaces the stored invoices with those of runID.
func (r *InvoiceRepository) WriteInvoices(ctx context.Context, runID string, invoices []billing.Invoice) error {
	_ = ctx
	data := make(map[string]billing.Invoice, len(invoices))
	for _, inv := range invoices {
		if inv.AccountID == "" {
			return billing.ErrEmptyAccountID
		}
		data[inv.AccountID] = inv
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID = runID
	r.data = data
	return nil
}

// Get returns the invoice of one account.
func (r *InvoiceRepository) Get(ctx context.Context, accountID string) (*billing.Invoice, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.data[accountID]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	return &inv, nil
}

// List returns all invoices ordered by account id.
func (r *InvoiceRepository) List(ctx context.Context) ([]billing.Invoice, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]billing.Invoice, 0, len(r.data))
	for _, inv := range r.data {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// RunID returns the run that produced the stored invoices.
func (r *InvoiceRepository) RunID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runID
}

// CommitLog records committed input digests in memory.
type CommitLog struct {
	mu   sync.Mutex
	runs map[string]string
}

// NewCommitLog constructs an empty log.
func NewCommitLog() *CommitLog {
	return &CommitLog{runs: make(map[string]string)}
}

// CommittedRun returns the run that committed digest.
func (l *CommitLog) CommittedRun(ctx context.Context, digest string) (string, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runs[digest], nil
}

// RecordCommit remembers digest. The first run to commit it is kept.
func (l *CommitLog) RecordCommit(ctx context.Context, runID, digest string) error {
	_ = ctx
	if digest == "" {
		return errors.New("memory commit log: empty digest")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.runs[digest]; !ok {
		l.runs[digest] = runID
	}
	return nil
}
