package postgres

import (
	"context"
	"database/sql"
	"errors"

	billing "pik-billing/internal/billing/domain"
)

// SnapshotStore persists the billing context as one row per (account, variable).
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Load reads the whole context. An empty table yields an empty context.
func (s *SnapshotStore) Load(ctx context.Context) (*billing.BillingContext, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("snapshot store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT account_id, variable, value, is_date
FROM billing_context
ORDER BY account_id ASC, variable ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	state := billing.NewBillingContext()
	for rows.Next() {
		var entry billing.ContextEntry
		if err := rows.Scan(&entry.AccountID, &entry.Variable, &entry.Value, &entry.IsDate); err != nil {
			return nil, err
		}
		if err := state.Restore(entry); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return state, nil
}

// Save replaces the stored context in a single transaction.
func (s *SnapshotStore) Save(ctx context.Context, runID string, state *billing.BillingContext) error {
	if s == nil || s.db == nil {
		return errors.New("snapshot store: nil db")
	}
	if state == nil {
		return errors.New("snapshot store: nil context")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM billing_context`); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, entry := range state.Entries() {
		_, err := tx.ExecContext(ctx, `
INSERT INTO billing_context (
	account_id, variable, value, is_date, run_id, updated_at
) VALUES ($1,$2,$3,$4,$5,NOW())`,
			entry.AccountID, entry.Variable, entry.Value, entry.IsDate, runID)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
