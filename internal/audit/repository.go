package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const insertEntry = `
INSERT INTO billing_audit_logs (
	id, actor, role, action, account_id, run_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

// Repository stores entries in billing_audit_logs.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository constructs a repository over db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Log inserts entry after filling its id, timestamp and digest.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	e := entry.complete(r.now())
	metadata := sql.NullString{String: string(e.Metadata), Valid: len(e.Metadata) > 0}
	_, err := r.db.ExecContext(ctx, insertEntry,
		e.ID, e.Actor, e.Role, e.Action, e.AccountID, e.RunID,
		metadata, e.PayloadDigest, e.IP, e.UserAgent, e.CreatedAt)
	return err
}
