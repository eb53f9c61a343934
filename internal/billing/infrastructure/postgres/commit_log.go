package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// CommitLog records committed input digests in billing_commits.
type CommitLog struct {
	db *sql.DB
}

// NewCommitLog constructs a commit log.
func NewCommitLog(db *sql.DB) *CommitLog {
	return &CommitLog{db: db}
}

// CommittedRun returns the run that committed digest, or "".
func (l *CommitLog) CommittedRun(ctx context.Context, digest string) (string, error) {
	if l == nil || l.db == nil {
		return "", errors.New("commit log: nil db")
	}
	var runID string
	err := l.db.QueryRowContext(ctx, `
SELECT run_id
FROM billing_commits
WHERE input_digest = $1`, digest).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return runID, err
}

// RecordCommit stores digest. The first run to commit it is kept.
func (l *CommitLog) RecordCommit(ctx context.Context, runID, digest string) error {
	if l == nil || l.db == nil {
		return errors.New("commit log: nil db")
	}
	if digest == "" {
		return errors.New("commit log: empty digest")
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO billing_commits (input_digest, run_id, committed_at)
VALUES ($1,$2,NOW())
ON CONFLICT (input_digest) DO NOTHING`, digest, runID)
	return err
}
