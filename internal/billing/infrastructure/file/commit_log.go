package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CommitLog appends one JSON line per committed run.
type CommitLog struct {
	path string
	now  func() time.Time
}

type commitRecord struct {
	RunID       string    `json:"run_id"`
	Digest      string    `json:"digest"`
	CommittedAt time.Time `json:"committed_at"`
}

// NewCommitLog constructs a log at path.
func NewCommitLog(path string) (*CommitLog, error) {
	if path == "" {
		return nil, errors.New("file commit log: empty path")
	}
	return &CommitLog{path: path, now: time.Now}, nil
}

// CommittedRun scans the log for digest. A missing log has no commits.
func (l *CommitLog) CommittedRun(ctx context.Context, digest string) (string, error) {
	_ = ctx
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec commitRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return "", fmt.Errorf("file commit log: %s:%d: %w", l.path, line, err)
		}
		if rec.Digest == digest {
			return rec.RunID, nil
		}
	}
	return "", scanner.Err()
}

// RecordCommit appends the run and syncs the file.
func (l *CommitLog) RecordCommit(ctx context.Context, runID, digest string) error {
	_ = ctx
	if digest == "" {
		return errors.New("file commit log: empty digest")
	}
	data, err := json.Marshal(commitRecord{RunID: runID, Digest: digest, CommittedAt: l.now().UTC()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
